package api

import (
	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/noteservice"
	"github.com/starford/fleeting/internal/search"
)

// CreateNoteRequest is the optional request body for creating a note.
type CreateNoteRequest struct {
	Window *models.WindowInfo `json:"window,omitempty"`
}

// CreateNoteResponse carries the id of a new note.
type CreateNoteResponse struct {
	ID string `json:"id" example:"3f0c9a1e-5b7d-4c55-9d3e-1f2a3b4c5d6e" validate:"required"`
}

// BodyRequest is the request body for saving a note body.
type BodyRequest struct {
	Body *string `json:"body" example:"# Groceries\n- milk" validate:"required"`
}

// BodyResponse is a note body without its header.
type BodyResponse struct {
	ID   string `json:"id" validate:"required"`
	Body string `json:"body" validate:"required"`
}

// PinRequest is the request body for pinning or unpinning a note.
type PinRequest struct {
	Pinned *bool `json:"pinned" example:"true" validate:"required"`
}

// WindowRequest is the placement stored on a note.
type WindowRequest = models.WindowInfo

// NoteEntry is one index entry as returned by the API.
type NoteEntry = models.NoteEntry

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []NoteEntry `json:"notes" validate:"required"`
}

// SummaryResponse reports what a reconcile or rebuild changed.
type SummaryResponse = noteservice.Summary

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []search.Hit `json:"results" validate:"required"`
}
