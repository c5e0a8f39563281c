package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/noteservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List active or archived notes
//	@Tags			notes
//	@Produce		json
//	@Param			status	query		string	false	"Lifecycle state"	Enums(active, archived)
//	@Success		200		{object}	NoteListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	var (
		notes []models.NoteEntry
		err   error
	)
	switch models.Status(r.URL.Query().Get("status")) {
	case "", models.StatusActive:
		notes, err = h.svc.ListActive(r.Context())
	case models.StatusArchived:
		notes, err = h.svc.ListArchived(r.Context())
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("status must be active or archived"))
		return
	}
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new empty note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	false	"Initial placement"
//	@Success		201		{object}	CreateNoteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	id, err := h.svc.CreateNote(r.Context(), req.Window)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateNoteResponse{ID: id})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a note's index entry
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteEntry
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// LoadBody handles GET /api/notes/{id}/body.
//
//	@Summary		Read a note body
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	BodyResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/body [get]
func (h *Handler) LoadBody(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := h.svc.LoadBody(r.Context(), id)
	if err != nil {
		writeError(w, "load body", err)
		return
	}
	writeJSON(w, http.StatusOK, BodyResponse{ID: id, Body: body})
}

// SaveBody handles PUT /api/notes/{id}/body.
//
//	@Summary		Replace a note body
//	@Tags			notes
//	@Accept			json
//	@Param			id		path	string		true	"Note id"
//	@Param			body	body	BodyRequest	true	"New body"
//	@Success		204		"Body saved"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/body [put]
func (h *Handler) SaveBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req BodyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("body is required"))
		return
	}
	if err := h.svc.SaveBody(r.Context(), chi.URLParam(r, "id"), *req.Body); err != nil {
		writeError(w, "save body", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Touch handles POST /api/notes/{id}/touch.
//
//	@Summary		Record activity on a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Activity recorded"
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/touch [post]
func (h *Handler) Touch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.TouchActivity(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "touch note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPinned handles PUT /api/notes/{id}/pin.
//
//	@Summary		Pin or unpin a note
//	@Tags			notes
//	@Accept			json
//	@Param			id		path	string		true	"Note id"
//	@Param			body	body	PinRequest	true	"Pin state"
//	@Success		204		"Pin updated"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pin [put]
func (h *Handler) SetPinned(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pinned == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("pinned is required"))
		return
	}
	if err := h.svc.SetPinned(r.Context(), chi.URLParam(r, "id"), *req.Pinned); err != nil {
		writeError(w, "set pinned", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/notes/{id}/restore.
//
//	@Summary		Restore an archived note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note active"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/restore [post]
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "restore note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetWindow handles PUT /api/notes/{id}/window.
//
//	@Summary		Store a note's window placement
//	@Tags			notes
//	@Accept			json
//	@Param			id		path	string			true	"Note id"
//	@Param			body	body	WindowRequest	true	"Placement"
//	@Success		204		"Placement stored"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/window [put]
func (h *Handler) SetWindow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req WindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetWindow(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		writeError(w, "set window", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile handles POST /api/reconcile.
//
//	@Summary		Run one reconciliation pass
//	@Tags			maintenance
//	@Produce		json
//	@Success		200	{object}	SummaryResponse
//	@Security		BearerAuth
//	@Router			/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Pass(r.Context())
	if err != nil {
		writeError(w, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Rebuild handles POST /api/rebuild.
//
//	@Summary		Rebuild the index from the note files
//	@Tags			maintenance
//	@Produce		json
//	@Success		200	{object}	SummaryResponse
//	@Security		BearerAuth
//	@Router			/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Rebuild(r.Context())
	if err != nil {
		writeError(w, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across note bodies
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
