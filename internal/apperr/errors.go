// Package apperr holds the sentinel errors shared by the service and its shells.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrArchived      = errors.New("note is archived")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid argument")
)
