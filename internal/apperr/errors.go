// Package apperr defines the sentinel errors shared across the registry.
package apperr

import "errors"

var (
	// ErrIO marks a root that cannot be read or a file that vanished mid-scan.
	ErrIO = errors.New("io error")
	// ErrParse marks a document whose header or encoding could not be parsed.
	ErrParse = errors.New("parse error")
	// ErrDuplicateID marks a document whose id was already taken by an earlier path.
	ErrDuplicateID = errors.New("duplicate document id")

	ErrNotFound          = errors.New("not found")
	ErrNotReady          = errors.New("registry not ready")
	ErrTimeout           = errors.New("timeout")
	ErrRefreshInProgress = errors.New("refresh in progress")
	ErrInvalidCategory   = errors.New("invalid category")
)
