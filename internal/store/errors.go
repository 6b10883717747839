package store

import "errors"

var (
	ErrEntryNotFound        = errors.New("queue entry not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConflict             = errors.New("queue entry changed concurrently")
	ErrPatientAlreadyQueued = errors.New("patient already has an active queue entry")
)
