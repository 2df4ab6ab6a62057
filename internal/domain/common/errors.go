package common

import "errors"

var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrNotAllowed      = errors.New("sender is not on the allow list")
	ErrNothingToFix    = errors.New("no earlier transaction to correct")
	ErrUnavailable     = errors.New("feature is not configured")
)
