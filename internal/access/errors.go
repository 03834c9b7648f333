package access

import "errors"

var (
	ErrValidation       = errors.New("invalid input")
	ErrNoAccess         = errors.New("no access")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("resource conflict")
	ErrInvalidRole      = errors.New("invalid role")
	ErrLastOwner        = errors.New("entity would be left without an owner")
	ErrUnavailable      = errors.New("storage unavailable")
)
