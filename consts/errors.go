package consts

import "errors"

var (
	// ErrInvalidEndpoint rejects server endpoints that do not match the
	// scheme://host[:port]/api form.
	ErrInvalidEndpoint = errors.New("invalid server endpoint")

	ErrDBNotFound        = errors.New("not found")
	ErrDBUniqueViolation = errors.New("unique violation")
)
