package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrTokenInvalid
	ErrTokenExpired
	ErrTokenRevoked
	ErrAlreadyProcessed
	ErrGone
)

var httpStatus = map[int]int{
	ErrUnauthorized:     401,
	ErrForbidden:        403,
	ErrNotFound:         404,
	ErrInvalid:          400,
	ErrConflict:         409,
	ErrTooMany:          429,
	ErrInternal:         500,
	ErrInvalidFile:      400,
	ErrUploadFailed:     500,
	ErrTokenInvalid:     401,
	ErrTokenExpired:     401,
	ErrTokenRevoked:     401,
	ErrAlreadyProcessed: 409,
	ErrGone:             410,
}

// HTTPStatus returns the transport status for a code, 500 for unknown codes.
func HTTPStatus(code int) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return 500
}
