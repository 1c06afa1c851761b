package util

var (
	ErrInvalid        = NewError("invalid")
	ErrNotFound       = NewError("not found")
	ErrNotImplemented = NewError("not implemented")
	ErrTimeout        = NewError("timeout")
)
