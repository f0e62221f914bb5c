package service

import "errors"

// ErrMissingOwner is returned when a call carries no usable session id.
var ErrMissingOwner = errors.New("missing or invalid session id")
