package notification

import "errors"

var (
	ErrNoContact = errors.New("patient has no usable phone or email")
)
