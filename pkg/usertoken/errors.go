package usertoken

import "errors"

var (
	ErrMalformedToken   = errors.New("usertoken: malformed token")
	ErrSignatureInvalid = errors.New("usertoken: signature mismatch")
	ErrTokenExpired     = errors.New("usertoken: token expired")
	ErrUnknownKey       = errors.New("usertoken: unknown key version")
)
