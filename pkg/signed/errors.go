package signed

import "errors"

var (
	ErrSignatureInvalid = errors.New("signed: signature verification failed")
	ErrDigestMismatch   = errors.New("signed: snapshot digest mismatch")
	ErrMalformedSig     = errors.New("signed: malformed signature encoding")
	ErrClosed           = errors.New("signed: refresher closed")
)
