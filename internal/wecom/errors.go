package wecom

import "errors"

var (
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrCorpIDMismatch    = errors.New("corp id mismatch")
	ErrDecrypt           = errors.New("decryption failed")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrInvalidAESKey     = errors.New("invalid encoding AES key")
	ErrUpstream          = errors.New("upstream request failed")
	ErrUpstreamTimeout   = errors.New("upstream request timed out")
	ErrTokenExpired      = errors.New("access token expired or invalid")
)
