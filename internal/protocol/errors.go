package protocol

import "errors"

var (
	ErrEmptyPayload     = errors.New("empty payload")
	ErrInvalidHeader    = errors.New("invalid header")
	ErrInvalidParcel    = errors.New("invalid parcel")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUnknownDirective = errors.New("unknown control directive")
)
