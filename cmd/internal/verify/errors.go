package verify

import "errors"

var (
	// ErrNoReference is returned when verification is attempted before a
	// reference image was stored for the subject.
	ErrNoReference = errors.New("no reference image stored")

	// ErrBadImage is returned when an upload cannot be decoded.
	ErrBadImage = errors.New("bad image")
)
