package models

import "errors"

// Error kinds reported by every stage. All of them are fatal to a run;
// callers match them with errors.Is.
var (
	ErrMissingInput     = errors.New("missing input")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrUnreadableFile   = errors.New("unreadable file")
	ErrEmptyInput       = errors.New("empty input")
	ErrInvalidParameter = errors.New("invalid parameter")
)
