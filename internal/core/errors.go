// Package core defines sentinel errors.
package core

import "errors"

var (
	// Frame extraction errors
	ErrUnsupportedFrame = errors.New("nfd: unsupported frame")
	ErrNotImplemented   = errors.New("nfd: protocol path not implemented")

	// Symbol table usage errors
	ErrKindMismatch = errors.New("nfd: variable kind mismatch")
	ErrUnbound      = errors.New("nfd: identifier not bound")

	// Literal parsing errors
	ErrInvalidLiteral = errors.New("nfd: invalid literal")
)
