package icrc

import (
	"errors"
	"fmt"
)

var (
	// ErrShape matches every *ShapeError.
	ErrShape = errors.New("icrc: packet is not iCRC eligible")
	// ErrMissingTrailer reports a packet without an iCRC trailer. Normalize
	// treats it as a diagnostic; Install fails with it.
	ErrMissingTrailer = errors.New("icrc: no iCRC trailer in packet")
)

// ShapeError describes why a packet's layer stack cannot carry an iCRC.
type ShapeError struct {
	Reason string
	Err    error
}

func shapeErrorf(format string, args ...any) *ShapeError {
	return &ShapeError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ShapeError) Error() string {
	return "icrc: " + e.Reason
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

func (e *ShapeError) Unwrap() error { return e.Err }
