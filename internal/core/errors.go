// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared by the harness packages.
var (
	// Configuration errors
	ErrConfigInvalid = errors.New("rocev2: invalid configuration")

	// Template errors
	ErrTemplateInvalid = errors.New("rocev2: invalid packet template")
	ErrUnknownLayer    = errors.New("rocev2: unknown layer type")

	// Interface errors
	ErrInterfaceRequired = errors.New("rocev2: network interface required")
	ErrSourceClosed      = errors.New("rocev2: frame source closed")
	ErrNotSupported      = errors.New("rocev2: not supported on this platform")

	// Frame errors
	ErrNotRoCE = errors.New("rocev2: frame is not RoCEv2")
)
