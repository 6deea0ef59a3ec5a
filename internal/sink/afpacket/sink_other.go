//go:build !linux

// Package afpacket sends frames on a network interface through an
// AF_PACKET socket.
package afpacket

import "firestige.xyz/rocev2/internal/core"

const Name = "afpacket"

// Sink is unavailable outside linux.
type Sink struct{}

// NewSink always fails with core.ErrNotSupported.
func NewSink(iface string) (*Sink, error) {
	if iface == "" {
		return nil, core.ErrInterfaceRequired
	}
	return nil, core.ErrNotSupported
}

func (s *Sink) Name() string { return Name }

func (s *Sink) Send(data []byte) error { return core.ErrNotSupported }

func (s *Sink) Close() error { return nil }
