//go:build !linux

// Package afpacket captures RoCEv2 frames from a network interface with
// AF_PACKET TPACKET_V3.
package afpacket

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/core"
)

const Name = "afpacket"

// Source is unavailable outside linux.
type Source struct{}

// Open always fails with core.ErrNotSupported.
func Open(cfg config.CaptureConfig) (*Source, error) {
	if cfg.Interface == "" {
		return nil, core.ErrInterfaceRequired
	}
	return nil, core.ErrNotSupported
}

func (s *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, core.ErrNotSupported
}

func (s *Source) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *Source) Close() error { return nil }
