//go:build linux

// Package afpacket sends frames on a network interface through an
// AF_PACKET socket.
package afpacket

import (
	"fmt"
	"sync"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/rocev2/internal/core"
)

const Name = "afpacket"

// Sink writes frames to one interface.
type Sink struct {
	mu     sync.Mutex
	iface  string
	handle *afpacket.TPacket
}

// NewSink opens a raw socket bound to iface. It needs CAP_NET_RAW.
func NewSink(iface string) (*Sink, error) {
	if iface == "" {
		return nil, core.ErrInterfaceRequired
	}
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket: open %s: %w", iface, err)
	}
	return &Sink{iface: iface, handle: tp}, nil
}

func (s *Sink) Name() string { return Name + ":" + s.iface }

func (s *Sink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle.WritePacketData(data)
}

func (s *Sink) Close() error {
	s.handle.Close()
	return nil
}
