// Package pcap writes frames to a pcap file.
package pcap

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	Name = "pcap"

	defaultSnapLen = 65535
)

// Sink appends frames to a pcap stream with an Ethernet link type.
type Sink struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	now    func() time.Time
}

// NewSink writes the pcap file header to w. Close closes w when it is an
// io.Closer.
func NewSink(w io.Writer) (*Sink, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(defaultSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	s := &Sink{w: pw, now: time.Now}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// Create creates or truncates path and returns a sink writing to it.
func Create(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file %s: %w", path, err)
	}
	s, err := NewSink(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) Name() string { return Name }

func (s *Sink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci := gopacket.CaptureInfo{
		Timestamp:     s.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	return s.w.WritePacket(ci, data)
}

func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
