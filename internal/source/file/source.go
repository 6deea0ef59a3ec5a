// Package file reads frames from pcap and pcapng files.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const Name = "file"

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source reads a capture file front to back.
type Source struct {
	path   string
	f      *os.File
	reader packetReader
}

// Open opens a pcap file, falling back to pcapng when the classic magic
// number does not match.
func Open(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	return &Source{path: path, f: f, reader: r}, nil
}

func newReader(rs io.ReadSeeker) (packetReader, error) {
	r, err := pcapgo.NewReader(bufio.NewReader(rs))
	if err == nil {
		return r, nil
	}
	if _, serr := rs.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	ng, ngErr := pcapgo.NewNgReader(bufio.NewReader(rs), pcapgo.DefaultNgReaderOptions)
	if ngErr != nil {
		return nil, errors.Join(err, ngErr)
	}
	return ng, nil
}

func (s *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.reader == nil {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, nil
}

func (s *Source) LinkType() layers.LinkType {
	if s.reader == nil {
		return layers.LinkTypeEthernet
	}
	return s.reader.LinkType()
}

func (s *Source) Path() string { return s.path }

func (s *Source) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.reader = nil
	return err
}
