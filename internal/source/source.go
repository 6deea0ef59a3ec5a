// Package source defines where captured frames come from.
package source

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrTimeout is returned by live sources when no frame arrived within the
// poll timeout. Callers may simply read again.
var ErrTimeout = errors.New("source: read timeout")

// Source yields captured frames. ReadPacket returns io.EOF when a finite
// source is exhausted.
type Source interface {
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close() error
}
