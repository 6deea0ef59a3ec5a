// Package console prints frames instead of sending them.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"firestige.xyz/rocev2/pkg/roce"
)

const Name = "console"

// Sink writes one hex line per frame.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
	n   int
}

// NewSink writes to out, or stdout when out is nil.
func NewSink(out io.Writer) *Sink {
	if out == nil {
		out = os.Stdout
	}
	return &Sink{out: out}
}

func (s *Sink) Name() string { return Name }

func (s *Sink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	_, err := fmt.Fprintf(s.out, "#%d len=%d %s\n", s.n, len(data), roce.Hex(data))
	return err
}

func (s *Sink) Close() error {
	return nil
}
