// Package verify checks the iCRC of captured RoCEv2 frames.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/rocev2/internal/core"
	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/metrics"
	"firestige.xyz/rocev2/internal/source"
	"firestige.xyz/rocev2/pkg/icrc"
	"firestige.xyz/rocev2/pkg/ixia"
	"firestige.xyz/rocev2/pkg/roce"
)

// Result is the verdict on one frame.
type Result struct {
	Index     int
	Timestamp time.Time
	Length    int

	RoCE           bool
	Opcode         roce.Opcode
	Stored         uint32
	Computed       uint32
	Valid          bool
	MissingTrailer bool

	// Instrumentation is the floating IXIA block found in the frame, if any.
	Instrumentation *ixia.Float

	Err error
}

// Status is the metrics label of the result.
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return metrics.ResultError
	case !r.RoCE:
		return metrics.ResultNotRoCE
	case r.MissingTrailer:
		return metrics.ResultMissingTrailer
	case r.Valid:
		return metrics.ResultValid
	}
	return metrics.ResultInvalid
}

func (r Result) String() string {
	switch r.Status() {
	case metrics.ResultError:
		return fmt.Sprintf("#%d len=%d error: %v", r.Index, r.Length, r.Err)
	case metrics.ResultNotRoCE:
		return fmt.Sprintf("#%d len=%d not RoCEv2", r.Index, r.Length)
	case metrics.ResultMissingTrailer:
		return fmt.Sprintf("#%d len=%d %s no trailer, computed=0x%08x", r.Index, r.Length, r.Opcode, r.Computed)
	}
	s := fmt.Sprintf("#%d len=%d %s stored=0x%08x computed=0x%08x %s",
		r.Index, r.Length, r.Opcode, r.Stored, r.Computed, r.Status())
	if r.Instrumentation != nil {
		s += fmt.Sprintf(" ixia(pgid=%d seq=%d)", r.Instrumentation.PGID, r.Instrumentation.SeqNum)
	}
	return s
}

// Checker verifies frames against one parser configuration. It is safe for
// concurrent use.
type Checker struct {
	parser *roce.Parser
	logger log.Logger
}

// NewChecker returns a checker for frames starting with first whose
// RoCEv2 traffic uses UDP destination port port. Port 0 means 4791.
func NewChecker(first gopacket.LayerType, port uint16, logger log.Logger) (*Checker, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	var d *roce.Dispatch
	if port != 0 && port != roce.UDPPort {
		routes := roce.DefaultRoutes()
		for i, r := range routes {
			if r.From == layers.LayerTypeUDP {
				routes[i].Value = uint32(port)
			}
		}
		var err error
		if d, err = roce.NewDispatch(routes...); err != nil {
			return nil, err
		}
	}
	return &Checker{parser: roce.NewParser(first, d), logger: logger}, nil
}

// FirstLayer maps a capture link type to the layer frames start with.
func FirstLayer(lt layers.LinkType) (gopacket.LayerType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4, nil
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6, nil
	}
	return gopacket.LayerTypeZero, fmt.Errorf("%w: link type %s", core.ErrNotSupported, lt)
}

// Check decodes frame and verifies its iCRC.
func (c *Checker) Check(frame []byte) Result {
	r := Result{Length: len(frame)}
	p, err := c.parser.Parse(frame)
	if err != nil {
		r.Err = err
		return r
	}
	bth := p.BTH()
	if bth == nil {
		return r
	}
	r.RoCE = true
	r.Opcode = bth.Opcode
	p = splitTrailer(p)

	v, err := icrc.Verify(p)
	if err != nil {
		r.Err = err
		return r
	}
	r.Stored, r.Computed = v.Stored, v.Computed
	r.Valid = v.Valid()
	r.MissingTrailer = v.MissingTrailer

	if f, _, ok := ixia.FindFloat(frame); ok {
		r.Instrumentation = f
	}
	return r
}

// splitTrailer handles opcodes without a dispatch route, whose bytes after
// the BTH decode as one raw payload. The last four of them are the trailer.
func splitTrailer(p *roce.Packet) *roce.Packet {
	if p.ICRC() != nil {
		return p
	}
	ls := p.Layers()
	raw, ok := ls[len(ls)-1].(gopacket.Payload)
	if !ok || len(raw) < roce.ICRCLength || p.Index(roce.LayerTypeBTH) != len(ls)-2 {
		return p
	}
	split := len(raw) - roce.ICRCLength
	trailer := &roce.ICRC{}
	if err := trailer.DecodeFromBytes(raw[split:], gopacket.NilDecodeFeedback); err != nil {
		return p
	}
	ls[len(ls)-1] = &roce.Payload{Data: raw[:split]}
	return roce.NewPacket(append(ls, trailer)...)
}

// Report aggregates the results of a Run.
type Report struct {
	Frames         int
	RoCE           int
	Valid          int
	Invalid        int
	MissingTrailer int
	NotRoCE        int
	Errors         int
	Instrumented   int
	ByOpcode       map[roce.Opcode]int
}

func newReport() *Report {
	return &Report{ByOpcode: make(map[roce.Opcode]int)}
}

func (rep *Report) add(r Result) {
	rep.Frames++
	if r.RoCE {
		rep.RoCE++
		rep.ByOpcode[r.Opcode]++
	}
	if r.Instrumentation != nil {
		rep.Instrumented++
	}
	switch r.Status() {
	case metrics.ResultValid:
		rep.Valid++
	case metrics.ResultInvalid:
		rep.Invalid++
	case metrics.ResultMissingTrailer:
		rep.MissingTrailer++
	case metrics.ResultNotRoCE:
		rep.NotRoCE++
	case metrics.ResultError:
		rep.Errors++
	}
}

// OK reports whether every RoCEv2 frame carried a valid iCRC.
func (rep *Report) OK() bool {
	return rep.Invalid == 0 && rep.MissingTrailer == 0 && rep.Errors == 0
}

func (rep *Report) String() string {
	return fmt.Sprintf("frames=%d roce=%d valid=%d invalid=%d missing_trailer=%d not_roce=%d errors=%d instrumented=%d",
		rep.Frames, rep.RoCE, rep.Valid, rep.Invalid, rep.MissingTrailer, rep.NotRoCE, rep.Errors, rep.Instrumented)
}

// Run checks frames from src until it is exhausted, ctx is cancelled or
// limit frames have been read (limit <= 0 means no limit). each, when not
// nil, sees every result in order. name labels the metrics.
func (c *Checker) Run(ctx context.Context, src source.Source, name string, limit int, each func(Result)) (*Report, error) {
	rep := newReport()
	captured := metrics.FramesCapturedTotal.WithLabelValues(name)
	decodeErrors := metrics.DecodeErrorsTotal.WithLabelValues(name)

	for limit <= 0 || rep.Frames < limit {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		data, ci, err := src.ReadPacket()
		switch {
		case errors.Is(err, io.EOF):
			return rep, nil
		case errors.Is(err, source.ErrTimeout):
			continue
		case err != nil:
			return rep, fmt.Errorf("read frame %d: %w", rep.Frames, err)
		}
		captured.Inc()

		r := c.Check(data)
		r.Index = rep.Frames
		r.Timestamp = ci.Timestamp
		if r.Err != nil && !errors.Is(r.Err, icrc.ErrShape) {
			decodeErrors.Inc()
		}
		metrics.ICRCChecksTotal.WithLabelValues(r.Status()).Inc()
		c.logResult(r)

		rep.add(r)
		if each != nil {
			each(r)
		}
	}
	return rep, nil
}

func (c *Checker) logResult(r Result) {
	l := c.logger.WithFields(map[string]interface{}{"frame": r.Index, "len": r.Length})
	switch r.Status() {
	case metrics.ResultError:
		l.WithError(r.Err).Warn("frame could not be checked")
	case metrics.ResultInvalid:
		l.WithFields(map[string]interface{}{
			"opcode":   r.Opcode.String(),
			"stored":   fmt.Sprintf("0x%08x", r.Stored),
			"computed": fmt.Sprintf("0x%08x", r.Computed),
		}).Warn("iCRC mismatch")
	case metrics.ResultMissingTrailer:
		l.WithField("opcode", r.Opcode.String()).Warn(icrc.ErrMissingTrailer.Error())
	default:
		if c.logger.IsDebugEnabled() {
			l.WithField("status", r.Status()).Debug("frame checked")
		}
	}
}
