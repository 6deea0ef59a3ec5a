package roce

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Parser decodes frames into a Packet, starting from a fixed first layer and
// choosing each following layer from its dispatch table. IB layers are chained
// by that table alone; the default table is never consulted behind it. A Parser holds no
// per-frame state and may be shared between goroutines.
type Parser struct {
	first    gopacket.LayerType
	dispatch *Dispatch
}

// NewParser returns a parser whose frames begin with first. A nil table
// selects DefaultDispatch.
func NewParser(first gopacket.LayerType, d *Dispatch) *Parser {
	if d == nil {
		d = defaultDispatch
	}
	return &Parser{first: first, dispatch: d}
}

// First returns the layer type frames are expected to start with.
func (ps *Parser) First() gopacket.LayerType { return ps.first }

type feedback struct {
	truncated bool
}

func (f *feedback) SetTruncated() { f.truncated = true }

// Parse decodes b. The packet owns a copy of b. When a layer fails to decode
// the layers decoded so far are returned together with the error; layer types
// the parser does not know end the walk as a raw payload.
func (ps *Parser) Parse(b []byte) (*Packet, error) {
	data := append([]byte(nil), b...)
	p := &Packet{}
	fb := &feedback{}
	defer func() {
		p.truncated = p.truncated || fb.truncated
		p.linkChecksums()
	}()

	t := ps.first
	for len(data) > 0 && t != gopacket.LayerTypeZero {
		l := newDecodingLayer(t)
		if l == nil {
			break
		}
		if err := l.DecodeFromBytes(data, fb); err != nil {
			return p, fmt.Errorf("roce: decode %s: %w", t, err)
		}
		p.layers = append(p.layers, l)
		next, ok := ps.dispatch.Next(l)
		if !ok {
			next = ps.fallback(l)
		}
		data, t = l.LayerPayload(), next
	}
	if len(data) > 0 {
		p.layers = append(p.layers, gopacket.Payload(data))
	}
	return p, nil
}

// fallback picks the next layer when the table has no route for l. Link,
// network and transport layers follow their own protocol fields; IB layers
// are only ever chained by the table, so an unrouted one ends the walk and
// the rest of the frame stays raw.
func (ps *Parser) fallback(l decodingLayer) gopacket.LayerType {
	switch l.LayerType() {
	case LayerTypeBTH, LayerTypeRETH, LayerTypeCNP, LayerTypeData16, LayerTypePayload, LayerTypeICRC:
		return gopacket.LayerTypeZero
	}
	return l.NextLayerType()
}

func newDecodingLayer(t gopacket.LayerType) decodingLayer {
	switch t {
	case layers.LayerTypeEthernet:
		return &layers.Ethernet{}
	case layers.LayerTypeDot1Q:
		return &layers.Dot1Q{}
	case layers.LayerTypeIPv4:
		return &layers.IPv4{}
	case layers.LayerTypeIPv6:
		return &layers.IPv6{}
	case layers.LayerTypeUDP:
		return &layers.UDP{}
	case LayerTypeBTH:
		return &BTH{}
	case LayerTypeRETH:
		return &RETH{}
	case LayerTypeCNP:
		return &CNP{}
	case LayerTypeData16:
		return &Data16{}
	case LayerTypePayload:
		return &Payload{}
	case LayerTypeICRC:
		return &ICRC{}
	case LayerTypePreamble:
		return &Preamble{}
	}
	return nil
}
