package roce

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Route binds a layer to the layer decoded after it. The selector Value is the
// UDP destination port for UDP and the opcode for BTH; a route with Any set
// applies whatever the selector is.
type Route struct {
	From  gopacket.LayerType
	Value uint32
	Any   bool
	To    gopacket.LayerType
}

func (r Route) String() string {
	if r.Any {
		return fmt.Sprintf("%s -> %s", r.From, r.To)
	}
	return fmt.Sprintf("%s[%d] -> %s", r.From, r.Value, r.To)
}

type routeKey struct {
	from  gopacket.LayerType
	value uint32
}

// Dispatch is an immutable table mapping (layer, selector) to the next layer
// type. Build one with NewDispatch and share it freely.
type Dispatch struct {
	exact  map[routeKey]gopacket.LayerType
	any    map[gopacket.LayerType]gopacket.LayerType
	routes []Route
}

// NewDispatch builds a table from routes. Two routes for the same selector
// are rejected.
func NewDispatch(routes ...Route) (*Dispatch, error) {
	d := &Dispatch{
		exact:  make(map[routeKey]gopacket.LayerType, len(routes)),
		any:    make(map[gopacket.LayerType]gopacket.LayerType),
		routes: append([]Route(nil), routes...),
	}
	for _, r := range routes {
		if r.Any {
			if _, dup := d.any[r.From]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateRoute, r)
			}
			d.any[r.From] = r.To
			continue
		}
		key := routeKey{from: r.From, value: r.Value}
		if _, dup := d.exact[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoute, r)
		}
		d.exact[key] = r.To
	}
	return d, nil
}

// DefaultRoutes returns the RoCEv2 bindings:
//
//	UDP dport 4791        -> BTH
//	BTH opcode 129        -> CNP
//	BTH opcode 4          -> Data16
//	BTH opcode 10         -> RETH
//	RETH                  -> Payload
//	CNP, Data16, Payload  -> ICRC
func DefaultRoutes() []Route {
	return []Route{
		{From: layers.LayerTypeUDP, Value: UDPPort, To: LayerTypeBTH},
		{From: LayerTypeBTH, Value: uint32(OpcodeCNP), To: LayerTypeCNP},
		{From: LayerTypeBTH, Value: uint32(OpcodeRCSendOnly), To: LayerTypeData16},
		{From: LayerTypeBTH, Value: uint32(OpcodeRCRDMAWriteOnly), To: LayerTypeRETH},
		{From: LayerTypeRETH, Any: true, To: LayerTypePayload},
		{From: LayerTypeCNP, Any: true, To: LayerTypeICRC},
		{From: LayerTypeData16, Any: true, To: LayerTypeICRC},
		{From: LayerTypePayload, Any: true, To: LayerTypeICRC},
	}
}

var defaultDispatch = mustDispatch(DefaultRoutes()...)

func mustDispatch(routes ...Route) *Dispatch {
	d, err := NewDispatch(routes...)
	if err != nil {
		panic(err)
	}
	return d
}

// DefaultDispatch returns the table built from DefaultRoutes.
func DefaultDispatch() *Dispatch { return defaultDispatch }

// Lookup returns the layer that follows from for the given selector value.
func (d *Dispatch) Lookup(from gopacket.LayerType, value uint32) (gopacket.LayerType, bool) {
	if next, ok := d.exact[routeKey{from: from, value: value}]; ok {
		return next, true
	}
	next, ok := d.any[from]
	return next, ok
}

// Next returns the layer that follows l, reading the selector from l.
func (d *Dispatch) Next(l gopacket.Layer) (gopacket.LayerType, bool) {
	return d.Lookup(l.LayerType(), selector(l))
}

// Routes returns a copy of the routes the table was built from.
func (d *Dispatch) Routes() []Route {
	return append([]Route(nil), d.routes...)
}

func selector(l gopacket.Layer) uint32 {
	switch v := l.(type) {
	case *layers.UDP:
		return uint32(v.DstPort)
	case *BTH:
		return uint32(v.Opcode)
	}
	return 0
}
