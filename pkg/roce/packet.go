package roce

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Cloner is implemented by layers that can copy themselves without sharing
// memory with a decoded buffer.
type Cloner interface {
	Clone() gopacket.SerializableLayer
}

// Summarizer is implemented by layers with a one-line description.
type Summarizer interface {
	Summary() string
}

// Packet is an ordered stack of layers, outermost first. Its serialized form
// is the concatenation of the layers' encodings.
type Packet struct {
	layers    []gopacket.SerializableLayer
	truncated bool
}

// NewPacket stacks ls in order.
func NewPacket(ls ...gopacket.SerializableLayer) *Packet {
	p := &Packet{layers: append([]gopacket.SerializableLayer(nil), ls...)}
	p.linkChecksums()
	return p
}

// Layers returns the layer stack. The slice is a copy; the layers are not.
func (p *Packet) Layers() []gopacket.SerializableLayer {
	return append([]gopacket.SerializableLayer(nil), p.layers...)
}

// Len returns the number of layers.
func (p *Packet) Len() int { return len(p.layers) }

// Truncated reports whether decoding ran out of bytes.
func (p *Packet) Truncated() bool { return p.truncated }

// Append stacks ls after the current innermost layer.
func (p *Packet) Append(ls ...gopacket.SerializableLayer) {
	p.layers = append(p.layers, ls...)
	p.linkChecksums()
}

// Index returns the position of the first layer of type t, or -1.
func (p *Packet) Index(t gopacket.LayerType) int {
	for i, l := range p.layers {
		if l.LayerType() == t {
			return i
		}
	}
	return -1
}

// Layer returns the first layer of type t, or nil.
func (p *Packet) Layer(t gopacket.LayerType) gopacket.SerializableLayer {
	if i := p.Index(t); i >= 0 {
		return p.layers[i]
	}
	return nil
}

// NetworkIndex returns the position of the first IPv4 or IPv6 layer, or -1.
func (p *Packet) NetworkIndex() int {
	for i, l := range p.layers {
		switch l.(type) {
		case *layers.IPv4, *layers.IPv6:
			return i
		}
	}
	return -1
}

// Remove drops the first layer of type t and reports whether one was found.
func (p *Packet) Remove(t gopacket.LayerType) bool {
	i := p.Index(t)
	if i < 0 {
		return false
	}
	p.layers = append(p.layers[:i:i], p.layers[i+1:]...)
	p.linkChecksums()
	return true
}

func (p *Packet) IPv4() *layers.IPv4 {
	l, _ := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	return l
}

func (p *Packet) IPv6() *layers.IPv6 {
	l, _ := p.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	return l
}

func (p *Packet) UDP() *layers.UDP {
	l, _ := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	return l
}

func (p *Packet) BTH() *BTH {
	l, _ := p.Layer(LayerTypeBTH).(*BTH)
	return l
}

func (p *Packet) ICRC() *ICRC {
	l, _ := p.Layer(LayerTypeICRC).(*ICRC)
	return l
}

// Clone returns a deep copy of the packet. Layers of types this package does
// not know how to copy yield ErrUnsupportedLayer.
func (p *Packet) Clone() (*Packet, error) {
	c := &Packet{
		layers:    make([]gopacket.SerializableLayer, 0, len(p.layers)),
		truncated: p.truncated,
	}
	for _, l := range p.layers {
		cl, err := cloneLayer(l)
		if err != nil {
			return nil, err
		}
		c.layers = append(c.layers, cl)
	}
	c.linkChecksums()
	return c, nil
}

// Bytes serializes the layers as their fields currently stand. Lengths and
// checksums are not recomputed; see Fix.
func (p *Packet) Bytes() ([]byte, error) {
	return Serialize(gopacket.SerializeOptions{}, p.layers...)
}

// Hex returns Bytes as a lowercase hex string.
func (p *Packet) Hex() (string, error) {
	b, err := p.Bytes()
	if err != nil {
		return "", err
	}
	return Hex(b), nil
}

// Fix fills the derived fields of the stack in place: EtherType and IP
// protocol numbers left at zero are inferred from the next layer, the RoCEv2
// port is set on a UDP layer followed by a BTH, and IP/UDP lengths and
// checksums are recomputed.
func (p *Packet) Fix() error {
	p.inferTypes()
	p.linkChecksums()
	_, err := Serialize(gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, p.layers...)
	return err
}

func (p *Packet) String() string {
	parts := make([]string, len(p.layers))
	for i, l := range p.layers {
		parts[i] = summarize(l)
	}
	return strings.Join(parts, " / ")
}

// Serialize encodes ls with opts into a fresh buffer.
func Serialize(opts gopacket.SerializeOptions, ls ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Packet) inferTypes() {
	for i, l := range p.layers {
		var next gopacket.SerializableLayer
		if i+1 < len(p.layers) {
			next = p.layers[i+1]
		}
		switch v := l.(type) {
		case *layers.Ethernet:
			if v.EthernetType == 0 {
				v.EthernetType = etherTypeOf(next)
			}
		case *layers.Dot1Q:
			if v.Type == 0 {
				v.Type = etherTypeOf(next)
			}
		case *layers.IPv4:
			if v.Version == 0 {
				v.Version = 4
			}
			if _, ok := next.(*layers.UDP); ok && v.Protocol == 0 {
				v.Protocol = layers.IPProtocolUDP
			}
		case *layers.IPv6:
			if v.Version == 0 {
				v.Version = 6
			}
			if _, ok := next.(*layers.UDP); ok && v.NextHeader == 0 && v.HopByHop == nil {
				v.NextHeader = layers.IPProtocolUDP
			}
		case *layers.UDP:
			if _, ok := next.(*BTH); ok && v.DstPort == 0 {
				v.DstPort = UDPPort
			}
		}
	}
}

func etherTypeOf(next gopacket.SerializableLayer) layers.EthernetType {
	switch next.(type) {
	case *layers.IPv4:
		return layers.EthernetTypeIPv4
	case *layers.IPv6:
		return layers.EthernetTypeIPv6
	case *layers.Dot1Q:
		return layers.EthernetTypeDot1Q
	case *layers.ARP:
		return layers.EthernetTypeARP
	}
	return 0
}

// linkChecksums points every UDP layer at the network layer above it so
// checksums can be computed over the pseudo-header.
func (p *Packet) linkChecksums() {
	var network gopacket.NetworkLayer
	for _, l := range p.layers {
		switch v := l.(type) {
		case *layers.IPv4:
			network = v
		case *layers.IPv6:
			network = v
		case *layers.UDP:
			if network != nil {
				_ = v.SetNetworkLayerForChecksum(network)
			}
		}
	}
}

func cloneLayer(l gopacket.SerializableLayer) (gopacket.SerializableLayer, error) {
	switch v := l.(type) {
	case Cloner:
		return v.Clone(), nil
	case *layers.Ethernet:
		c := *v
		c.BaseLayer = layers.BaseLayer{}
		c.SrcMAC = append(net.HardwareAddr(nil), v.SrcMAC...)
		c.DstMAC = append(net.HardwareAddr(nil), v.DstMAC...)
		return &c, nil
	case *layers.Dot1Q:
		c := *v
		c.BaseLayer = layers.BaseLayer{}
		return &c, nil
	case *layers.IPv4:
		c := *v
		c.BaseLayer = layers.BaseLayer{}
		c.SrcIP = append(net.IP(nil), v.SrcIP...)
		c.DstIP = append(net.IP(nil), v.DstIP...)
		c.Options = make([]layers.IPv4Option, len(v.Options))
		for i, o := range v.Options {
			o.OptionData = append([]byte(nil), o.OptionData...)
			c.Options[i] = o
		}
		c.Padding = append([]byte(nil), v.Padding...)
		return &c, nil
	case *layers.IPv6:
		c := *v
		c.BaseLayer = layers.BaseLayer{}
		c.SrcIP = append(net.IP(nil), v.SrcIP...)
		c.DstIP = append(net.IP(nil), v.DstIP...)
		if v.HopByHop != nil {
			hbh := *v.HopByHop
			c.HopByHop = &hbh
		}
		return &c, nil
	case *layers.UDP:
		c := *v
		c.BaseLayer = layers.BaseLayer{}
		return &c, nil
	case *gopacket.Payload:
		c := append(gopacket.Payload(nil), *v...)
		return &c, nil
	case gopacket.Payload:
		return append(gopacket.Payload(nil), v...), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLayer, l.LayerType())
}

func summarize(l gopacket.SerializableLayer) string {
	switch v := l.(type) {
	case Summarizer:
		return v.Summary()
	case *layers.Ethernet:
		return fmt.Sprintf("Ethernet(%s > %s)", v.SrcMAC, v.DstMAC)
	case *layers.Dot1Q:
		return fmt.Sprintf("Dot1Q(vlan=%d)", v.VLANIdentifier)
	case *layers.IPv4:
		return fmt.Sprintf("IPv4(%s > %s, tos=0x%02x, ttl=%d, len=%d)", v.SrcIP, v.DstIP, v.TOS, v.TTL, v.Length)
	case *layers.IPv6:
		return fmt.Sprintf("IPv6(%s > %s, tc=0x%02x, hlim=%d, len=%d)", v.SrcIP, v.DstIP, v.TrafficClass, v.HopLimit, v.Length)
	case *layers.UDP:
		return fmt.Sprintf("UDP(%d > %d, len=%d)", v.SrcPort, v.DstPort, v.Length)
	case *gopacket.Payload:
		return fmt.Sprintf("Raw(len=%d)", len(*v))
	case gopacket.Payload:
		return fmt.Sprintf("Raw(len=%d)", len(v))
	}
	return l.LayerType().String()
}
