// Package icrc computes and installs the RoCEv2 invariant CRC.
//
// The iCRC covers everything from the IP header to the end of the payload,
// preceded by 64 one bits. Fields that switches and routers may rewrite are
// replaced with ones before the CRC is taken:
//
//	IPv4: TOS, TTL, header checksum
//	IPv6: traffic class, flow label, hop limit
//	UDP:  checksum
//	BTH:  ResVar
//
// The trailer itself is excluded, but the IP and UDP length fields keep the
// on-wire values that count it. The CRC is the IEEE 802.3 CRC-32 and is
// stored little-endian in the trailer.
package icrc

import (
	"hash/crc32"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/rocev2/pkg/roce"
)

const ipv6HeaderLength = 40

// Shape records where the iCRC relevant layers sit in a packet. Trailer is
// -1 when the packet has none.
type Shape struct {
	Network int
	UDP     int
	BTH     int
	Trailer int
}

// HasTrailer reports whether the packet ends in an iCRC trailer.
func (s Shape) HasTrailer() bool { return s.Trailer >= 0 }

// CheckShape locates the network, UDP, BTH and trailer layers of p without
// modifying it. Stacks that cannot carry an iCRC yield a *ShapeError. A
// missing trailer is not an error here; it shows up as Shape.Trailer == -1.
func CheckShape(p *roce.Packet) (Shape, error) {
	s := Shape{Network: p.NetworkIndex(), UDP: -1, BTH: -1, Trailer: -1}
	if s.Network < 0 {
		return s, shapeErrorf("no IPv4 or IPv6 layer")
	}
	ls := p.Layers()
	if ip, ok := ls[s.Network].(*layers.IPv4); ok && ip.IHL < 5 {
		return s, shapeErrorf("IPv4 header length %d is below 5 words, fix the packet first", ip.IHL)
	}
	for i := s.Network + 1; i < len(ls); i++ {
		switch ls[i].LayerType() {
		case layers.LayerTypeUDP:
			if s.UDP < 0 {
				s.UDP = i
			}
		case roce.LayerTypeBTH:
			if s.UDP >= 0 && s.BTH < 0 {
				s.BTH = i
			}
		case roce.LayerTypeICRC:
			if s.Trailer >= 0 {
				return s, shapeErrorf("more than one iCRC trailer (layers %d and %d)", s.Trailer, i)
			}
			s.Trailer = i
		}
	}
	switch {
	case s.UDP < 0:
		return s, shapeErrorf("no UDP layer after the network layer")
	case s.BTH < 0:
		return s, shapeErrorf("no BTH after the UDP layer")
	case s.Trailer >= 0 && s.Trailer != len(ls)-1:
		return s, shapeErrorf("iCRC trailer at layer %d is not the last of %d", s.Trailer, len(ls))
	}
	return s, nil
}

// Image is the byte sequence the iCRC is computed over.
type Image struct {
	Bytes []byte
	Shape Shape
	// IPLength and UDPLength are the restored on-wire lengths written into
	// the image. IPLength is the IPv4 total length or the IPv6 payload length.
	IPLength  uint16
	UDPLength uint16
}

// MissingTrailer reports whether the source packet had no trailer to strip,
// in which case the image may not cover what a peer would check.
func (im *Image) MissingTrailer() bool { return !im.Shape.HasTrailer() }

// Warning returns ErrMissingTrailer when MissingTrailer is true and nil
// otherwise.
func (im *Image) Warning() error {
	if im.MissingTrailer() {
		return ErrMissingTrailer
	}
	return nil
}

// Normalize builds the iCRC image of p. p is not modified.
func Normalize(p *roce.Packet) (*Image, error) {
	shape, err := CheckShape(p)
	if err != nil {
		return nil, err
	}
	c, err := p.Clone()
	if err != nil {
		return nil, &ShapeError{Reason: "cannot copy packet", Err: err}
	}
	stack := c.Layers()[shape.Network:]
	udpAt, bthAt := shape.UDP-shape.Network, shape.BTH-shape.Network

	ipLen, err := wireLength(stack)
	if err != nil {
		return nil, err
	}
	udpLen, err := wireLength(stack[udpAt:])
	if err != nil {
		return nil, err
	}
	if shape.HasTrailer() {
		stack = stack[:len(stack)-1]
	}

	im := &Image{Shape: shape}
	switch ip := stack[0].(type) {
	case *layers.IPv4:
		if ipLen > 0xffff {
			return nil, shapeErrorf("IPv4 packet of %d bytes exceeds the length field", ipLen)
		}
		ip.TOS = 0xff
		ip.TTL = 0xff
		ip.Checksum = 0xffff
		ip.Length = uint16(ipLen)
		im.IPLength = ip.Length
	case *layers.IPv6:
		if ipLen-ipv6HeaderLength > 0xffff {
			return nil, shapeErrorf("IPv6 payload of %d bytes needs a jumbogram", ipLen-ipv6HeaderLength)
		}
		ip.TrafficClass = 0xff
		ip.FlowLabel = 0xfffff
		ip.HopLimit = 0xff
		ip.Length = uint16(ipLen - ipv6HeaderLength)
		im.IPLength = ip.Length
	}

	udp, ok := stack[udpAt].(*layers.UDP)
	if !ok {
		return nil, shapeErrorf("layer %d is %T, not a UDP header", shape.UDP, stack[udpAt])
	}
	if udpLen > 0xffff {
		return nil, shapeErrorf("UDP datagram of %d bytes exceeds the length field", udpLen)
	}
	udp.Checksum = 0xffff
	udp.Length = uint16(udpLen)
	im.UDPLength = udp.Length

	bth, ok := stack[bthAt].(*roce.BTH)
	if !ok {
		return nil, shapeErrorf("layer %d is %T, not a BTH", shape.BTH, stack[bthAt])
	}
	bth.ResVar = 0xff

	im.Bytes, err = roce.Serialize(gopacket.SerializeOptions{},
		append([]gopacket.SerializableLayer{&roce.Preamble{}}, stack...)...)
	if err != nil {
		return nil, err
	}
	return im, nil
}

// Compute returns the iCRC of p along with the image it was taken over. p
// is not modified. Callers should check Image.Warning.
func Compute(p *roce.Packet) (uint32, *Image, error) {
	im, err := Normalize(p)
	if err != nil {
		return 0, nil, err
	}
	return crc32.ChecksumIEEE(im.Bytes), im, nil
}

// Install computes the iCRC of p and stores it in p's trailer. It fails
// without touching p when p has no trailer.
func Install(p *roce.Packet) (uint32, error) {
	v, im, err := Compute(p)
	if err != nil {
		return 0, err
	}
	if im.MissingTrailer() {
		return 0, &ShapeError{Reason: "no trailer to install the iCRC into", Err: ErrMissingTrailer}
	}
	trailer, ok := p.Layers()[im.Shape.Trailer].(*roce.ICRC)
	if !ok {
		return 0, shapeErrorf("layer %d is not an iCRC trailer", im.Shape.Trailer)
	}
	trailer.Value = v
	return v, nil
}

// Verdict compares a packet's stored trailer with the iCRC it should carry.
type Verdict struct {
	Stored         uint32
	Computed       uint32
	MissingTrailer bool
}

// Valid reports whether the packet has a trailer holding the right iCRC.
func (v Verdict) Valid() bool { return !v.MissingTrailer && v.Stored == v.Computed }

// Verify recomputes the iCRC of p and compares it with the trailer.
func Verify(p *roce.Packet) (Verdict, error) {
	computed, im, err := Compute(p)
	if err != nil {
		return Verdict{}, err
	}
	v := Verdict{Computed: computed, MissingTrailer: im.MissingTrailer()}
	if t := p.ICRC(); t != nil && !v.MissingTrailer {
		v.Stored = t.Value
	}
	return v, nil
}

func wireLength(ls []gopacket.SerializableLayer) (int, error) {
	b, err := roce.Serialize(gopacket.SerializeOptions{}, ls...)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
