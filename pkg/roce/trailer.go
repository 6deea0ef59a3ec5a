package roce

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// ICRCLength is the wire size of the invariant CRC trailer.
	ICRCLength = 4
	// PreambleLength is the size of the all-ones block the iCRC starts with.
	PreambleLength = 8
)

// Payload is the variable-length application data of an RDMA request. On the
// wire it is always followed by the iCRC trailer, so decoding leaves the last
// ICRCLength bytes for the next layer.
type Payload struct {
	layers.BaseLayer
	Data []byte
}

func (p *Payload) LayerType() gopacket.LayerType { return LayerTypePayload }

func (p *Payload) CanDecode() gopacket.LayerClass { return LayerTypePayload }

func (p *Payload) NextLayerType() gopacket.LayerType { return nextOf(LayerTypePayload) }

func (p *Payload) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	n := len(data) - ICRCLength
	if n < 0 {
		df.SetTruncated()
		return fmt.Errorf("%w: payload has no room for the iCRC trailer (%d bytes)", ErrTruncated, len(data))
	}
	p.Data = data[:n]
	p.BaseLayer = layers.BaseLayer{Contents: data[:n], Payload: data[n:]}
	return nil
}

func (p *Payload) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := buf.PrependBytes(len(p.Data))
	if err != nil {
		return err
	}
	copy(bytes, p.Data)
	return nil
}

func (p *Payload) Summary() string { return fmt.Sprintf("IB_PAYLOAD(len=%d)", len(p.Data)) }

func (p *Payload) Clone() gopacket.SerializableLayer {
	return &Payload{Data: append([]byte(nil), p.Data...)}
}

// ICRC is the invariant CRC trailer. The value is carried little-endian.
type ICRC struct {
	layers.BaseLayer
	Value uint32
}

func (c *ICRC) LayerType() gopacket.LayerType { return LayerTypeICRC }

func (c *ICRC) CanDecode() gopacket.LayerClass { return LayerTypeICRC }

func (c *ICRC) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

func (c *ICRC) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < ICRCLength {
		df.SetTruncated()
		return fmt.Errorf("%w: iCRC needs %d bytes, got %d", ErrTruncated, ICRCLength, len(data))
	}
	c.Value = binary.LittleEndian.Uint32(data[:ICRCLength])
	c.BaseLayer = layers.BaseLayer{Contents: data[:ICRCLength], Payload: data[ICRCLength:]}
	return nil
}

func (c *ICRC) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := buf.PrependBytes(ICRCLength)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(bytes, c.Value)
	return nil
}

func (c *ICRC) Summary() string { return fmt.Sprintf("IB_iCRC(icrc=0x%08x)", c.Value) }

func (c *ICRC) Clone() gopacket.SerializableLayer { return &ICRC{Value: c.Value} }

var preambleBytes = bytes.Repeat([]byte{0xff}, PreambleLength)

// Preamble is the block of 64 one bits the iCRC is computed over ahead of the
// network header. It is never transmitted.
type Preamble struct {
	layers.BaseLayer
}

func (p *Preamble) LayerType() gopacket.LayerType { return LayerTypePreamble }

func (p *Preamble) CanDecode() gopacket.LayerClass { return LayerTypePreamble }

// NextLayerType picks the IP version from the first nibble after the preamble.
func (p *Preamble) NextLayerType() gopacket.LayerType {
	if len(p.Payload) == 0 {
		return gopacket.LayerTypeZero
	}
	switch p.Payload[0] >> 4 {
	case 4:
		return layers.LayerTypeIPv4
	case 6:
		return layers.LayerTypeIPv6
	}
	return gopacket.LayerTypePayload
}

func (p *Preamble) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < PreambleLength {
		df.SetTruncated()
		return fmt.Errorf("%w: preamble needs %d bytes, got %d", ErrTruncated, PreambleLength, len(data))
	}
	if !bytes.Equal(data[:PreambleLength], preambleBytes) {
		return fmt.Errorf("roce: preamble is not all ones: %x", data[:PreambleLength])
	}
	p.BaseLayer = layers.BaseLayer{Contents: data[:PreambleLength], Payload: data[PreambleLength:]}
	return nil
}

func (p *Preamble) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := buf.PrependBytes(PreambleLength)
	if err != nil {
		return err
	}
	copy(bytes, preambleBytes)
	return nil
}

func (p *Preamble) Summary() string { return "IB_CRC_PREAMBLE" }

func (p *Preamble) Clone() gopacket.SerializableLayer { return &Preamble{} }
