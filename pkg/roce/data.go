package roce

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// WordsLength is the wire size of the CNP and fixed data blocks.
const WordsLength = 16

// Words is a block of four big-endian 32-bit words.
type Words [4]uint32

func (w *Words) decode(data []byte) {
	for i := range w {
		w[i] = binary.BigEndian.Uint32(data[i*4:])
	}
}

func (w *Words) encode(buf gopacket.SerializeBuffer) error {
	bytes, err := buf.PrependBytes(WordsLength)
	if err != nil {
		return err
	}
	for i, v := range w {
		binary.BigEndian.PutUint32(bytes[i*4:], v)
	}
	return nil
}

// CNP is the 16-byte payload of a RoCEv2 Congestion Notification Packet.
type CNP struct {
	layers.BaseLayer
	Words
}

func (c *CNP) LayerType() gopacket.LayerType { return LayerTypeCNP }

func (c *CNP) CanDecode() gopacket.LayerClass { return LayerTypeCNP }

func (c *CNP) NextLayerType() gopacket.LayerType { return nextOf(LayerTypeCNP) }

func (c *CNP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < WordsLength {
		df.SetTruncated()
		return fmt.Errorf("%w: CNP needs %d bytes, got %d", ErrTruncated, WordsLength, len(data))
	}
	c.Words.decode(data)
	c.BaseLayer = layers.BaseLayer{Contents: data[:WordsLength], Payload: data[WordsLength:]}
	return nil
}

func (c *CNP) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	return c.Words.encode(buf)
}

func (c *CNP) Summary() string {
	return fmt.Sprintf("IB_CNP(payload=%08x%08x%08x%08x)", c.Words[0], c.Words[1], c.Words[2], c.Words[3])
}

func (c *CNP) Clone() gopacket.SerializableLayer {
	cp := *c
	cp.BaseLayer = layers.BaseLayer{}
	return &cp
}

// Data16 is the fixed 16-byte data block of an RC Send Only packet.
type Data16 struct {
	layers.BaseLayer
	Words
}

func (d *Data16) LayerType() gopacket.LayerType { return LayerTypeData16 }

func (d *Data16) CanDecode() gopacket.LayerClass { return LayerTypeData16 }

func (d *Data16) NextLayerType() gopacket.LayerType { return nextOf(LayerTypeData16) }

func (d *Data16) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < WordsLength {
		df.SetTruncated()
		return fmt.Errorf("%w: data block needs %d bytes, got %d", ErrTruncated, WordsLength, len(data))
	}
	d.Words.decode(data)
	d.BaseLayer = layers.BaseLayer{Contents: data[:WordsLength], Payload: data[WordsLength:]}
	return nil
}

func (d *Data16) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	return d.Words.encode(buf)
}

func (d *Data16) Summary() string { return "IB_DATA_16" }

func (d *Data16) Clone() gopacket.SerializableLayer {
	cp := *d
	cp.BaseLayer = layers.BaseLayer{}
	return &cp
}

// nextOf returns the unconditional successor of a layer in the default table.
func nextOf(t gopacket.LayerType) gopacket.LayerType {
	if next, ok := defaultDispatch.Lookup(t, 0); ok {
		return next
	}
	return gopacket.LayerTypePayload
}
