// Package ixia decodes and builds the instrumentation blocks IXIA traffic
// generators put into test traffic. The fixed block sits right after the
// transport header; the floating block may appear anywhere in a payload and
// is located by its three signature words.
package ixia

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Signature words.
const (
	Signature  uint32 = 0x87736749
	Signature2 uint32 = 0x42871180
	Signature3 uint32 = 0x08711805
)

// Wire sizes.
const (
	FixedLength = 16
	FloatLength = 24
)

var (
	LayerTypeFixed = gopacket.RegisterLayerType(2797, gopacket.LayerTypeMetadata{
		Name:    "IXIA_FIXED_INSTRUM",
		Decoder: gopacket.DecodeFunc(decodeFixed),
	})
	LayerTypeFloat = gopacket.RegisterLayerType(2798, gopacket.LayerTypeMetadata{
		Name:    "IXIA_FLOAT_INSTRUM",
		Decoder: gopacket.DecodeFunc(decodeFloat),
	})
)

// ErrTruncated is returned when fewer bytes remain than the block needs.
var ErrTruncated = errors.New("ixia: truncated instrumentation block")

var floatSignature = func() []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:], Signature)
	binary.BigEndian.PutUint32(b[4:], Signature2)
	binary.BigEndian.PutUint32(b[8:], Signature3)
	return b
}()

// Fixed is the fixed-position instrumentation block.
type Fixed struct {
	layers.BaseLayer
	Signature uint32
	PGID      uint32
	SeqNum    uint32
	Timestamp uint32
}

// NewFixed returns a block carrying the default signature.
func NewFixed(pgid, seq, ts uint32) *Fixed {
	return &Fixed{Signature: Signature, PGID: pgid, SeqNum: seq, Timestamp: ts}
}

func (f *Fixed) LayerType() gopacket.LayerType { return LayerTypeFixed }

func (f *Fixed) CanDecode() gopacket.LayerClass { return LayerTypeFixed }

func (f *Fixed) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

func (f *Fixed) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < FixedLength {
		df.SetTruncated()
		return fmt.Errorf("%w: fixed block needs %d bytes, got %d", ErrTruncated, FixedLength, len(data))
	}
	f.Signature = binary.BigEndian.Uint32(data[0:4])
	f.PGID = binary.BigEndian.Uint32(data[4:8])
	f.SeqNum = binary.BigEndian.Uint32(data[8:12])
	f.Timestamp = binary.BigEndian.Uint32(data[12:16])
	f.BaseLayer = layers.BaseLayer{Contents: data[:FixedLength], Payload: data[FixedLength:]}
	return nil
}

func (f *Fixed) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	b, err := buf.PrependBytes(FixedLength)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b[0:4], f.Signature)
	binary.BigEndian.PutUint32(b[4:8], f.PGID)
	binary.BigEndian.PutUint32(b[8:12], f.SeqNum)
	binary.BigEndian.PutUint32(b[12:16], f.Timestamp)
	return nil
}

func (f *Fixed) Summary() string {
	return fmt.Sprintf("IXIA_FIXED_INSTRUM(pgid=0x%x, seq=%d, ts=%d)", f.PGID, f.SeqNum, f.Timestamp)
}

func (f *Fixed) Clone() gopacket.SerializableLayer {
	c := *f
	c.BaseLayer = layers.BaseLayer{}
	return &c
}

// Float is the floating instrumentation block.
type Float struct {
	layers.BaseLayer
	Signature [3]uint32
	PGID      uint32
	SeqNum    uint32
	Timestamp uint32
}

// NewFloat returns a block carrying the default signatures.
func NewFloat(pgid, seq, ts uint32) *Float {
	return &Float{
		Signature: [3]uint32{Signature, Signature2, Signature3},
		PGID:      pgid,
		SeqNum:    seq,
		Timestamp: ts,
	}
}

func (f *Float) LayerType() gopacket.LayerType { return LayerTypeFloat }

func (f *Float) CanDecode() gopacket.LayerClass { return LayerTypeFloat }

func (f *Float) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

func (f *Float) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < FloatLength {
		df.SetTruncated()
		return fmt.Errorf("%w: floating block needs %d bytes, got %d", ErrTruncated, FloatLength, len(data))
	}
	for i := range f.Signature {
		f.Signature[i] = binary.BigEndian.Uint32(data[i*4:])
	}
	f.PGID = binary.BigEndian.Uint32(data[12:16])
	f.SeqNum = binary.BigEndian.Uint32(data[16:20])
	f.Timestamp = binary.BigEndian.Uint32(data[20:24])
	f.BaseLayer = layers.BaseLayer{Contents: data[:FloatLength], Payload: data[FloatLength:]}
	return nil
}

func (f *Float) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	b, err := buf.PrependBytes(FloatLength)
	if err != nil {
		return err
	}
	for i, s := range f.Signature {
		binary.BigEndian.PutUint32(b[i*4:], s)
	}
	binary.BigEndian.PutUint32(b[12:16], f.PGID)
	binary.BigEndian.PutUint32(b[16:20], f.SeqNum)
	binary.BigEndian.PutUint32(b[20:24], f.Timestamp)
	return nil
}

func (f *Float) Summary() string {
	return fmt.Sprintf("IXIA_FLOAT_INSTRUM(pgid=0x%x, seq=%d, ts=%d)", f.PGID, f.SeqNum, f.Timestamp)
}

func (f *Float) Clone() gopacket.SerializableLayer {
	c := *f
	c.BaseLayer = layers.BaseLayer{}
	return &c
}

// FindFloat scans payload for the floating block signature and decodes the
// first complete block found. It returns the block and its offset.
func FindFloat(payload []byte) (*Float, int, bool) {
	at := bytes.Index(payload, floatSignature)
	if at < 0 || at+FloatLength > len(payload) {
		return nil, -1, false
	}
	f := &Float{}
	if err := f.DecodeFromBytes(payload[at:], gopacket.NilDecodeFeedback); err != nil {
		return nil, -1, false
	}
	return f, at, true
}

func decodeFixed(data []byte, p gopacket.PacketBuilder) error {
	f := &Fixed{}
	if err := f.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(f)
	if len(f.Payload) == 0 {
		return nil
	}
	return p.NextDecoder(f.NextLayerType())
}

func decodeFloat(data []byte, p gopacket.PacketBuilder) error {
	f := &Float{}
	if err := f.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(f)
	if len(f.Payload) == 0 {
		return nil
	}
	return p.NextDecoder(f.NextLayerType())
}
