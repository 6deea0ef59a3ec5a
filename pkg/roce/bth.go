package roce

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// UDPPort is the IANA destination port for RoCEv2.
const UDPPort = 4791

// BTHLength is the wire size of the Base Transport Header.
const BTHLength = 12

const (
	maxUint24 = 1<<24 - 1
	maxPad    = 1<<2 - 1
	maxTVer   = 1<<4 - 1
	maxRes    = 1<<7 - 1
)

// BTH is the Infiniband Base Transport Header.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|    Opcode     |S|M|Pad| TVer  |         Partition Key         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|    Res_var    |             Destination QP                    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|A|    Res      |          Packet Sequence Number               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// ResVar may be rewritten in transit and is masked out of the iCRC; Res is
// covered by it.
type BTH struct {
	layers.BaseLayer

	Opcode         Opcode
	SolicitedEvent bool
	MigReq         bool
	PadCount       uint8
	TVer           uint8
	PKey           uint16
	ResVar         uint8
	DestQP         uint32
	AckReq         bool
	Res            uint8
	PSN            uint32
}

func (b *BTH) LayerType() gopacket.LayerType { return LayerTypeBTH }

func (b *BTH) CanDecode() gopacket.LayerClass { return LayerTypeBTH }

// NextLayerType follows the default dispatch table. Opcodes without a route
// continue as a raw payload.
func (b *BTH) NextLayerType() gopacket.LayerType {
	if next, ok := defaultDispatch.Lookup(LayerTypeBTH, uint32(b.Opcode)); ok {
		return next
	}
	return gopacket.LayerTypePayload
}

func (b *BTH) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < BTHLength {
		df.SetTruncated()
		return fmt.Errorf("%w: BTH needs %d bytes, got %d", ErrTruncated, BTHLength, len(data))
	}
	b.Opcode = Opcode(data[0])
	b.SolicitedEvent = data[1]&0x80 != 0
	b.MigReq = data[1]&0x40 != 0
	b.PadCount = (data[1] >> 4) & maxPad
	b.TVer = data[1] & maxTVer
	b.PKey = binary.BigEndian.Uint16(data[2:4])
	b.ResVar = data[4]
	b.DestQP = uint24(data[5:8])
	b.AckReq = data[8]&0x80 != 0
	b.Res = data[8] & maxRes
	b.PSN = uint24(data[9:12])
	b.BaseLayer = layers.BaseLayer{Contents: data[:BTHLength], Payload: data[BTHLength:]}
	return nil
}

func (b *BTH) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	switch {
	case b.PadCount > maxPad:
		return fmt.Errorf("%w: BTH pad count %d", ErrFieldOverflow, b.PadCount)
	case b.TVer > maxTVer:
		return fmt.Errorf("%w: BTH transport version %d", ErrFieldOverflow, b.TVer)
	case b.DestQP > maxUint24:
		return fmt.Errorf("%w: BTH destination QP %#x", ErrFieldOverflow, b.DestQP)
	case b.Res > maxRes:
		return fmt.Errorf("%w: BTH reserved %#x", ErrFieldOverflow, b.Res)
	case b.PSN > maxUint24:
		return fmt.Errorf("%w: BTH PSN %#x", ErrFieldOverflow, b.PSN)
	}
	bytes, err := buf.PrependBytes(BTHLength)
	if err != nil {
		return err
	}
	bytes[0] = byte(b.Opcode)
	bytes[1] = b.PadCount<<4 | b.TVer
	if b.SolicitedEvent {
		bytes[1] |= 0x80
	}
	if b.MigReq {
		bytes[1] |= 0x40
	}
	binary.BigEndian.PutUint16(bytes[2:4], b.PKey)
	bytes[4] = b.ResVar
	putUint24(bytes[5:8], b.DestQP)
	bytes[8] = b.Res
	if b.AckReq {
		bytes[8] |= 0x80
	}
	putUint24(bytes[9:12], b.PSN)
	return nil
}

// Summary renders the header the way packet listings show it.
func (b *BTH) Summary() string {
	return fmt.Sprintf("IB_BTH(opcode=%s, p_key=0x%04x, dest_qp=0x%06x, psn=%d)", b.Opcode, b.PKey, b.DestQP, b.PSN)
}

// Clone returns a copy detached from any decoded buffer.
func (b *BTH) Clone() gopacket.SerializableLayer {
	c := *b
	c.BaseLayer = layers.BaseLayer{}
	return &c
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
