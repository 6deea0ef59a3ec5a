// Package roce implements the RoCEv2 and Infiniband transport header layers
// on top of gopacket, the dispatch rules binding them together and a packet
// type holding an ordered layer stack.
package roce

import "github.com/google/gopacket"

// Layer type numbers. gopacket keeps values below 2000 for its own layers.
var (
	LayerTypeBTH = gopacket.RegisterLayerType(2790, gopacket.LayerTypeMetadata{
		Name:    "IB_BTH",
		Decoder: gopacket.DecodeFunc(decodeBTH),
	})
	LayerTypeRETH = gopacket.RegisterLayerType(2791, gopacket.LayerTypeMetadata{
		Name:    "IB_RETH",
		Decoder: gopacket.DecodeFunc(decodeRETH),
	})
	LayerTypeCNP = gopacket.RegisterLayerType(2792, gopacket.LayerTypeMetadata{
		Name:    "IB_CNP",
		Decoder: gopacket.DecodeFunc(decodeCNP),
	})
	LayerTypeData16 = gopacket.RegisterLayerType(2793, gopacket.LayerTypeMetadata{
		Name:    "IB_DATA_16",
		Decoder: gopacket.DecodeFunc(decodeData16),
	})
	LayerTypePayload = gopacket.RegisterLayerType(2794, gopacket.LayerTypeMetadata{
		Name:    "IB_PAYLOAD",
		Decoder: gopacket.DecodeFunc(decodePayload),
	})
	LayerTypeICRC = gopacket.RegisterLayerType(2795, gopacket.LayerTypeMetadata{
		Name:    "IB_iCRC",
		Decoder: gopacket.DecodeFunc(decodeICRC),
	})
	LayerTypePreamble = gopacket.RegisterLayerType(2796, gopacket.LayerTypeMetadata{
		Name:    "IB_CRC_PREAMBLE",
		Decoder: gopacket.DecodeFunc(decodePreamble),
	})
)

// decodingLayer is what every layer of this package implements.
type decodingLayer interface {
	gopacket.Layer
	gopacket.DecodingLayer
	gopacket.SerializableLayer
}

// decodeWith runs l over data and hands the remainder to the layer chosen by
// the default dispatch table.
func decodeWith(l decodingLayer, data []byte, p gopacket.PacketBuilder) error {
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	next := l.NextLayerType()
	if next == gopacket.LayerTypeZero {
		if rest := l.LayerPayload(); len(rest) > 0 {
			return p.NextDecoder(gopacket.LayerTypePayload)
		}
		return nil
	}
	return p.NextDecoder(next)
}

func decodeBTH(data []byte, p gopacket.PacketBuilder) error {
	return decodeWith(&BTH{}, data, p)
}

func decodeRETH(data []byte, p gopacket.PacketBuilder) error {
	return decodeWith(&RETH{}, data, p)
}

func decodeCNP(data []byte, p gopacket.PacketBuilder) error {
	return decodeWith(&CNP{}, data, p)
}

func decodeData16(data []byte, p gopacket.PacketBuilder) error {
	return decodeWith(&Data16{}, data, p)
}

func decodePayload(data []byte, p gopacket.PacketBuilder) error {
	return decodeWith(&Payload{}, data, p)
}

func decodeICRC(data []byte, p gopacket.PacketBuilder) error {
	return decodeWith(&ICRC{}, data, p)
}

func decodePreamble(data []byte, p gopacket.PacketBuilder) error {
	return decodeWith(&Preamble{}, data, p)
}
