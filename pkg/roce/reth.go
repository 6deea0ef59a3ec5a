package roce

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// RETHLength is the wire size of the RDMA Extended Transport Header.
const RETHLength = 16

// RETH is the RDMA Extended Transport Header carried by RDMA Write requests.
type RETH struct {
	layers.BaseLayer

	VirtualAddress uint64
	RemoteKey      uint32
	DMALength      uint32
}

func (r *RETH) LayerType() gopacket.LayerType { return LayerTypeRETH }

func (r *RETH) CanDecode() gopacket.LayerClass { return LayerTypeRETH }

func (r *RETH) NextLayerType() gopacket.LayerType { return nextOf(LayerTypeRETH) }

func (r *RETH) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < RETHLength {
		df.SetTruncated()
		return fmt.Errorf("%w: RETH needs %d bytes, got %d", ErrTruncated, RETHLength, len(data))
	}
	r.VirtualAddress = binary.BigEndian.Uint64(data[0:8])
	r.RemoteKey = binary.BigEndian.Uint32(data[8:12])
	r.DMALength = binary.BigEndian.Uint32(data[12:16])
	r.BaseLayer = layers.BaseLayer{Contents: data[:RETHLength], Payload: data[RETHLength:]}
	return nil
}

func (r *RETH) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := buf.PrependBytes(RETHLength)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(bytes[0:8], r.VirtualAddress)
	binary.BigEndian.PutUint32(bytes[8:12], r.RemoteKey)
	binary.BigEndian.PutUint32(bytes[12:16], r.DMALength)
	return nil
}

func (r *RETH) Summary() string {
	return fmt.Sprintf("IB_RETH(va=%#x, r_key=%#x, dma_len=%d)", r.VirtualAddress, r.RemoteKey, r.DMALength)
}

func (r *RETH) Clone() gopacket.SerializableLayer {
	c := *r
	c.BaseLayer = layers.BaseLayer{}
	return &c
}
