package roce

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	b, err := Serialize(gopacket.SerializeOptions{}, ls...)
	require.NoError(t, err)
	return b
}

func TestBTHSerialize(t *testing.T) {
	tests := []struct {
		name string
		bth  BTH
		want string
	}{
		{
			name: "cnp",
			bth:  BTH{Opcode: OpcodeCNP, PKey: 0xffff, DestQP: 0xd2},
			want: "8100ffff000000d200000000",
		},
		{
			name: "all flags",
			bth: BTH{
				Opcode:         OpcodeRCSendOnly,
				SolicitedEvent: true,
				MigReq:         true,
				PadCount:       3,
				TVer:           0xf,
				PKey:           0x1234,
				ResVar:         0xaa,
				DestQP:         0xffffff,
				AckReq:         true,
				Res:            0x7f,
				PSN:            0xabcdef,
			},
			want: "04ff1234aaffffffffabcdef",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := serialize(t, &tt.bth)
			assert.Equal(t, tt.want, Hex(b))

			var got BTH
			require.NoError(t, got.DecodeFromBytes(b, gopacket.NilDecodeFeedback))
			got.BaseLayer = tt.bth.BaseLayer
			assert.Equal(t, tt.bth, got)
		})
	}
}

func TestBTHFieldOverflow(t *testing.T) {
	tests := []struct {
		name string
		bth  BTH
	}{
		{"dest qp", BTH{DestQP: 0x1000000}},
		{"psn", BTH{PSN: 0x1000000}},
		{"pad count", BTH{PadCount: 4}},
		{"transport version", BTH{TVer: 16}},
		{"reserved", BTH{Res: 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Serialize(gopacket.SerializeOptions{}, &tt.bth)
			assert.ErrorIs(t, err, ErrFieldOverflow)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name  string
		layer decodingLayer
		size  int
	}{
		{"bth", &BTH{}, BTHLength - 1},
		{"reth", &RETH{}, RETHLength - 1},
		{"cnp", &CNP{}, WordsLength - 1},
		{"data16", &Data16{}, WordsLength - 1},
		{"payload", &Payload{}, ICRCLength - 1},
		{"icrc", &ICRC{}, ICRCLength - 1},
		{"preamble", &Preamble{}, PreambleLength - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &feedback{}
			err := tt.layer.DecodeFromBytes(make([]byte, tt.size), fb)
			assert.ErrorIs(t, err, ErrTruncated)
			assert.True(t, fb.truncated)
		})
	}
}

func TestRETHRoundTrip(t *testing.T) {
	r := &RETH{VirtualAddress: 0x1000, RemoteKey: 1, DMALength: 64}
	b := serialize(t, r)
	assert.Equal(t, "00000000000010000000000100000040", Hex(b))

	var got RETH
	require.NoError(t, got.DecodeFromBytes(b, gopacket.NilDecodeFeedback))
	assert.Equal(t, r.VirtualAddress, got.VirtualAddress)
	assert.Equal(t, r.RemoteKey, got.RemoteKey)
	assert.Equal(t, r.DMALength, got.DMALength)
}

func TestWordsBigEndian(t *testing.T) {
	b := serialize(t, &Data16{Words: Words{1, 2, 3, 0xdeadbeef}})
	assert.Equal(t, "000000010000000200000003deadbeef", Hex(b))

	var c CNP
	require.NoError(t, c.DecodeFromBytes(b, gopacket.NilDecodeFeedback))
	assert.Equal(t, Words{1, 2, 3, 0xdeadbeef}, c.Words)
}

func TestICRCLittleEndian(t *testing.T) {
	b := serialize(t, &ICRC{Value: 0x28b6f202})
	assert.Equal(t, "02f2b628", Hex(b))

	var c ICRC
	require.NoError(t, c.DecodeFromBytes(b, gopacket.NilDecodeFeedback))
	assert.Equal(t, uint32(0x28b6f202), c.Value)
}

func TestPayloadLeavesTrailer(t *testing.T) {
	var p Payload
	require.NoError(t, p.DecodeFromBytes([]byte{1, 2, 3, 4, 5, 6}, gopacket.NilDecodeFeedback))
	assert.Equal(t, []byte{1, 2}, p.Data)
	assert.Equal(t, []byte{3, 4, 5, 6}, p.LayerPayload())

	require.NoError(t, p.DecodeFromBytes([]byte{3, 4, 5, 6}, gopacket.NilDecodeFeedback))
	assert.Empty(t, p.Data)
	assert.Equal(t, LayerTypeICRC, p.NextLayerType())
}

func TestPreamble(t *testing.T) {
	b := serialize(t, &Preamble{})
	assert.Equal(t, "ffffffffffffffff", Hex(b))

	var p Preamble
	require.NoError(t, p.DecodeFromBytes(append(b, 0x45), gopacket.NilDecodeFeedback))
	assert.Equal(t, "IPv4", p.NextLayerType().String())

	b[3] = 0
	assert.Error(t, p.DecodeFromBytes(b, gopacket.NilDecodeFeedback))
}

func TestOpcodeNames(t *testing.T) {
	assert.Equal(t, "RoCEv2_CNP", OpcodeCNP.String())
	assert.Equal(t, "RC_Send_Only", OpcodeRCSendOnly.String())
	assert.Equal(t, "Opcode(200)", Opcode(200).String())

	op, ok := ParseOpcode("RC_RDMA_Write_Only")
	require.True(t, ok)
	assert.Equal(t, OpcodeRCRDMAWriteOnly, op)
	_, ok = ParseOpcode("nope")
	assert.False(t, ok)
}

func TestGopacketDecodesFromBTH(t *testing.T) {
	b := serialize(t,
		&BTH{Opcode: OpcodeCNP, PKey: 0xffff, DestQP: 0xd2},
		&CNP{},
		&ICRC{Value: 0x01020304},
	)
	pkt := gopacket.NewPacket(b, LayerTypeBTH, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	bth, ok := pkt.Layer(LayerTypeBTH).(*BTH)
	require.True(t, ok)
	assert.Equal(t, uint32(0xd2), bth.DestQP)
	require.NotNil(t, pkt.Layer(LayerTypeCNP))
	trailer, ok := pkt.Layer(LayerTypeICRC).(*ICRC)
	require.True(t, ok)
	assert.Equal(t, uint32(0x01020304), trailer.Value)
}
