package verify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/craft"
	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/metrics"
	"firestige.xyz/rocev2/internal/source"
	"firestige.xyz/rocev2/pkg/roce"
)

const header = `
layers:
  - type: ether
    fields: {src: "00:11:22:33:44:55", dst: "aa:bb:cc:dd:ee:ff"}
  - type: ipv4
    fields: {src: 22.22.22.7, dst: 10.11.12.13, tos: 136, ttl: 32, id: 0x98c6, flags: DF}
`

func build(t *testing.T, body string) []byte {
	t.Helper()
	tpl, err := config.ParseTemplate([]byte("name: test" + header + body))
	require.NoError(t, err)
	f, err := craft.Build(tpl, log.Discard())
	require.NoError(t, err)
	return f.Data
}

func cnpFrame(t *testing.T) []byte {
	return build(t, `
  - type: udp
    fields: {sport: 56238}
  - type: bth
    fields: {opcode: RoCEv2_CNP, pkey: 0xffff, dest_qp: 0xd2}
  - type: cnp
  - type: icrc
`)
}

func newChecker(t *testing.T, port uint16) *Checker {
	t.Helper()
	c, err := NewChecker(layers.LayerTypeEthernet, port, log.Discard())
	require.NoError(t, err)
	return c
}

func TestCheckValid(t *testing.T) {
	r := newChecker(t, 0).Check(cnpFrame(t))

	require.NoError(t, r.Err)
	assert.True(t, r.RoCE)
	assert.Equal(t, roce.OpcodeCNP, r.Opcode)
	assert.Equal(t, uint32(0x28b6f202), r.Stored)
	assert.Equal(t, r.Stored, r.Computed)
	assert.True(t, r.Valid)
	assert.Equal(t, metrics.ResultValid, r.Status())
}

func TestCheckVariantFieldsRewritten(t *testing.T) {
	frame := cnpFrame(t)
	frame[14+1] = 0x8b    // TOS with CE marked
	frame[14+8] = 7       // TTL after a few hops
	frame[14+20+8+4] = 0 // BTH reserved variant byte
	r := newChecker(t, 0).Check(frame)
	assert.True(t, r.Valid, r.String())
}

func TestCheckInvalid(t *testing.T) {
	frame := cnpFrame(t)
	frame[14+20+8+11] ^= 0x01 // PSN
	r := newChecker(t, 0).Check(frame)

	require.NoError(t, r.Err)
	assert.False(t, r.Valid)
	assert.Equal(t, metrics.ResultInvalid, r.Status())
	assert.NotEqual(t, r.Stored, r.Computed)
	assert.Contains(t, r.String(), "stored=0x28b6f202")
}

func TestCheckNotRoCE(t *testing.T) {
	frame := build(t, `
  - type: udp
    fields: {sport: 1000, dport: 53}
  - type: payload
    fields: {text: hello}
`)
	r := newChecker(t, 0).Check(frame)
	require.NoError(t, r.Err)
	assert.False(t, r.RoCE)
	assert.Equal(t, metrics.ResultNotRoCE, r.Status())
}

func TestCheckTruncated(t *testing.T) {
	frame := cnpFrame(t)
	r := newChecker(t, 0).Check(frame[:14+20+8+6])
	assert.Error(t, r.Err)
	assert.Equal(t, metrics.ResultError, r.Status())
}

func TestCheckUnroutedOpcode(t *testing.T) {
	frame := build(t, `
  - type: udp
  - type: bth
    fields: {opcode: RC_Send_First, dest_qp: 9, psn: 100}
  - type: payload
    fields: {hex: "0102030405060708"}
  - type: icrc
`)
	r := newChecker(t, 0).Check(frame)
	require.NoError(t, r.Err)
	assert.Equal(t, roce.OpcodeRCSendFirst, r.Opcode)
	assert.False(t, r.MissingTrailer)
	assert.True(t, r.Valid)
}

func TestCheckCustomPort(t *testing.T) {
	frame := build(t, `
  - type: udp
    fields: {dport: 4792}
  - type: bth
    fields: {opcode: RoCEv2_CNP}
  - type: cnp
  - type: icrc
`)
	assert.False(t, newChecker(t, 0).Check(frame).RoCE)

	r := newChecker(t, 4792).Check(frame)
	assert.True(t, r.RoCE)
	assert.True(t, r.Valid)
}

func TestCheckInstrumentation(t *testing.T) {
	frame := build(t, `
  - type: udp
  - type: bth
    fields: {opcode: RC_Send_First}
  - type: ixia_float
    fields: {pgid: 7, seq: 42, timestamp: 1000}
  - type: icrc
`)
	r := newChecker(t, 0).Check(frame)
	require.NoError(t, r.Err)
	assert.True(t, r.Valid)
	require.NotNil(t, r.Instrumentation)
	assert.Equal(t, uint32(7), r.Instrumentation.PGID)
	assert.Equal(t, uint32(42), r.Instrumentation.SeqNum)
	assert.Contains(t, r.String(), "ixia(pgid=7 seq=42)")
}

func TestFirstLayer(t *testing.T) {
	lt, err := FirstLayer(layers.LinkTypeEthernet)
	require.NoError(t, err)
	assert.Equal(t, layers.LayerTypeEthernet, lt)

	lt, err = FirstLayer(layers.LinkTypeRaw)
	require.NoError(t, err)
	assert.Equal(t, layers.LayerTypeIPv4, lt)

	_, err = FirstLayer(layers.LinkTypeLinuxSLL)
	assert.Error(t, err)
}

type sliceSource struct {
	frames [][]byte
	errs   []error
	pos    int
}

func (s *sliceSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.pos < len(s.errs) && s.errs[s.pos] != nil {
		err := s.errs[s.pos]
		s.errs[s.pos] = nil
		return nil, gopacket.CaptureInfo{}, err
	}
	if s.pos >= len(s.frames) {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	d := s.frames[s.pos]
	s.pos++
	return d, gopacket.CaptureInfo{Timestamp: time.Unix(int64(s.pos), 0)}, nil
}

func (s *sliceSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *sliceSource) Close() error { return nil }

var _ source.Source = (*sliceSource)(nil)

func TestRunReport(t *testing.T) {
	good := cnpFrame(t)
	bad := cnpFrame(t)
	bad[len(bad)-1] ^= 0xff
	noTrailer := build(t, `
  - type: udp
  - type: bth
    fields: {opcode: RoCEv2_CNP}
  - type: cnp
`)
	src := &sliceSource{
		frames: [][]byte{good, bad, noTrailer, {0x01}},
		errs:   []error{nil, source.ErrTimeout},
	}

	var seen []Result
	rep, err := newChecker(t, 0).Run(context.Background(), src, "test", 0, func(r Result) { seen = append(seen, r) })
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Frames)
	assert.Equal(t, 3, rep.RoCE)
	assert.Equal(t, 1, rep.Valid)
	assert.Equal(t, 1, rep.Invalid)
	assert.Equal(t, 1, rep.MissingTrailer)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 3, rep.ByOpcode[roce.OpcodeCNP])
	assert.False(t, rep.OK())
	assert.Contains(t, rep.String(), "frames=4 roce=3 valid=1 invalid=1")

	require.Len(t, seen, 4)
	for i, r := range seen {
		assert.Equal(t, i, r.Index)
	}
	assert.True(t, seen[1].Timestamp.Equal(time.Unix(2, 0)))
}

func TestRunLimit(t *testing.T) {
	f := cnpFrame(t)
	src := &sliceSource{frames: [][]byte{f, f, f}}
	rep, err := newChecker(t, 0).Run(context.Background(), src, "test", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Frames)
	assert.True(t, rep.OK())
}

func TestRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newChecker(t, 0).Run(ctx, &sliceSource{frames: [][]byte{cnpFrame(t)}}, "test", 0, nil)
	assert.ErrorIs(t, err, context.Canceled)

	boom := errors.New("boom")
	_, err = newChecker(t, 0).Run(context.Background(), &sliceSource{errs: []error{boom}}, "test", 0, nil)
	assert.ErrorIs(t, err, boom)
}
