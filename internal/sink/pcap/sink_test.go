package pcap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewSink(&buf)
	require.NoError(t, err)
	ts := time.Unix(1700000000, 0)
	s.now = func() time.Time { return ts }

	require.NoError(t, s.Send([]byte{1, 2, 3}))
	require.NoError(t, s.Send([]byte{4}))
	require.NoError(t, s.Close())

	r, err := pcapgo.NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, 3, ci.Length)
	assert.True(t, ts.Equal(ci.Timestamp))

	data, _, err = r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, data)
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	s, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, s.Send(make([]byte, 60)))
	require.NoError(t, s.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(24+16+60), info.Size())
}

func TestCreateBadPath(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "out.pcap"))
	assert.Error(t, err)
}
