package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkSend(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	require.NoError(t, s.Send([]byte{0xde, 0xad}))
	require.NoError(t, s.Send([]byte{0x01}))
	require.NoError(t, s.Close())

	assert.Equal(t, "#1 len=2 dead\n#2 len=1 01\n", buf.String())
	assert.Equal(t, Name, s.Name())
}
