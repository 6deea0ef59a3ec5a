package afpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/rocev2/internal/core"
)

func TestNewSinkRequiresInterface(t *testing.T) {
	_, err := NewSink("")
	assert.ErrorIs(t, err, core.ErrInterfaceRequired)
}
