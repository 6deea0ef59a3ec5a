package afpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeSize(t *testing.T) {
	tests := []struct {
		name       string
		bufferMB   int
		snapLen    int
		pageSize   int
		wantFrame  int
		wantBlock  int
		wantBlocks int
	}{
		{"jumbo roce", 8, 9216, 4096, 9280, 593920, 14},
		{"full snap", 8, 65535, 4096, 69632, 69632, 120},
		{"small frames", 1, 1500, 4096, 1552, 4096 * 97, 2},
		{"tiny budget", 1, 65535, 4096, 69632, 69632, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, block, n, err := recomputeSize(tt.bufferMB, tt.snapLen, tt.pageSize)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFrame, frame)
			assert.Equal(t, tt.wantBlock, block)
			assert.Equal(t, tt.wantBlocks, n)

			assert.Zero(t, frame%tpacketAlignment)
			assert.Zero(t, block%tt.pageSize)
			assert.Zero(t, block%frame)
			assert.LessOrEqual(t, block, maxBlockSize)
		})
	}
}

func TestRecomputeSizeInvalid(t *testing.T) {
	for _, args := range [][3]int{{0, 9216, 4096}, {8, 0, 4096}, {8, 9216, 0}, {8, 9216, 4100}} {
		_, _, _, err := recomputeSize(args[0], args[1], args[2])
		assert.Error(t, err, args)
	}
}

func TestLCM(t *testing.T) {
	assert.Equal(t, 12, lcm(4, 6))
	assert.Equal(t, 0, lcm(0, 6))
	assert.Equal(t, 4, gcd(8, 12))
}
