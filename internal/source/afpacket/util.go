package afpacket

import "fmt"

const (
	tpacketAlignment = 16      // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52      // TPACKET3_HDRLEN, rounded
	maxBlockSize     = 4 << 20 // 4 MB
)

// recomputeSize derives a TPACKET_V3 ring layout from a memory budget.
//
// The kernel requires frameSize to be a multiple of TPACKET_ALIGNMENT and
// blockSize to be a multiple of both pageSize and frameSize. The ring holds
// numBlocks*blockSize bytes, which is at most ringBufferSizeMB unless a
// single block is already larger.
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ringBufferSizeMB must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)
	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Page-sized frames make the frame itself a valid block.
		frameSize = alignUp(frameSize, pageSize)
		blockSize = frameSize
	}

	numBlocks = ringBufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
