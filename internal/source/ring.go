package source

import "fmt"

// ringSize picks AF_PACKET ring geometry for a target buffer size. The kernel
// requires frameSize to be a multiple of TPACKET_ALIGNMENT, and blockSize to
// be a multiple of both the page size and frameSize.
func ringSize(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52

	if bufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)
	if frameSize <= pageSize {
		// Grow until frames tile a page exactly.
		for pageSize%frameSize != 0 {
			frameSize += tpacketAlignment
		}
		blockSize = pageSize
	} else {
		frameSize = alignUp(frameSize, pageSize)
		blockSize = frameSize
	}

	numBlocks = (bufferSizeMB << 20) / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
