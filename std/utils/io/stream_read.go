package io

import (
	"errors"
	"io"
)

// MaxSmbusFrame is the largest SMBus block write, PEC included.
const MaxSmbusFrame = 3 + 255 + 1

// SmbusFrameLen returns the length of the SMBus block write at the start
// of b, or 0 when b does not hold the length byte yet. The frame layout is
// [addr][command][count][count bytes][PEC if pec].
func SmbusFrameLen(b []byte, pec bool) int {
	if len(b) < 3 {
		return 0
	}
	n := 3 + int(b[2])
	if pec {
		n++
	}
	return n
}

// ReadSmbusStream reads back-to-back SMBus frames from reader and calls
// onFrame for each complete one until it returns false or the stream ends.
// The frame passed to onFrame is only valid during the call.
func ReadSmbusStream(
	reader io.Reader,
	pec bool,
	onFrame func([]byte) bool,
	ignoreError func(error) bool,
) error {
	recvBuf := make([]byte, MaxSmbusFrame*8)
	recvOff := 0
	frameOff := 0

	for {
		// If less than one frame space remains in buffer, shift to beginning
		if len(recvBuf)-recvOff < MaxSmbusFrame {
			copy(recvBuf, recvBuf[frameOff:recvOff])
			recvOff -= frameOff
			frameOff = 0
		}

		// Read multiple frames at once
		readSize, err := reader.Read(recvBuf[recvOff:])
		recvOff += readSize
		if err != nil {
			if ignoreError != nil && ignoreError(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		for {
			size := SmbusFrameLen(recvBuf[frameOff:recvOff], pec)
			if size == 0 || recvOff-frameOff < size {
				// Incomplete frame
				break
			}
			if !onFrame(recvBuf[frameOff : frameOff+size]) {
				return nil
			}
			frameOff += size
		}
	}
}
