package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// FrameHeaderSize is the size of a frame header in bytes
	FrameHeaderSize = 12
	// MaxFrameSize limits the payload of a single frame
	MaxFrameSize = 64 * 1024 * 1024
)

// WriteFrame writes a frame with the format:
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func WriteFrame(w io.Writer, requestID uint64, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", len(data), MaxFrameSize)
	}
	header := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], requestID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(data)))

	// header and payload in a single write where the writer supports it
	b := net.Buffers{header, data}
	_, err := b.WriteTo(w)
	return err
}

// ReadFrame reads a frame using the provided buffer.
// If the buffer is too small, it will allocate a new buffer for the data, so the
// returned payload may or may not alias buf.
func ReadFrame(r io.Reader, buf []byte) (uint64, []byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	requestID := binary.BigEndian.Uint64(header[:8])
	contentLength := binary.BigEndian.Uint32(header[8:12])

	if contentLength == 0 {
		return requestID, []byte{}, nil
	}
	if contentLength > MaxFrameSize {
		return requestID, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", contentLength, MaxFrameSize)
	}

	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(r, buf[:contentLength]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return requestID, nil, err
	}

	return requestID, buf[:contentLength], nil
}
