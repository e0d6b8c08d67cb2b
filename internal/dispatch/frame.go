package dispatch

import (
	"encoding/binary"
	"fmt"
	"io"
)

const maxFrameBytes = 256 << 20 // 256 MiB, generous for tens-of-megabyte chunks

// writeFrame writes data as one length-prefixed logical message.
func writeFrame(w io.Writer, data []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one length-prefixed logical message.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", n, maxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame and ReadFrame expose the same length-prefixed framing used
// between Engine and its connections to any client that speaks the wire
// protocol directly (cmd/worker, protocol tests) without reaching into
// package-private helpers.
func WriteFrame(w io.Writer, data []byte) error { return writeFrame(w, data) }
func ReadFrame(r io.Reader) ([]byte, error)     { return readFrame(r) }
