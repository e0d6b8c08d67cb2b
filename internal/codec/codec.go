// Package codec implements the transport codec of spec.md §4.1 and §6: it
// frames a keyed record of scalars, strings, byte sequences, and homogeneous
// numeric arrays into a compact, self-describing binary blob, then wraps it
// with a general-purpose lossless compressor for transmission over a message
// socket.
//
// Encoding uses encoding/gob, exactly the technique the teacher's own
// computation payloads (PiComputeData, WordFrequency) use for their
// "Go-only binary encoding format": gob already carries field names and
// concrete types in the stream, which gives the round-trip identity spec.md
// requires for free. Compression is github.com/klauspost/compress/zstd.
package codec

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ke0m/scaleup/internal/chunkstream"
	"github.com/ke0m/scaleup/internal/errs"
)

func init() {
	// Register every concrete leaf type that may appear inside a
	// chunkstream.Fields value so gob can encode/decode them through the
	// map[string]any interface slots.
	for _, v := range []any{
		int(0), int32(0), int64(0), uint(0), uint32(0), uint64(0),
		float32(0), float64(0), bool(false), string(""),
		[]byte(nil),
		[]int(nil), []int32(nil), []int64(nil),
		[]float32(nil), []float64(nil),
		[]bool(nil), []string(nil),
		[][]float32(nil), [][]float64(nil),
		chunkstream.Fields(nil),
	} {
		gob.Register(v)
	}
}

var (
	encOnce sync.Once
	encPool *zstd.Encoder
	decOnce sync.Once
	decPool *zstd.Decoder
)

func encoder() *zstd.Encoder {
	encOnce.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err) // zstd.NewWriter(nil) with default options never fails
		}
		encPool = enc
	})
	return encPool
}

func decoder() *zstd.Decoder {
	decOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		decPool = dec
	})
	return decPool
}

// Encode serializes payload into a compact binary blob and compresses it
// into one logical message ready to be written to a socket.
func Encode(payload chunkstream.Fields) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(map[string]any(payload)); err != nil {
		return nil, &errs.CodecError{Cause: err}
	}
	return encoder().EncodeAll(buf.Bytes(), nil), nil
}

// Decode reverses Encode. It returns a CodecError if the bytes do not
// decompress and decode into a payload.
func Decode(blob []byte) (chunkstream.Fields, error) {
	raw, err := decoder().DecodeAll(blob, nil)
	if err != nil {
		return nil, &errs.CodecError{Cause: err}
	}
	var m map[string]any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return nil, &errs.CodecError{Cause: err}
	}
	return chunkstream.Fields(m), nil
}
