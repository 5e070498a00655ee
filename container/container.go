// Package container implements the fixed-width tuple-batch codec
// (spec.md §4.6): up to ~1000 16-wide int64 tuples, length-prefixed and
// padded to a block's width W.
package container

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// TupleWidth is the fixed number of int64 attributes per tuple (spec.md
// §6's attribute encoding table has 16 entries, 0..15).
const TupleWidth = 16

// MaxTuplesPerContainer is spec.md I6's packing bound.
const MaxTuplesPerContainer = 1000

// ErrBlockOverflow is returned when a container's encoded body does not
// fit within the target block width.
var ErrBlockOverflow = errors.New("container: body exceeds block width")

// ErrDeserialization indicates a corrupt or implausible length header
// (spec.md §7): the caller should treat this the same as an IntegrityError.
var ErrDeserialization = errors.New("container: deserialization error")

// Encode linearizes tuples in row-major order as little-endian int64s,
// prefixes an 8-byte length header, and pads the result to exactly width
// bytes with random bytes.
func Encode(tuples [][]int64, width int) ([]byte, error) {
	if len(tuples) > MaxTuplesPerContainer {
		return nil, fmt.Errorf("container: %d tuples exceeds max %d", len(tuples), MaxTuplesPerContainer)
	}

	body := make([]byte, 0, len(tuples)*TupleWidth*8)
	for _, tuple := range tuples {
		if len(tuple) != TupleWidth {
			return nil, fmt.Errorf("container: tuple has %d attributes, want %d", len(tuple), TupleWidth)
		}
		for _, v := range tuple {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			body = append(body, buf[:]...)
		}
	}

	if 8+len(body) > width {
		return nil, fmt.Errorf("%w: %d bytes of body, %d available", ErrBlockOverflow, len(body), width-8)
	}

	out := make([]byte, width)
	binary.LittleEndian.PutUint64(out[:8], uint64(len(body)))
	copy(out[8:], body)
	if _, err := rand.Read(out[8+len(body):]); err != nil {
		return nil, fmt.Errorf("container: pad with random bytes: %w", err)
	}
	return out, nil
}

// Decode reverses Encode: reads the 8-byte length header, then splits the
// declared body into TupleWidth-wide int64 groups, ignoring trailing
// padding.
func Decode(payload []byte) ([][]int64, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: payload shorter than header", ErrDeserialization)
	}
	size := binary.LittleEndian.Uint64(payload[:8])

	if size > uint64(len(payload)-8) {
		return nil, fmt.Errorf("%w: declared size %d exceeds available %d", ErrDeserialization, size, len(payload)-8)
	}
	tupleBytes := uint64(TupleWidth * 8)
	if size%tupleBytes != 0 {
		return nil, fmt.Errorf("%w: size %d not a multiple of %d", ErrDeserialization, size, tupleBytes)
	}

	body := payload[8 : 8+size]
	numTuples := int(size / tupleBytes)
	tuples := make([][]int64, numTuples)
	for i := 0; i < numTuples; i++ {
		tuple := make([]int64, TupleWidth)
		for j := 0; j < TupleWidth; j++ {
			off := i*int(tupleBytes) + j*8
			tuple[j] = int64(binary.LittleEndian.Uint64(body[off : off+8]))
		}
		tuples[i] = tuple
	}
	return tuples, nil
}
