// Package storage provides bucket-granular persistence for a Path-ORAM
// tree. Adapters own the on-disk/in-remote bytes; they know nothing about
// MACs, the stash, or the Path-ORAM invariant — that is the oram package's
// job.
package storage

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/etclab/cloakoram/block"
)

// ErrIO wraps an underlying I/O failure from an adapter. Adapters surface
// it unchanged; callers never retry.
var ErrIO = errors.New("storage: I/O error")

// ErrOutOfRange is returned for a bucket index outside the adapter's range.
var ErrOutOfRange = errors.New("storage: bucket index out of range")

// SetRequest pairs a bucket id with the bucket to persist at it.
type SetRequest struct {
	ID     block.BucketID
	Bucket block.Bucket
}

// Adapter is the storage-adapter contract (spec.md §4.1). Implementations
// may batch Get/Set natively, or fall back to GetInternal/SetInternal in a
// loop when SupportsBatchGet/SupportsBatchSet is false.
type Adapter interface {
	// FillWithZeroes initializes every bucket slot to a NIL-id block with
	// random-byte payload, indistinguishable from live data.
	FillWithZeroes() error

	// Get reads the specified buckets, preserving order.
	Get(ids []block.BucketID) ([]block.Bucket, error)

	// Set writes the specified buckets. FileAdapter applies one call in a
	// single bbolt transaction; MemoryAdapter and RemoteAdapter write
	// bucket by bucket, so an error part-way leaves the earlier buckets
	// written.
	Set(reqs []SetRequest) error

	// GetInternal/SetInternal are single-bucket primitives for
	// non-batching backends.
	GetInternal(id block.BucketID) (block.Bucket, error)
	SetInternal(id block.BucketID, bucket block.Bucket) error

	SupportsBatchGet() bool
	SupportsBatchSet() bool

	// NumBuckets, BucketSize, and BlockWidth describe the adapter's fixed
	// geometry, set at construction time from the ORAM's tree parameters.
	NumBuckets() int
	BucketSize() int
	BlockWidth() int
}

// batchGetLoop implements Adapter.Get by repeated GetInternal calls. Every
// adapter's Get uses it, including MemoryAdapter's, which reports
// SupportsBatchGet() == true.
func batchGetLoop(a Adapter, ids []block.BucketID) ([]block.Bucket, error) {
	out := make([]block.Bucket, len(ids))
	for i, id := range ids {
		b, err := a.GetInternal(id)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// batchSetLoop implements Adapter.Set by repeated SetInternal calls. It
// backs RemoteAdapter's Set and MemoryAdapter's, which reports
// SupportsBatchSet() == true.
func batchSetLoop(a Adapter, reqs []SetRequest) error {
	for _, r := range reqs {
		if err := a.SetInternal(r.ID, r.Bucket); err != nil {
			return err
		}
	}
	return nil
}

// randomBucket builds a Z-block bucket of all-dummy entries with W random
// payload bytes each (spec.md I2).
func randomBucket(z, w int) (block.Bucket, error) {
	bk := make(block.Bucket, z)
	for i := range bk {
		payload := make([]byte, w)
		if _, err := rand.Read(payload); err != nil {
			return nil, fmt.Errorf("storage: fill random payload: %w", err)
		}
		bk[i] = block.Block{ID: block.NIL, Payload: payload}
	}
	return bk, nil
}

// encodeBucketRecords serializes a bucket as a sequence of independently
// AEAD-sealed slot records (spec.md §4.1's on-disk layout), shared by
// FileAdapter and RemoteAdapter.
func encodeBucketRecords(enc Encryptor, id block.BucketID, bk block.Bucket) ([]byte, error) {
	var out []byte
	for slot, b := range bk {
		rec := make([]byte, 8+len(b.Payload))
		binary.LittleEndian.PutUint64(rec[:8], uint64(b.ID))
		copy(rec[8:], b.Payload)

		ct, err := enc.Encrypt(uint64(id), uint64(slot), rec)
		if err != nil {
			return nil, fmt.Errorf("storage: encrypt bucket %d slot %d: %w", id, slot, err)
		}
		lenPrefix := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenPrefix, uint32(len(ct)))
		out = append(out, lenPrefix...)
		out = append(out, ct...)
	}
	return out, nil
}

// ExportBuckets writes every bucket in id order to w as a sequence of
// (4-byte length, AEAD-sealed bucket bytes) records — the
// storage_server_{i}.bin backup format (spec.md §6).
func ExportBuckets(a Adapter, enc Encryptor, w io.Writer) error {
	n := a.NumBuckets()
	ids := make([]block.BucketID, n)
	for i := range ids {
		ids[i] = block.BucketID(i + 1)
	}
	buckets, err := a.Get(ids)
	if err != nil {
		return fmt.Errorf("storage: export: read buckets: %w", err)
	}
	for i, bk := range buckets {
		raw, err := encodeBucketRecords(enc, ids[i], bk)
		if err != nil {
			return fmt.Errorf("storage: export: encode bucket %d: %w", ids[i], err)
		}
		lenPrefix := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenPrefix, uint32(len(raw)))
		if _, err := w.Write(lenPrefix); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		if _, err := w.Write(raw); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	return nil
}

// ImportBuckets reads numBuckets records written by ExportBuckets from r
// and loads them into a fresh MemoryAdapter.
func ImportBuckets(r io.Reader, enc Encryptor, numBuckets, bucketSize, blockWidth int) (Adapter, error) {
	a := NewMemoryAdapter(numBuckets, bucketSize, blockWidth)
	reqs := make([]SetRequest, 0, numBuckets)
	for i := 0; i < numBuckets; i++ {
		id := block.BucketID(i + 1)
		lenPrefix := make([]byte, 4)
		if _, err := io.ReadFull(r, lenPrefix); err != nil {
			return nil, fmt.Errorf("storage: import: read length for bucket %d: %w", id, err)
		}
		n := binary.LittleEndian.Uint32(lenPrefix)
		raw := make([]byte, n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("storage: import: read bucket %d: %w", id, err)
		}
		bk, err := decodeBucketRecords(enc, id, raw, bucketSize)
		if err != nil {
			return nil, fmt.Errorf("storage: import: decode bucket %d: %w", id, err)
		}
		reqs = append(reqs, SetRequest{ID: id, Bucket: bk})
	}
	if err := a.Set(reqs); err != nil {
		return nil, err
	}
	return a, nil
}

// decodeBucketRecords reverses encodeBucketRecords.
func decodeBucketRecords(enc Encryptor, id block.BucketID, raw []byte, bucketSize int) (block.Bucket, error) {
	bk := make(block.Bucket, 0, bucketSize)
	off := 0
	for slot := 0; slot < bucketSize; slot++ {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("%w: bucket %d truncated", ErrIO, id)
		}
		n := int(binary.LittleEndian.Uint32(raw[off : off+4]))
		off += 4
		if off+n > len(raw) {
			return nil, fmt.Errorf("%w: bucket %d truncated", ErrIO, id)
		}
		ct := raw[off : off+n]
		off += n

		rec, err := enc.Decrypt(uint64(id), uint64(slot), ct)
		if err != nil {
			return nil, fmt.Errorf("storage: decrypt bucket %d slot %d: %w", id, slot, err)
		}
		if len(rec) < 8 {
			return nil, fmt.Errorf("%w: bucket %d slot %d short record", ErrIO, id, slot)
		}
		bid := block.ID(binary.LittleEndian.Uint64(rec[:8]))
		payload := make([]byte, len(rec)-8)
		copy(payload, rec[8:])
		bk = append(bk, block.Block{ID: bid, Payload: payload})
	}
	return bk, nil
}
