package storage

import (
	"fmt"

	"github.com/etclab/cloakoram/block"
)

// MemoryAdapter implements Adapter over in-memory slices. Adapted from
// etclab/pathoram-go's InMemoryStorage: blocks here carry only (ID,
// Payload) since leaf assignment lives in the position map, not the
// stored block, per spec.md's data model.
type MemoryAdapter struct {
	buckets    []block.Bucket
	bucketSize int
	blockWidth int
}

// NewMemoryAdapter creates an in-memory adapter with the given geometry.
// Call FillWithZeroes before first use.
func NewMemoryAdapter(numBuckets, bucketSize, blockWidth int) *MemoryAdapter {
	return &MemoryAdapter{
		buckets:    make([]block.Bucket, numBuckets),
		bucketSize: bucketSize,
		blockWidth: blockWidth,
	}
}

func (a *MemoryAdapter) FillWithZeroes() error {
	for i := range a.buckets {
		bk, err := randomBucket(a.bucketSize, a.blockWidth)
		if err != nil {
			return err
		}
		a.buckets[i] = bk
	}
	return nil
}

func (a *MemoryAdapter) Get(ids []block.BucketID) ([]block.Bucket, error) {
	return batchGetLoop(a, ids)
}

func (a *MemoryAdapter) Set(reqs []SetRequest) error {
	return batchSetLoop(a, reqs)
}

func (a *MemoryAdapter) GetInternal(id block.BucketID) (block.Bucket, error) {
	idx, err := a.index(id)
	if err != nil {
		return nil, err
	}
	return a.buckets[idx].Clone(), nil
}

func (a *MemoryAdapter) SetInternal(id block.BucketID, bk block.Bucket) error {
	idx, err := a.index(id)
	if err != nil {
		return err
	}
	if len(bk) != a.bucketSize {
		return fmt.Errorf("%w: bucket has %d blocks, want %d", ErrOutOfRange, len(bk), a.bucketSize)
	}
	a.buckets[idx] = bk.Clone()
	return nil
}

func (a *MemoryAdapter) index(id block.BucketID) (int, error) {
	idx := int(id) - 1 // BucketID is 1-based
	if idx < 0 || idx >= len(a.buckets) {
		return 0, fmt.Errorf("%w: bucket %d", ErrOutOfRange, id)
	}
	return idx, nil
}

func (a *MemoryAdapter) SupportsBatchGet() bool { return true }
func (a *MemoryAdapter) SupportsBatchSet() bool { return true }
func (a *MemoryAdapter) NumBuckets() int        { return len(a.buckets) }
func (a *MemoryAdapter) BucketSize() int        { return a.bucketSize }
func (a *MemoryAdapter) BlockWidth() int        { return a.blockWidth }
