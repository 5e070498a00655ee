package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/etclab/cloakoram/block"
)

// KVClient is the contract a remote key-value backend (Redis, Aerospike,
// ...) must satisfy to back a RemoteAdapter. spec.md scopes an actual
// integration with either store out — this interface plus an in-memory
// reference implementation is the "storage-adapter contract" it asks for
// instead.
type KVClient interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key []byte, value []byte) error
}

// RemoteAdapter implements Adapter over a KVClient, encoding each bucket
// the same way FileAdapter does (independent per-slot AEAD records), so a
// real KVClient only needs to move opaque bytes.
type RemoteAdapter struct {
	client     KVClient
	enc        Encryptor
	numBuckets int
	bucketSize int
	blockWidth int
}

// NewRemoteAdapter wraps client with the given geometry and encryptor.
func NewRemoteAdapter(client KVClient, numBuckets, bucketSize, blockWidth int, enc Encryptor) *RemoteAdapter {
	return &RemoteAdapter{
		client:     client,
		enc:        enc,
		numBuckets: numBuckets,
		bucketSize: bucketSize,
		blockWidth: blockWidth,
	}
}

func (a *RemoteAdapter) FillWithZeroes() error {
	for id := 1; id <= a.numBuckets; id++ {
		bk, err := randomBucket(a.bucketSize, a.blockWidth)
		if err != nil {
			return err
		}
		if err := a.SetInternal(block.BucketID(id), bk); err != nil {
			return err
		}
	}
	return nil
}

func (a *RemoteAdapter) Get(ids []block.BucketID) ([]block.Bucket, error) {
	return batchGetLoop(a, ids)
}

func (a *RemoteAdapter) Set(reqs []SetRequest) error {
	return batchSetLoop(a, reqs)
}

func (a *RemoteAdapter) GetInternal(id block.BucketID) (block.Bucket, error) {
	raw, ok, err := a.client.Get(remoteKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: remote get bucket %d: %v", ErrIO, id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: bucket %d not found", ErrIO, id)
	}
	return decodeBucketRecords(a.enc, id, raw, a.bucketSize)
}

func (a *RemoteAdapter) SetInternal(id block.BucketID, bk block.Bucket) error {
	raw, err := encodeBucketRecords(a.enc, id, bk)
	if err != nil {
		return err
	}
	if err := a.client.Set(remoteKey(id), raw); err != nil {
		return fmt.Errorf("%w: remote set bucket %d: %v", ErrIO, id, err)
	}
	return nil
}

func (a *RemoteAdapter) SupportsBatchGet() bool { return false }
func (a *RemoteAdapter) SupportsBatchSet() bool { return false }
func (a *RemoteAdapter) NumBuckets() int        { return a.numBuckets }
func (a *RemoteAdapter) BucketSize() int        { return a.bucketSize }
func (a *RemoteAdapter) BlockWidth() int        { return a.blockWidth }

func remoteKey(id block.BucketID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// MemoryKVClient is an in-memory KVClient, used for testing RemoteAdapter
// without a real Redis/Aerospike dependency.
type MemoryKVClient struct {
	m map[string][]byte
}

// NewMemoryKVClient creates an empty in-memory KV client.
func NewMemoryKVClient() *MemoryKVClient {
	return &MemoryKVClient{m: make(map[string][]byte)}
}

func (c *MemoryKVClient) Get(key []byte) ([]byte, bool, error) {
	v, ok := c.m[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (c *MemoryKVClient) Set(key []byte, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	c.m[string(key)] = v
	return nil
}
