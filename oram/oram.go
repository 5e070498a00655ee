package oram

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/etclab/cloakoram/block"
	"github.com/etclab/cloakoram/logging"
	"github.com/etclab/cloakoram/mac"
	"github.com/etclab/cloakoram/posmap"
	"github.com/etclab/cloakoram/stash"
	"github.com/etclab/cloakoram/storage"
)

// PathORAM implements the Path-ORAM access protocol over a Storage
// Adapter, Position Map, Stash, and MAC Table collaborator (spec.md
// §4.5). Operations are not internally locked; callers serialize access
// to a single instance (spec.md §5).
type PathORAM struct {
	cfg       Config
	height    int
	numLeaves int

	storage storage.Adapter
	posMap  *posmap.Map
	stash   *stash.Stash
	macs    *mac.Table

	cache   map[block.BucketID]block.Bucket
	usedIDs map[block.ID]struct{}

	log zerolog.Logger
}

// New creates a PathORAM over explicit collaborators. Use this when you
// need a specific storage backend, or to resume from a restored position
// map / stash / MAC table (see InitializeFromBackup in backup.go).
func New(cfg Config, adapter storage.Adapter, posMap *posmap.Map, st *stash.Stash, macs *mac.Table) (*PathORAM, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	height, numLeaves, _ := cfg.TreeParams()

	return &PathORAM{
		cfg:       cfg,
		height:    height,
		numLeaves: numLeaves,
		storage:   adapter,
		posMap:    posMap,
		stash:     st,
		macs:      macs,
		cache:     make(map[block.BucketID]block.Bucket),
		usedIDs:   make(map[block.ID]struct{}),
		log:       logging.WithComponent("oram"),
	}, nil
}

// NewInMemory creates a PathORAM backed by an in-memory adapter with no
// at-rest encryption, a fresh position map, an empty stash, and a fresh
// key. Convenient for tests.
func NewInMemory(cfg Config) (*PathORAM, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	height, numLeaves, totalBuckets := cfg.TreeParams()

	adapter := storage.NewMemoryAdapter(totalBuckets, cfg.BucketSize, cfg.BlockWidth)
	key, err := mac.GenerateKey()
	if err != nil {
		return nil, err
	}

	o, err := New(cfg, adapter,
		posmap.New(uint64(numLeaves)),
		stash.New(cfg.StashCapacity(height), cfg.BlockWidth),
		mac.NewTable(key))
	if err != nil {
		return nil, err
	}
	if err := o.Bootstrap(); err != nil {
		return nil, err
	}
	return o, nil
}

// Bootstrap zero-fills storage and computes every bucket's initial MAC,
// then leaves initialization mode (spec.md §4.4). Must run exactly once,
// before the first user access.
func (o *PathORAM) Bootstrap() error {
	if err := o.storage.FillWithZeroes(); err != nil {
		return fmt.Errorf("oram: bootstrap fill: %w", err)
	}
	return o.ComputeAndStoreAllBucketMACs()
}

// ComputeAndStoreAllBucketMACs iterates every bucket, fetches it through
// the cache, computes its MAC, and writes it back, then leaves
// initialization mode (spec.md §4.5).
func (o *PathORAM) ComputeAndStoreAllBucketMACs() error {
	total := o.storage.NumBuckets()
	ids := make([]block.BucketID, total)
	for i := range ids {
		ids[i] = block.BucketID(i + 1)
	}
	buckets, err := o.storage.Get(ids)
	if err != nil {
		return fmt.Errorf("oram: fetch buckets for MAC init: %w", err)
	}
	for i, id := range ids {
		o.macs.ComputeAndStore(id, buckets[i])
		o.cache[id] = buckets[i]
	}
	if err := o.syncCache(); err != nil {
		return err
	}
	o.macs.FinishInitializing()
	return nil
}

// Height returns the tree height H.
func (o *PathORAM) Height() int { return o.height }

// NumLeaves returns the number of leaf buckets.
func (o *PathORAM) NumLeaves() int { return o.numLeaves }

// Capacity returns the configured number of addressable blocks.
func (o *PathORAM) Capacity() int { return o.cfg.NumBlocks }

// BlockWidth returns W.
func (o *PathORAM) BlockWidth() int { return o.cfg.BlockWidth }

// StashSize returns the current stash occupancy.
func (o *PathORAM) StashSize() int { return o.stash.Len() }

// UsedBlockIDs returns every block id ever written, ascending.
func (o *PathORAM) UsedBlockIDs() []block.ID {
	out := make([]block.ID, 0, len(o.usedIDs))
	for id := range o.usedIDs {
		out = append(out, id)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Get performs an oblivious read. A never-written id returns (nil, nil) —
// spec.md's NotFound contract, not an error.
func (o *PathORAM) Get(id block.ID) ([]byte, error) {
	if err := o.checkID(id); err != nil {
		return nil, err
	}
	payload, err := o.access(id, nil)
	if err != nil {
		return nil, err
	}
	if err := o.syncCache(); err != nil {
		return nil, err
	}
	return payload, nil
}

// Put performs an oblivious write and returns the payload now stored for
// id: a copy of payload, read back from the stash after the write.
func (o *PathORAM) Put(id block.ID, payload []byte) ([]byte, error) {
	if err := o.checkID(id); err != nil {
		return nil, err
	}
	if len(payload) != o.cfg.BlockWidth {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidDataSize, len(payload), o.cfg.BlockWidth)
	}
	prev, err := o.access(id, payload)
	if err != nil {
		return nil, err
	}
	if err := o.syncCache(); err != nil {
		return nil, err
	}
	o.usedIDs[id] = struct{}{}
	return prev, nil
}

func (o *PathORAM) checkID(id block.ID) error {
	if uint64(id) >= uint64(o.cfg.NumBlocks) {
		return fmt.Errorf("%w: %d", ErrInvalidBlockID, id)
	}
	return nil
}

// access implements spec.md §4.5's six-step protocol. newPayload == nil
// means a read.
func (o *PathORAM) access(id block.ID, newPayload []byte) ([]byte, error) {
	prevLeaf, err := o.posMap.Get(id)
	if err != nil {
		return nil, err
	}
	newLeaf, err := o.randomLeaf()
	if err != nil {
		return nil, err
	}
	o.posMap.Set(id, newLeaf)

	path := o.Path(prevLeaf)
	if err := o.readPathIntoStash(path); err != nil {
		return nil, err
	}

	if newPayload != nil {
		if err := o.stash.Update(id, newPayload); err != nil {
			return nil, err
		}
	}

	payload, _ := o.stash.Get(id)

	if err := o.evictWithStrategy(prevLeaf, path); err != nil {
		return nil, err
	}
	return payload, nil
}

// randomLeaf returns a cryptographically random leaf in [0, numLeaves).
func (o *PathORAM) randomLeaf() (block.Leaf, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(o.numLeaves)))
	if err != nil {
		return 0, fmt.Errorf("oram: sample random leaf: %w", err)
	}
	return block.Leaf(n.Int64()), nil
}

// Path returns the BucketIDs from root (index 0) to the leaf bucket for
// leaf (index height-1), via bucketForLevelLeaf.
func (o *PathORAM) Path(leaf block.Leaf) []block.BucketID {
	path := make([]block.BucketID, o.height)
	for level := 0; level < o.height; level++ {
		path[level] = o.bucketForLevelLeaf(level, leaf)
	}
	return path
}

// bucketForLevelLeaf maps a (level, leaf) coordinate to its bucket id
// (spec.md §4.5's pure helper).
func (o *PathORAM) bucketForLevelLeaf(level int, leaf block.Leaf) block.BucketID {
	shift := uint(o.height - 1 - level)
	return block.BucketID((uint64(leaf) + (1 << uint(o.height-1))) >> shift)
}

// canInclude reports whether a block currently assigned to blockLeaf may
// be placed in the bucket at the given level of pathLeaf's path.
func (o *PathORAM) canInclude(pathLeaf, blockLeaf block.Leaf, level int) bool {
	return o.bucketForLevelLeaf(level, pathLeaf) == o.bucketForLevelLeaf(level, blockLeaf)
}

// readPathIntoStash loads every bucket on path into the write-back cache
// (fetching + MAC-verifying on a cache miss), and moves every non-empty
// block found into the stash.
func (o *PathORAM) readPathIntoStash(path []block.BucketID) error {
	for _, id := range path {
		bk, err := o.fetchBucket(id)
		if err != nil {
			return err
		}
		for _, b := range bk {
			if b.IsEmpty() {
				continue
			}
			if err := o.stash.Update(b.ID, b.Payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchBucket returns a bucket via the write-back cache, verifying its
// MAC on a cache miss (spec.md §4.5's "Write-back cache").
func (o *PathORAM) fetchBucket(id block.BucketID) (block.Bucket, error) {
	if bk, ok := o.cache[id]; ok {
		return bk, nil
	}
	bk, err := o.storage.GetInternal(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrIO, err)
	}
	if !o.macs.Verify(id, bk) {
		o.log.Error().Uint64("bucket_id", uint64(id)).Msg("bucket MAC verification failed")
		return nil, fmt.Errorf("%w: bucket %d", ErrIntegrity, id)
	}
	o.cache[id] = bk
	return bk, nil
}

// syncCache flushes every cached bucket to storage and clears the cache —
// the hard durability barrier spec.md §5 describes.
func (o *PathORAM) syncCache() error {
	if len(o.cache) == 0 {
		return nil
	}
	reqs := make([]storage.SetRequest, 0, len(o.cache))
	for id, bk := range o.cache {
		reqs = append(reqs, storage.SetRequest{ID: id, Bucket: bk})
	}
	if err := o.storage.Set(reqs); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrIO, err)
	}
	o.cache = make(map[block.BucketID]block.Bucket)
	return nil
}
