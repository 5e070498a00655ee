// Package oram implements the Path-ORAM core protocol (Stefanov et al.):
// access/multi-access, the write-back cache, bucket MAC verification, and
// bulk load. Adapted from etclab/pathoram-go's oram.go/eviction.go, with
// the structural changes spec.md calls for: encryption moved to the
// storage adapter, an explicit mac.Table collaborator, and a Stash/PosMap
// that persist independently (spec.md §4.2-§4.4).
package oram

import (
	"errors"
	"fmt"
)

// EvictionStrategy selects how write_path places stash blocks back onto
// the read path. Kept from the teacher as adaptable, non-default
// engineering; spec.md §4.5's write_path is EvictLevelByLevel.
type EvictionStrategy int

const (
	// EvictLevelByLevel iterates levels from leaf to root, greedily
	// filling empty slots. This is spec.md §4.5's write_path.
	EvictLevelByLevel EvictionStrategy = iota

	// EvictGreedyByDepth places each stash block at its deepest possible
	// level first, reducing stash pressure.
	EvictGreedyByDepth

	// EvictDeterministicTwoPath evicts along two paths per access,
	// reducing stash-size variance.
	EvictDeterministicTwoPath

	// EvictConstantTime places every stash block the same way
	// EvictLevelByLevel does, but never branches or exits early on
	// whether a block matched a slot: it always scans the whole stash
	// against the whole path, using crypto/subtle to decide placement
	// without a data-dependent branch. Adapted from the teacher's
	// findInStashConstantTime/canPlaceAtConstantTime/evictConstantTime;
	// costs roughly Z*H*|stash| constant-time comparisons per access in
	// exchange for no access-pattern-dependent branching inside the
	// eviction loop itself.
	EvictConstantTime
)

var (
	// ErrConfiguration reports an inconsistent H/Z/W/capacity configuration.
	ErrConfiguration = errors.New("oram: invalid configuration")
	// ErrCapacityExceeded reports a stash overflow or a bulk load that
	// does not fit the tree.
	ErrCapacityExceeded = errors.New("oram: capacity exceeded")
	// ErrBatchTooLarge reports a MultiAccess call beyond BatchLimit.
	ErrBatchTooLarge = errors.New("oram: batch too large")
	// ErrIntegrity reports a bucket MAC verification failure: the ORAM
	// instance must be considered compromised (spec.md §7).
	ErrIntegrity = errors.New("oram: integrity check failed")
	// ErrInvalidBlockID reports a block id outside [0, NumBlocks).
	ErrInvalidBlockID = errors.New("oram: invalid block id")
	// ErrInvalidDataSize reports a payload whose length isn't BlockWidth.
	ErrInvalidDataSize = errors.New("oram: payload size mismatch")
)

// Config holds Path-ORAM configuration parameters, fixed at construction
// (spec.md §4.5).
type Config struct {
	NumBlocks        int // valid block ids: 0..NumBlocks-1
	BlockWidth       int // W, bytes per block payload
	BucketSize       int // Z, blocks per bucket
	StashSlack       int // c in S = c*H*Z (spec.md I4); default 3
	BatchLimit       int // MultiAccess request cap; default 10 (spec.md's BATCH_SIZE)
	EvictionStrategy EvictionStrategy
}

// Validate checks cfg and fills in defaults, returning a copy.
func (c Config) Validate() (Config, error) {
	if c.NumBlocks <= 0 || c.BlockWidth <= 0 {
		return c, ErrConfiguration
	}
	if c.BucketSize <= 0 {
		c.BucketSize = 3 // spec.md's default Z
	}
	if c.StashSlack <= 0 {
		c.StashSlack = 3 // spec.md I4's c >= 3
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 10 // spec.md's BATCH_SIZE
	}
	return c, nil
}

// TreeParams returns the tree height H, leaf count, and total bucket
// count derived from cfg (spec.md I5).
func (c Config) TreeParams() (height, numLeaves, totalBuckets int) {
	numBuckets := (c.NumBlocks + c.BucketSize - 1) / c.BucketSize
	height = 1
	for (1<<height)-1 < numBuckets {
		height++
	}
	numLeaves = 1 << (height - 1)
	totalBuckets = (1 << height) - 1
	return
}

// StashCapacity returns S = c*H*Z for the given tree height.
func (c Config) StashCapacity(height int) int {
	return c.StashSlack * height * c.BucketSize
}

func (c Config) String() string {
	return fmt.Sprintf("Config{NumBlocks:%d BlockWidth:%d BucketSize:%d}", c.NumBlocks, c.BlockWidth, c.BucketSize)
}
