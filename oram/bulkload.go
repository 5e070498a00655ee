package oram

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/etclab/cloakoram/block"
	"github.com/etclab/cloakoram/storage"
)

// Entry is a (BlockID, Payload) record to place during BulkLoad.
type Entry struct {
	ID      block.ID
	Payload []byte
}

// BulkLoad distributes records roughly uniformly across leaves
// (Fisher-Yates shuffled first), packs them into buckets of size Z, and
// writes directly to storage bypassing the stash (spec.md §4.5,
// adapted from the teacher's shuffle-then-place bulk loader). Fails
// with ErrCapacityExceeded if ceil(len(records)/Z) exceeds the number
// of leaves.
//
// Each container is assigned its own distinct leaf and written at that
// leaf's bucket (level H-1): a leaf-level bucket is always the sole
// bucket at depth H-1 of its own root-to-leaf path, so this trivially
// preserves the Path-ORAM invariant without involving the stash.
func (o *PathORAM) BulkLoad(records []Entry) error {
	numContainers := (len(records) + o.cfg.BucketSize - 1) / o.cfg.BucketSize
	if numContainers > o.numLeaves {
		return fmt.Errorf("%w: %d buckets needed, only %d leaves available", ErrCapacityExceeded, numContainers, o.numLeaves)
	}

	shuffled, err := shuffleEntries(records)
	if err != nil {
		return err
	}
	leaves, err := distinctRandomLeaves(numContainers, o.numLeaves)
	if err != nil {
		return err
	}

	reqs := make([]storage.SetRequest, 0, numContainers)
	for i := 0; i < numContainers; i++ {
		leaf := leaves[i]
		lo := i * o.cfg.BucketSize
		hi := lo + o.cfg.BucketSize
		if hi > len(shuffled) {
			hi = len(shuffled)
		}

		bk := make(block.Bucket, 0, o.cfg.BucketSize)
		for _, e := range shuffled[lo:hi] {
			bk = append(bk, block.Block{ID: e.ID, Payload: e.Payload})
			o.posMap.Set(e.ID, leaf)
			o.usedIDs[e.ID] = struct{}{}
		}
		for len(bk) < o.cfg.BucketSize {
			dummy, err := randomDummy(o.cfg.BlockWidth)
			if err != nil {
				return err
			}
			bk = append(bk, dummy)
		}

		id := o.bucketForLevelLeaf(o.height-1, leaf)
		o.macs.ComputeAndStore(id, bk)
		reqs = append(reqs, storage.SetRequest{ID: id, Bucket: bk})
	}

	if err := o.storage.Set(reqs); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrIO, err)
	}
	return nil
}

func shuffleEntries(records []Entry) ([]Entry, error) {
	out := make([]Entry, len(records))
	copy(out, records)
	for i := len(out) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("oram: bulk load shuffle: %w", err)
		}
		j := int(n.Int64())
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// distinctRandomLeaves samples count distinct leaves from [0, numLeaves),
// shuffled, so successive containers don't land in leaf order.
func distinctRandomLeaves(count, numLeaves int) ([]block.Leaf, error) {
	all := make([]block.Leaf, numLeaves)
	for i := range all {
		all[i] = block.Leaf(i)
	}
	for i := len(all) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("oram: bulk load leaf sample: %w", err)
		}
		j := int(n.Int64())
		all[i], all[j] = all[j], all[i]
	}
	return all[:count], nil
}
