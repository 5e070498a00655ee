package oram

import (
	"fmt"

	"github.com/etclab/cloakoram/block"
)

// Request is one element of a MultiAccess batch: a read (Payload == nil)
// or a write.
type Request struct {
	ID      block.ID
	Payload []byte // nil for a read
}

// Result is MultiAccess's per-request outcome: the payload stored for ID
// once that request has been applied, matching Get/Put — the value read
// for a read (nil if never written), the new value for a write.
type Result struct {
	ID      block.ID
	Payload []byte
}

// MultiAccess processes up to cfg.BatchLimit requests as a single
// oblivious operation (spec.md §4.5): it prefetches the union of every
// request's read path into the write-back cache, applies each request
// against the shared stash in order (each request still runs its own
// eviction), and performs one final sync_cache, so no bucket is fetched
// from storage more than once per batch.
func (o *PathORAM) MultiAccess(reqs []Request) ([]Result, error) {
	if len(reqs) > o.cfg.BatchLimit {
		return nil, fmt.Errorf("%w: %d requests exceeds limit %d", ErrBatchTooLarge, len(reqs), o.cfg.BatchLimit)
	}
	for _, r := range reqs {
		if err := o.checkID(r.ID); err != nil {
			return nil, err
		}
		if r.Payload != nil && len(r.Payload) != o.cfg.BlockWidth {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidDataSize, len(r.Payload), o.cfg.BlockWidth)
		}
	}

	for _, r := range reqs {
		leaf, err := o.posMap.Get(r.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range o.Path(leaf) {
			if _, err := o.fetchBucket(id); err != nil {
				return nil, err
			}
		}
	}

	results := make([]Result, len(reqs))
	for i, r := range reqs {
		payload, err := o.access(r.ID, r.Payload)
		if err != nil {
			return nil, err
		}
		results[i] = Result{ID: r.ID, Payload: payload}
		if r.Payload != nil {
			o.usedIDs[r.ID] = struct{}{}
		}
	}

	if err := o.syncCache(); err != nil {
		return nil, err
	}
	return results, nil
}

// PutContainer encodes tuples as a container payload and writes it to id
// (spec.md §4.6/§4.5 interaction).
func (o *PathORAM) PutContainer(id block.ID, tuples [][]int64, encode func([][]int64, int) ([]byte, error)) error {
	payload, err := encode(tuples, o.cfg.BlockWidth)
	if err != nil {
		return err
	}
	_, err = o.Put(id, payload)
	return err
}

// GetContainer reads id and decodes it back into tuples, or returns
// (nil, nil) if id was never written.
func (o *PathORAM) GetContainer(id block.ID, decode func([]byte) ([][]int64, error)) ([][]int64, error) {
	payload, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	return decode(payload)
}
