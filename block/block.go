// Package block defines the primitive types shared by the storage,
// position-map, stash, and ORAM-core packages. Keeping them here, rather
// than in the oram package, lets storage avoid importing oram.
package block

import "math"

// ID identifies a logical block. NIL denotes an empty or dummy slot.
type ID uint64

// NIL is the sentinel block ID for empty/dummy slots and MAC-table
// placeholders.
const NIL ID = math.MaxUint64

// Leaf is a path selector in the binary tree, in [0, 2^(H-1)).
type Leaf uint64

// BucketID is the 1-based level-order index of a tree node; 1 is the root.
type BucketID uint64

// Block is a (ID, Payload) pair. Payload is exactly W bytes once it has
// passed through an ORAM; dummy payloads are W random bytes, never
// zero-length, to preserve indistinguishability (spec.md §9, "Dummy
// payload width").
type Block struct {
	ID      ID
	Payload []byte
}

// IsEmpty reports whether b is a dummy/empty slot.
func (b Block) IsEmpty() bool {
	return b.ID == NIL
}

// Bucket is an ordered sequence of exactly Z Block entries.
type Bucket []Block

// Clone returns a deep copy of the bucket, so callers can mutate it
// without aliasing storage-adapter internals.
func (bk Bucket) Clone() Bucket {
	out := make(Bucket, len(bk))
	for i, b := range bk {
		payload := make([]byte, len(b.Payload))
		copy(payload, b.Payload)
		out[i] = Block{ID: b.ID, Payload: payload}
	}
	return out
}
