package oram

import (
	"bytes"
	"testing"

	"github.com/etclab/cloakoram/block"
)

// TestBulkLoadThenGet is spec.md P6: every bulk-loaded record is
// retrievable afterward via the normal access path.
func TestBulkLoadThenGet(t *testing.T) {
	cfg := Config{NumBlocks: 64, BlockWidth: 16, BucketSize: 4}
	o, err := NewInMemory(cfg)
	if err != nil {
		t.Fatalf("NewInMemory() error = %v", err)
	}

	entries := make([]Entry, 20)
	for i := range entries {
		payload := make([]byte, cfg.BlockWidth)
		payload[0] = byte(i + 1)
		entries[i] = Entry{ID: block.ID(i), Payload: payload}
	}

	if err := o.BulkLoad(entries); err != nil {
		t.Fatalf("BulkLoad() error = %v", err)
	}

	for _, e := range entries {
		got, err := o.Get(e.ID)
		if err != nil {
			t.Fatalf("Get(%d) error = %v", e.ID, err)
		}
		if !bytes.Equal(got, e.Payload) {
			t.Errorf("Get(%d) = %x, want %x", e.ID, got, e.Payload)
		}
	}
}

// TestBulkLoadCapacityExceeded is spec.md P6's negative case: more
// containers than available leaves must fail, not silently truncate.
func TestBulkLoadCapacityExceeded(t *testing.T) {
	cfg := Config{NumBlocks: 4, BlockWidth: 16, BucketSize: 1}
	o, err := NewInMemory(cfg)
	if err != nil {
		t.Fatalf("NewInMemory() error = %v", err)
	}

	entries := make([]Entry, o.NumLeaves()+10)
	for i := range entries {
		entries[i] = Entry{ID: block.ID(i), Payload: make([]byte, cfg.BlockWidth)}
	}

	if err := o.BulkLoad(entries); err == nil {
		t.Fatal("expected ErrCapacityExceeded, got nil")
	}
}
