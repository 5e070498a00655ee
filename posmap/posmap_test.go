package posmap

import (
	"path/filepath"
	"testing"

	"github.com/etclab/cloakoram/block"
)

func TestGetAssignsAndRemembers(t *testing.T) {
	m := New(16)
	leaf, err := m.Get(block.ID(3))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if leaf >= 16 {
		t.Errorf("Get() assigned leaf %d, want < 16", leaf)
	}
	again, err := m.Get(block.ID(3))
	if err != nil {
		t.Fatalf("Get() second call error = %v", err)
	}
	if again != leaf {
		t.Errorf("Get() on a known id changed from %d to %d", leaf, again)
	}
}

func TestSetOverridesAssignment(t *testing.T) {
	m := New(16)
	m.Set(block.ID(5), block.Leaf(7))
	got, err := m.Get(block.ID(5))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 7 {
		t.Errorf("Get() = %d, want 7", got)
	}
}

func TestSize(t *testing.T) {
	m := New(16)
	if m.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", m.Size())
	}
	if _, err := m.Get(block.ID(1)); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := m.Get(block.ID(2)); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Size() != 2 {
		t.Errorf("Size() = %d, want 2", m.Size())
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	m := New(32)
	m.Set(block.ID(0), block.Leaf(1))
	m.Set(block.ID(5), block.Leaf(17))
	m.Set(block.ID(9), block.Leaf(30))

	path := filepath.Join(t.TempDir(), "posmap.bin")
	if err := m.StoreToFile(path, 10); err != nil {
		t.Fatalf("StoreToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path, 32)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	for _, id := range []block.ID{0, 5, 9} {
		want, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		got, err := loaded.Get(id)
		if err != nil {
			t.Fatalf("loaded.Get() error = %v", err)
		}
		if got != want {
			t.Errorf("id %d: loaded leaf = %d, want %d", id, got, want)
		}
	}
}
