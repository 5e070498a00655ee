// Package stash implements the Path-ORAM client-side overflow buffer
// (spec.md §4.3): a bounded BlockID -> payload map with a fixed payload
// width, persisted as concatenated fixed-width records.
package stash

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/etclab/cloakoram/block"
	"github.com/etclab/cloakoram/logging"
)

// ErrOverflow is returned when an Add/Update would exceed the stash's
// capacity. spec.md I4 treats this as fatal, not recoverable.
var ErrOverflow = errors.New("stash: capacity exceeded")

// Stash is the bounded BlockID -> payload overflow buffer.
type Stash struct {
	capacity int
	width    int
	entries  map[block.ID][]byte
	order    []block.ID // ids in insertion order; kept by Add/Delete, not read by GetAll
}

// New creates an empty stash with the given capacity and payload width.
func New(capacity, width int) *Stash {
	return &Stash{
		capacity: capacity,
		width:    width,
		entries:  make(map[block.ID][]byte),
	}
}

// Add inserts a new entry. Returns ErrOverflow if the stash is already at
// capacity and id is not already present.
func (s *Stash) Add(id block.ID, payload []byte) error {
	if _, exists := s.entries[id]; !exists && len(s.entries) >= s.capacity {
		return fmt.Errorf("%w: %d entries (limit %d)", ErrOverflow, len(s.entries), s.capacity)
	}
	s.entries[id] = s.fit(payload)
	s.order = append(s.order, id)
	return nil
}

// Update overwrites an existing entry, or behaves like Add if absent.
func (s *Stash) Update(id block.ID, payload []byte) error {
	if _, exists := s.entries[id]; exists {
		s.entries[id] = s.fit(payload)
		return nil
	}
	return s.Add(id, payload)
}

// fit pads or truncates payload to the stash's established width
// (spec.md §4.3: "MUST pad or truncate input to the established width").
func (s *Stash) fit(payload []byte) []byte {
	out := make([]byte, s.width)
	copy(out, payload)
	return out
}

// Get returns the payload for id, or (nil, false) if absent.
func (s *Stash) Get(id block.ID) ([]byte, bool) {
	p, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, true
}

// Exists reports whether id is currently in the stash.
func (s *Stash) Exists(id block.ID) bool {
	_, ok := s.entries[id]
	return ok
}

// Delete removes id from the stash, if present.
func (s *Stash) Delete(id block.ID) {
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the current stash occupancy.
func (s *Stash) Len() int {
	return len(s.entries)
}

// Entry pairs a block id with its stash payload.
type Entry struct {
	ID      block.ID
	Payload []byte
}

// GetAll returns every entry in a Fisher-Yates-shuffled order, matching
// the teacher's bulk-load shuffle-then-place idiom: no caller should be
// able to infer anything from stash iteration order.
func (s *Stash) GetAll() ([]Entry, error) {
	out := make([]Entry, 0, len(s.entries))
	for id, payload := range s.entries {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		out = append(out, Entry{ID: id, Payload: cp})
	}
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return nil, err
		}
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func randomIndex(n int) (int, error) {
	j, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("stash: shuffle: %w", err)
	}
	return int(j.Int64()), nil
}

// StoreToFile persists the stash as concatenated
// (8-byte block-id || W-byte payload) records (spec.md §6).
func (s *Stash) StoreToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stash: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := make([]byte, 8)
	for id, payload := range s.entries {
		binary.LittleEndian.PutUint64(header, uint64(id))
		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("stash: write id %d: %w", id, err)
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("stash: write payload for %d: %w", id, err)
		}
	}
	return w.Flush()
}

// LoadFromFile restores a stash previously written by StoreToFile. Records
// whose block id is NIL or >= numBlocks are skipped and logged, per
// spec.md §4.3's "loader skips records whose block-id looks impossible".
func LoadFromFile(path string, capacity, width int, numBlocks uint64) (*Stash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stash: open %s: %w", path, err)
	}
	defer f.Close()

	s := New(capacity, width)
	log := logging.WithComponent("stash")
	r := bufio.NewReader(f)
	header := make([]byte, 8)
	payload := make([]byte, width)
	for {
		_, err := io.ReadFull(r, header)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stash: read id: %w", err)
		}
		id := block.ID(binary.LittleEndian.Uint64(header))

		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("stash: read payload for %d: %w", id, err)
		}

		if id == block.NIL || uint64(id) >= numBlocks {
			log.Warn().Uint64("block_id", uint64(id)).Msg("skipping implausible stash record")
			continue
		}
		if err := s.Add(id, payload); err != nil {
			return nil, err
		}
	}
	return s, nil
}
