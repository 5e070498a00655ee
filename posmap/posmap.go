// Package posmap implements the Path-ORAM position map: a flat,
// non-recursive BlockID -> Leaf mapping (spec.md's Non-goals explicitly
// exclude recursive position maps). Adapted from
// etclab/pathoram-go's InMemoryPositionMap, generalized with the
// spec's file persistence contract.
package posmap

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/etclab/cloakoram/block"
)

// Map tracks block-to-leaf assignments.
type Map struct {
	m         map[block.ID]block.Leaf
	numLeaves uint64
}

// New creates a position map whose leaves are drawn uniformly from
// [0, numLeaves).
func New(numLeaves uint64) *Map {
	return &Map{m: make(map[block.ID]block.Leaf), numLeaves: numLeaves}
}

// Get returns the leaf position for id, assigning a fresh uniformly
// random leaf on first reference (spec.md §4.2's init-time contract,
// applied lazily rather than eagerly for every possible BlockID).
func (p *Map) Get(id block.ID) (block.Leaf, error) {
	leaf, ok := p.m[id]
	if ok {
		return leaf, nil
	}
	leaf, err := p.randomLeaf()
	if err != nil {
		return 0, err
	}
	p.m[id] = leaf
	return leaf, nil
}

// Set assigns id to leaf.
func (p *Map) Set(id block.ID, leaf block.Leaf) {
	p.m[id] = leaf
}

// Size returns the number of blocks with an assigned position.
func (p *Map) Size() int {
	return len(p.m)
}

func (p *Map) randomLeaf() (block.Leaf, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(p.numLeaves))
	if err != nil {
		return 0, fmt.Errorf("posmap: sample random leaf: %w", err)
	}
	return block.Leaf(n.Uint64()), nil
}

// StoreToFile persists the position map as a flat array of 8-byte leaves
// indexed by BlockID, for ids in [0, capacity) (spec.md §6).
func (p *Map) StoreToFile(path string, capacity uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("posmap: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	buf := make([]byte, 8)
	for id := uint64(0); id < capacity; id++ {
		leaf, ok := p.m[block.ID(id)]
		if !ok {
			leaf = 0
		}
		binary.LittleEndian.PutUint64(buf, uint64(leaf))
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("posmap: write entry %d: %w", id, err)
		}
	}
	return w.Flush()
}

// LoadFromFile restores a position map previously written by StoreToFile.
func LoadFromFile(path string, numLeaves uint64) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("posmap: open %s: %w", path, err)
	}
	defer f.Close()

	m := New(numLeaves)
	r := bufio.NewReader(f)
	buf := make([]byte, 8)
	var id uint64
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("posmap: read entry %d: %w", id, err)
		}
		m.m[block.ID(id)] = block.Leaf(binary.LittleEndian.Uint64(buf))
		id++
	}
	return m, nil
}
