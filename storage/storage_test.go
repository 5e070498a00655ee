package storage

import (
	"bytes"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/etclab/cloakoram/block"
)

func sampleBucket(z, w int) block.Bucket {
	bk := make(block.Bucket, z)
	for i := range bk {
		payload := make([]byte, w)
		payload[0] = byte(i + 1)
		bk[i] = block.Block{ID: block.ID(i + 1), Payload: payload}
	}
	return bk
}

func TestMemoryAdapterSetGetRoundTrip(t *testing.T) {
	a := NewMemoryAdapter(4, 3, 16)
	if err := a.FillWithZeroes(); err != nil {
		t.Fatalf("FillWithZeroes() error = %v", err)
	}

	bk := sampleBucket(3, 16)
	if err := a.SetInternal(block.BucketID(2), bk); err != nil {
		t.Fatalf("SetInternal() error = %v", err)
	}
	got, err := a.GetInternal(block.BucketID(2))
	if err != nil {
		t.Fatalf("GetInternal() error = %v", err)
	}
	for i := range bk {
		if got[i].ID != bk[i].ID || !bytes.Equal(got[i].Payload, bk[i].Payload) {
			t.Errorf("slot %d = %+v, want %+v", i, got[i], bk[i])
		}
	}
}

func TestMemoryAdapterOutOfRange(t *testing.T) {
	a := NewMemoryAdapter(2, 3, 16)
	if err := a.FillWithZeroes(); err != nil {
		t.Fatalf("FillWithZeroes() error = %v", err)
	}
	if _, err := a.GetInternal(block.BucketID(99)); err == nil {
		t.Fatal("expected ErrOutOfRange, got nil")
	}
}

func TestMemoryAdapterBatchGetSet(t *testing.T) {
	a := NewMemoryAdapter(3, 2, 8)
	if err := a.FillWithZeroes(); err != nil {
		t.Fatalf("FillWithZeroes() error = %v", err)
	}
	reqs := []SetRequest{
		{ID: 1, Bucket: sampleBucket(2, 8)},
		{ID: 3, Bucket: sampleBucket(2, 8)},
	}
	if err := a.Set(reqs); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := a.Get([]block.BucketID{1, 3})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Get() returned %d buckets, want 2", len(got))
	}
}

func TestMemoryAdapterCloneIsolation(t *testing.T) {
	a := NewMemoryAdapter(2, 2, 8)
	if err := a.FillWithZeroes(); err != nil {
		t.Fatalf("FillWithZeroes() error = %v", err)
	}
	bk := sampleBucket(2, 8)
	if err := a.SetInternal(block.BucketID(1), bk); err != nil {
		t.Fatalf("SetInternal() error = %v", err)
	}
	got, err := a.GetInternal(block.BucketID(1))
	if err != nil {
		t.Fatalf("GetInternal() error = %v", err)
	}
	got[0].Payload[0] = 0xFF
	got2, err := a.GetInternal(block.BucketID(1))
	if err != nil {
		t.Fatalf("GetInternal() error = %v", err)
	}
	if got2[0].Payload[0] == 0xFF {
		t.Error("GetInternal() leaked a mutable alias to internal storage")
	}
}

func TestAESGCMEncryptorRoundTrip(t *testing.T) {
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	enc, err := NewAESGCMEncryptor(key)
	if err != nil {
		t.Fatalf("NewAESGCMEncryptor() error = %v", err)
	}

	plaintext := []byte("block-id-8-bytes-and-a-w-byte-payload")
	ct, err := enc.Encrypt(7, 2, plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	pt, err := enc.Decrypt(7, 2, ct)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", pt, plaintext)
	}
}

// TestAESGCMEncryptorWrongAAD checks the AAD binds (bucketID, slot): a
// ciphertext decrypted against the wrong coordinate is rejected.
func TestAESGCMEncryptorWrongAAD(t *testing.T) {
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	enc, err := NewAESGCMEncryptor(key)
	if err != nil {
		t.Fatalf("NewAESGCMEncryptor() error = %v", err)
	}

	ct, err := enc.Encrypt(7, 2, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := enc.Decrypt(7, 3, ct); err == nil {
		t.Fatal("expected Decrypt() to fail under the wrong slot AAD, got nil")
	}
	if _, err := enc.Decrypt(8, 2, ct); err == nil {
		t.Fatal("expected Decrypt() to fail under the wrong bucket AAD, got nil")
	}
}

func TestNoOpEncryptorPassesThrough(t *testing.T) {
	var enc NoOpEncryptor
	data := []byte("unencrypted")
	ct, err := enc.Encrypt(1, 1, data)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !bytes.Equal(ct, data) {
		t.Errorf("Encrypt() = %q, want %q unchanged", ct, data)
	}
}

func TestFileAdapterSetGetRoundTrip(t *testing.T) {
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	enc, err := NewAESGCMEncryptor(key)
	if err != nil {
		t.Fatalf("NewAESGCMEncryptor() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "storage.db")
	a, err := OpenFileAdapter(path, 4, 3, 16, enc)
	if err != nil {
		t.Fatalf("OpenFileAdapter() error = %v", err)
	}
	defer a.Close()

	if err := a.FillWithZeroes(); err != nil {
		t.Fatalf("FillWithZeroes() error = %v", err)
	}

	bk := sampleBucket(3, 16)
	if err := a.SetInternal(block.BucketID(2), bk); err != nil {
		t.Fatalf("SetInternal() error = %v", err)
	}
	got, err := a.GetInternal(block.BucketID(2))
	if err != nil {
		t.Fatalf("GetInternal() error = %v", err)
	}
	for i := range bk {
		if got[i].ID != bk[i].ID || !bytes.Equal(got[i].Payload, bk[i].Payload) {
			t.Errorf("slot %d = %+v, want %+v", i, got[i], bk[i])
		}
	}
}

// TestExportImportBuckets is spec.md P7: a backup round-trips a storage
// adapter's bucket contents.
func TestExportImportBuckets(t *testing.T) {
	a := NewMemoryAdapter(3, 2, 16)
	if err := a.FillWithZeroes(); err != nil {
		t.Fatalf("FillWithZeroes() error = %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := a.SetInternal(block.BucketID(i), sampleBucket(2, 16)); err != nil {
			t.Fatalf("SetInternal(%d) error = %v", i, err)
		}
	}

	var buf bytes.Buffer
	var enc NoOpEncryptor
	if err := ExportBuckets(a, enc, &buf); err != nil {
		t.Fatalf("ExportBuckets() error = %v", err)
	}

	restored, err := ImportBuckets(&buf, enc, 3, 2, 16)
	if err != nil {
		t.Fatalf("ImportBuckets() error = %v", err)
	}
	for i := 1; i <= 3; i++ {
		want, err := a.GetInternal(block.BucketID(i))
		if err != nil {
			t.Fatalf("GetInternal(%d) error = %v", i, err)
		}
		got, err := restored.GetInternal(block.BucketID(i))
		if err != nil {
			t.Fatalf("restored.GetInternal(%d) error = %v", i, err)
		}
		for j := range want {
			if got[j].ID != want[j].ID || !bytes.Equal(got[j].Payload, want[j].Payload) {
				t.Errorf("bucket %d slot %d = %+v, want %+v", i, j, got[j], want[j])
			}
		}
	}
}
