package oram

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/etclab/cloakoram/block"
	"github.com/etclab/cloakoram/mac"
	"github.com/etclab/cloakoram/posmap"
	"github.com/etclab/cloakoram/stash"
	"github.com/etclab/cloakoram/storage"
)

// Backup writes every piece of durable state for replica index i into
// dir, in the layout spec.md §6 describes: storage_server_{i}.bin,
// position-map_server_{i}.bin, stash_server_{i}.bin,
// mac_map_server_{i}.bin, used_block_ids_server_{i}.bin,
// key_server_{i}.bin, and common_secret_share_size.txt.
func (o *PathORAM) Backup(dir string, i int, enc storage.Encryptor, key mac.Key, numTuples int) error {
	if err := o.syncCache(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("oram: backup: mkdir %s: %w", dir, err)
	}

	if err := writeStorageBackup(filepath.Join(dir, serverFile("storage", i, "bin")), o.storage, enc); err != nil {
		return err
	}
	if err := o.posMap.StoreToFile(filepath.Join(dir, serverFile("position-map", i, "bin")), uint64(o.cfg.NumBlocks)); err != nil {
		return fmt.Errorf("oram: backup position map: %w", err)
	}
	if err := o.stash.StoreToFile(filepath.Join(dir, serverFile("stash", i, "bin"))); err != nil {
		return fmt.Errorf("oram: backup stash: %w", err)
	}
	if err := o.macs.Save(filepath.Join(dir, serverFile("mac_map", i, "bin"))); err != nil {
		return fmt.Errorf("oram: backup mac table: %w", err)
	}
	if err := writeUsedBlockIDs(filepath.Join(dir, serverFile("used_block_ids", i, "bin")), o.UsedBlockIDs()); err != nil {
		return err
	}
	if err := key.Save(filepath.Join(dir, serverFile("key", i, "bin"))); err != nil {
		return fmt.Errorf("oram: backup key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "common_secret_share_size.txt"), []byte(strconv.Itoa(numTuples)), 0o644); err != nil {
		return fmt.Errorf("oram: backup share size: %w", err)
	}
	return nil
}

func serverFile(name string, i int, ext string) string {
	return fmt.Sprintf("%s_server_%d.%s", name, i, ext)
}

func writeStorageBackup(path string, a storage.Adapter, enc storage.Encryptor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("oram: backup storage: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := storage.ExportBuckets(a, enc, w); err != nil {
		return fmt.Errorf("oram: backup storage: %w", err)
	}
	return w.Flush()
}

func writeUsedBlockIDs(path string, ids []block.ID) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("oram: backup used ids: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := make([]byte, 8)
	binary.LittleEndian.PutUint64(header, uint64(len(ids)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("oram: backup used ids: %w", err)
	}
	rec := make([]byte, 8)
	for _, id := range ids {
		binary.LittleEndian.PutUint64(rec, uint64(id))
		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("oram: backup used ids: %w", err)
		}
	}
	return w.Flush()
}

// InitializeFromBackup restores a PathORAM for replica index i from a
// directory previously populated by Backup. The caller supplies cfg, whose
// dimensions determine height/numLeaves and must match the ones used at
// backup time (a zero cfg.NumBlocks fails validation;
// common_secret_share_size.txt is not read), and the at-rest encryptor
// matching enc used at backup time.
func InitializeFromBackup(dir string, i int, cfg Config, enc storage.Encryptor) (*PathORAM, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	height, numLeaves, totalBuckets := cfg.TreeParams()

	storagePath := filepath.Join(dir, serverFile("storage", i, "bin"))
	sf, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("oram: restore storage: open %s: %w", storagePath, err)
	}
	defer sf.Close()
	adapter, err := storage.ImportBuckets(bufio.NewReader(sf), enc, totalBuckets, cfg.BucketSize, cfg.BlockWidth)
	if err != nil {
		return nil, fmt.Errorf("oram: restore storage: %w", err)
	}

	posMap, err := posmap.LoadFromFile(filepath.Join(dir, serverFile("position-map", i, "bin")), uint64(numLeaves))
	if err != nil {
		return nil, fmt.Errorf("oram: restore position map: %w", err)
	}

	key, err := mac.LoadKey(filepath.Join(dir, serverFile("key", i, "bin")))
	if err != nil {
		return nil, fmt.Errorf("oram: restore key: %w", err)
	}

	st, err := stash.LoadFromFile(filepath.Join(dir, serverFile("stash", i, "bin")), cfg.StashCapacity(height), cfg.BlockWidth, uint64(cfg.NumBlocks))
	if err != nil {
		return nil, fmt.Errorf("oram: restore stash: %w", err)
	}

	macs, err := mac.Load(filepath.Join(dir, serverFile("mac_map", i, "bin")), key)
	if err != nil {
		return nil, fmt.Errorf("oram: restore mac table: %w", err)
	}

	o, err := New(cfg, adapter, posMap, st, macs)
	if err != nil {
		return nil, err
	}

	usedIDs, err := readUsedBlockIDs(filepath.Join(dir, serverFile("used_block_ids", i, "bin")))
	if err != nil {
		return nil, err
	}
	for _, id := range usedIDs {
		o.usedIDs[id] = struct{}{}
	}
	return o, nil
}

func readUsedBlockIDs(path string) ([]block.ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("oram: restore used ids: read %s: %w", path, err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("oram: restore used ids: %s truncated header", path)
	}
	count := binary.LittleEndian.Uint64(data[:8])
	out := make([]block.ID, 0, count)
	off := 8
	for i := uint64(0); i < count; i++ {
		if off+8 > len(data) {
			return nil, fmt.Errorf("oram: restore used ids: %s truncated record %d", path, i)
		}
		out = append(out, block.ID(binary.LittleEndian.Uint64(data[off:off+8])))
		off += 8
	}
	return out, nil
}
