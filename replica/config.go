package replica

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/etclab/cloakoram/oram"
	"github.com/etclab/cloakoram/shamir"
)

// ClusterConfig is the on-disk, YAML-encoded description of a replica
// Set's dimensions — the cluster-level counterpart to the teacher's
// plain struct-literal oram.Config, following the layered-config idiom
// cuemby-warren, johnjansen-torua, and opal-lang/opal/runtime all use
// (SPEC_FULL.md §2/§3): a struct-literal default, optionally overridden
// by a YAML file.
type ClusterConfig struct {
	NumBlocks  int           `yaml:"num_blocks"`
	BlockWidth int           `yaml:"block_width"`
	BucketSize int           `yaml:"bucket_size"`
	StashSlack int           `yaml:"stash_slack"`
	BatchLimit int           `yaml:"batch_limit"`
	StorageDir string        `yaml:"storage_dir"`
	Shamir     shamir.Config `yaml:"shamir"`
}

// DefaultClusterConfig returns spec.md §6's constants: BLOCK_SIZE =
// 140800, Z = 3, BATCH_SIZE = 10, and the default (n,k) = (6,3) Shamir
// scheme. NumBlocks is left at 0; callers size it to their dataset.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		BlockWidth: 140800,
		BucketSize: 3,
		StashSlack: 3,
		BatchLimit: 10,
		Shamir:     shamir.DefaultConfig(),
	}
}

// LoadClusterConfig reads and parses a YAML cluster config file, layered
// over DefaultClusterConfig for any field the file omits.
func LoadClusterConfig(path string) (ClusterConfig, error) {
	cfg := DefaultClusterConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("replica: read cluster config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("replica: parse cluster config %s: %w", path, err)
	}
	return cfg, nil
}

// OramConfig projects cc onto the per-replica oram.Config every replica
// in the Set is constructed with.
func (cc ClusterConfig) OramConfig() oram.Config {
	return oram.Config{
		NumBlocks:  cc.NumBlocks,
		BlockWidth: cc.BlockWidth,
		BucketSize: cc.BucketSize,
		StashSlack: cc.StashSlack,
		BatchLimit: cc.BatchLimit,
	}
}
