// Package replica supplies the cluster orchestration spec.md's ingest/
// query data-flow diagram (§2) needs but does not itself name as a
// module: one Path-ORAM instance per Shamir replica, fanned out with
// golang.org/x/sync/errgroup the way other_examples in the retrieved
// pack fan work across goroutines with errgroup.WithContext (SPEC_FULL.md
// §4.9).
package replica

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/etclab/cloakoram/block"
	"github.com/etclab/cloakoram/container"
	"github.com/etclab/cloakoram/logging"
	"github.com/etclab/cloakoram/oram"
	"github.com/etclab/cloakoram/query"
	"github.com/etclab/cloakoram/shamir"
)

// Set owns n Path-ORAM instances, one per Shamir replica, plus the
// shared sharing scheme and the masterKey that drives the deterministic
// share PRF (shamir.Encode). Each PathORAM is touched by exactly one
// goroutine at a time (spec.md §5): Ingest/Query fan out one goroutine
// per replica and never let two goroutines share an instance.
type Set struct {
	Orams     []*oram.PathORAM
	cfg       shamir.Config
	masterKey []byte
	nextBlock uint64
}

// NewSet builds a Set over already-constructed replica ORAMs. len(orams)
// must equal cfg.N.
func NewSet(orams []*oram.PathORAM, cfg shamir.Config, masterKey []byte) (*Set, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if len(orams) != cfg.N {
		return nil, fmt.Errorf("replica: %d orams, want %d (cfg.N)", len(orams), cfg.N)
	}
	return &Set{Orams: orams, cfg: cfg, masterKey: masterKey}, nil
}

// NewInMemorySet builds a Set of cc.Shamir.N in-memory Path-ORAM replicas
// (storage.MemoryAdapter, no at-rest encryption) with a freshly generated
// master key, for tests and local experimentation.
func NewInMemorySet(cc ClusterConfig) (*Set, error) {
	cc.Shamir, _ = cc.Shamir.Validate()
	orams := make([]*oram.PathORAM, cc.Shamir.N)
	oramCfg := cc.OramConfig()
	for i := range orams {
		o, err := oram.NewInMemory(oramCfg)
		if err != nil {
			return nil, fmt.Errorf("replica: build replica %d: %w", i, err)
		}
		orams[i] = o
	}

	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return nil, fmt.Errorf("replica: generate master key: %w", err)
	}

	return NewSet(orams, cc.Shamir, masterKey)
}

// Ingest shares each tuple under s.cfg, batches up to
// container.MaxTuplesPerContainer tuples per container (spec.md I6), and
// writes one container per batch to every replica in parallel.
func (s *Set) Ingest(ctx context.Context, tuples []shamir.Tuple) error {
	log := logging.WithComponent("replica")

	for start := 0; start < len(tuples); start += container.MaxTuplesPerContainer {
		end := min(start+container.MaxTuplesPerContainer, len(tuples))
		batch := tuples[start:end]

		perReplica := make([][][]int64, s.cfg.N)
		for i := range perReplica {
			perReplica[i] = make([][]int64, len(batch))
		}
		for row, t := range batch {
			vectors, err := shamir.Encode(s.cfg, s.masterKey, t)
			if err != nil {
				return fmt.Errorf("replica: encode tuple %d: %w", start+row, err)
			}
			for i, v := range vectors {
				tuple := make([]int64, shamir.TupleWidth)
				copy(tuple, v[:])
				perReplica[i][row] = tuple
			}
		}

		id := block.ID(s.nextBlock)
		s.nextBlock++

		g, gctx := errgroup.WithContext(ctx)
		for i, o := range s.Orams {
			i, o := i, o
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return o.PutContainer(id, perReplica[i], container.Encode)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("replica: ingest block %d: %w", id, err)
		}
		log.Debug().Uint64("block_id", uint64(id)).Int("tuples", len(batch)).Msg("ingested container")
	}
	return nil
}

// Query fans plan out across every replica, one goroutine each, and
// returns one query.Result per replica in replica-index order, ready for
// a trusted client's Lagrange reconstruction (spec.md §4.8/§1).
func (s *Set) Query(ctx context.Context, plan query.Plan) ([]query.Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	evaluator := query.NewEvaluator(s.cfg)
	results := make([]query.Result, len(s.Orams))

	g, gctx := errgroup.WithContext(ctx)
	for i, o := range s.Orams {
		i, o := i, o
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			used := o.UsedBlockIDs()
			r, err := evaluator.Run(o, used, plan)
			if err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
