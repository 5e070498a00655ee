package query

import (
	"fmt"

	"github.com/etclab/cloakoram/block"
	"github.com/etclab/cloakoram/container"
	"github.com/etclab/cloakoram/logging"
	"github.com/etclab/cloakoram/shamir"
)

// oram is the subset of *oram.PathORAM the evaluator needs. Declared
// locally so this package never imports oram directly — storage,
// posmap, stash, mac and oram are leaves; query sits above them, and
// taking the interface rather than the concrete type keeps it testable
// without a real Path-ORAM instance.
type oram interface {
	GetContainer(id block.ID, decode func([]byte) ([][]int64, error)) ([][]int64, error)
}

// Result is one replica's accumulated query output (spec.md §4.8 step 4).
// Which fields are populated depends on Op:
//
//   - Count: Count only.
//   - Sum:   Sum, the field-domain sum of every matching tuple's Select
//     attribute share — Shamir sharing is additive, so summing shares at
//     a fixed replica index is itself a valid share of the plaintext
//     sum (spec.md scenario 2, "each of the six replicas emit a decimal
//     sum ... Lagrange interpolation ... yields the plaintext SUM").
//   - Avg:   Sum and Count, so the client divides after reconstructing.
//   - Min/Max: Candidates, one share value per matching tuple, and Count,
//     the number of candidates — shares don't preserve plaintext order, so
//     min/max can only be taken after the client reconstructs every
//     candidate.
type Result struct {
	Plan       Plan
	Count      int64
	Sum        int64
	Candidates []int64
}

// Evaluator runs one Plan against an ORAM's full contents (spec.md §4.8).
type Evaluator struct {
	Modulus int64 // field modulus for Sum's share-domain addition
}

// NewEvaluator builds an Evaluator over cfg's field modulus.
func NewEvaluator(cfg shamir.Config) Evaluator {
	return Evaluator{Modulus: cfg.Modulus}
}

// Run streams every used block-id through the ORAM, decodes its
// container, evaluates plan's predicate on each tuple, and accumulates
// a Result (spec.md §4.8's four-step algorithm). usedIDs should be
// sorted ascending (spec.md step 1); callers typically pass
// oram.PathORAM.UsedBlockIDs() directly, which already returns them so.
func (e Evaluator) Run(o oram, usedIDs []block.ID, plan Plan) (Result, error) {
	if err := plan.Validate(); err != nil {
		return Result{}, err
	}
	log := logging.WithComponent("query")

	result := Result{Plan: plan}
	modulus := e.Modulus
	if modulus == 0 {
		modulus = 1 << 62 // effectively unreduced, for callers that don't share a field modulus
	}

	for _, id := range usedIDs {
		tuples, err := o.GetContainer(id, container.Decode)
		if err != nil {
			return Result{}, fmt.Errorf("query: block %d: %w", id, err)
		}
		for _, tuple := range tuples {
			if len(tuple) != shamir.TupleWidth {
				return Result{}, fmt.Errorf("query: block %d: tuple has %d attributes, want %d", id, len(tuple), shamir.TupleWidth)
			}
			if !plan.matches(tuple) {
				continue
			}
			e.accumulate(&result, tuple, modulus)
		}
	}

	log.Debug().
		Str("plan_id", plan.ID.String()).
		Str("op", plan.Op.String()).
		Int64("count", result.Count).
		Msg("query evaluation complete")
	return result, nil
}

func (e Evaluator) accumulate(result *Result, tuple []int64, modulus int64) {
	switch result.Plan.Op {
	case Count:
		result.Count++
	case Sum:
		result.Sum = addMod(result.Sum, tuple[result.Plan.Select], modulus)
	case Avg:
		result.Sum = addMod(result.Sum, tuple[result.Plan.Select], modulus)
		result.Count++
	case Min, Max:
		result.Candidates = append(result.Candidates, tuple[result.Plan.Select])
		result.Count++
	}
}

func addMod(a, b, m int64) int64 {
	r := (a + b) % m
	if r < 0 {
		r += m
	}
	return r
}
