// Package query evaluates SQL-style aggregate queries (COUNT / SUM / AVG
// / MIN / MAX under conjunctive or disjunctive equality filters) over a
// Path-ORAM-backed table, entirely in the share domain (spec.md §4.8).
// It never reconstructs plaintext: comparisons are int64 equality checks
// against the Y-coordinate of a Shamir share supplied in the query
// filter (spec.md §6's `shareID.id_j`).
package query

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/etclab/cloakoram/shamir"
)

// Aggregate is one of the five supported query operations.
type Aggregate int

const (
	Count Aggregate = iota
	Sum
	Avg
	Min
	Max
)

func (a Aggregate) String() string {
	switch a {
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	default:
		return "UNKNOWN"
	}
}

// Junction combines a query's filters.
type Junction int

const (
	And Junction = iota
	Or
)

// Filter is one equality test: Tuple[Attribute] == ShareValue, evaluated
// in the share domain — ShareValue is one replica's Y-coordinate of the
// plaintext condition's Shamir share (spec.md §6's `shareID.id_j`), not
// the plaintext condition itself.
type Filter struct {
	Attribute  shamir.Attribute
	ShareValue int64
}

// Plan is one query evaluation request. ID namespaces this plan's result
// files (`result/<id>/server_i.txt`) so concurrent queries never collide
// (spec.md §6's External Interfaces, supplemented per SPEC_FULL.md §3/§4.8
// with google/uuid, the way cuemby-warren scopes per-request artifacts).
type Plan struct {
	ID       uuid.UUID
	Op       Aggregate
	Select   shamir.Attribute
	Filters  []Filter
	Junction Junction
}

// NewPlan builds a Plan with a freshly generated ID.
func NewPlan(op Aggregate, sel shamir.Attribute, junction Junction, filters []Filter) Plan {
	return Plan{ID: uuid.New(), Op: op, Select: sel, Filters: filters, Junction: junction}
}

// ErrNoFilters is returned by Validate when a plan carries no filters.
var ErrNoFilters = errors.New("query: plan has no filters")

// Validate checks a plan is well-formed before evaluation.
func (p Plan) Validate() error {
	if len(p.Filters) == 0 {
		return ErrNoFilters
	}
	if p.Op < Count || p.Op > Max {
		return fmt.Errorf("query: unknown aggregate %d", p.Op)
	}
	return nil
}

// matches evaluates p's filters against one decoded tuple's 16 share
// values, entirely in the share domain (spec.md §4.8 step 3):
// P(t) = (t[attr_0] == cond_0) ⋈ (t[attr_1] == cond_1) ⋈ ...
func (p Plan) matches(tuple []int64) bool {
	switch p.Junction {
	case Or:
		for _, f := range p.Filters {
			if tuple[f.Attribute] == f.ShareValue {
				return true
			}
		}
		return false
	default: // And
		for _, f := range p.Filters {
			if tuple[f.Attribute] != f.ShareValue {
				return false
			}
		}
		return true
	}
}
