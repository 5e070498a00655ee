package query

import (
	"testing"

	"github.com/etclab/cloakoram/shamir"
)

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr error
	}{
		{
			name:    "no filters",
			plan:    NewPlan(Count, shamir.OrderKey, And, nil),
			wantErr: ErrNoFilters,
		},
		{
			name: "valid",
			plan: NewPlan(Count, shamir.OrderKey, And, []Filter{
				{Attribute: shamir.RetFlag, ShareValue: 42},
			}),
			wantErr: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestPlanMatchesAnd(t *testing.T) {
	plan := NewPlan(Count, shamir.OrderKey, And, []Filter{
		{Attribute: shamir.RetFlag, ShareValue: 10},
		{Attribute: shamir.LineStatus, ShareValue: 20},
	})
	tuple := make([]int64, shamir.TupleWidth)
	tuple[shamir.RetFlag] = 10
	tuple[shamir.LineStatus] = 20
	if !plan.matches(tuple) {
		t.Error("matches() = false, want true for tuple satisfying both AND filters")
	}

	tuple[shamir.LineStatus] = 99
	if plan.matches(tuple) {
		t.Error("matches() = true, want false when one AND filter fails")
	}
}

func TestPlanMatchesOr(t *testing.T) {
	plan := NewPlan(Count, shamir.OrderKey, Or, []Filter{
		{Attribute: shamir.RetFlag, ShareValue: 10},
		{Attribute: shamir.LineStatus, ShareValue: 20},
	})
	tuple := make([]int64, shamir.TupleWidth)
	tuple[shamir.RetFlag] = 10
	tuple[shamir.LineStatus] = 99
	if !plan.matches(tuple) {
		t.Error("matches() = false, want true when one OR filter satisfies")
	}

	tuple[shamir.RetFlag] = 1
	if plan.matches(tuple) {
		t.Error("matches() = true, want false when no OR filter satisfies")
	}
}

func TestAggregateString(t *testing.T) {
	tests := []struct {
		agg  Aggregate
		want string
	}{
		{Count, "COUNT"},
		{Sum, "SUM"},
		{Avg, "AVG"},
		{Min, "MIN"},
		{Max, "MAX"},
		{Aggregate(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.agg.String(); got != tt.want {
			t.Errorf("Aggregate(%d).String() = %q, want %q", tt.agg, got, tt.want)
		}
	}
}
