package replica

import (
	"context"
	"testing"

	"github.com/etclab/cloakoram/query"
	"github.com/etclab/cloakoram/shamir"
)

func testClusterConfig(numBlocks int) ClusterConfig {
	cc := DefaultClusterConfig()
	cc.NumBlocks = numBlocks
	cc.BlockWidth = 4096
	cc.Shamir = shamir.Config{N: 4, K: 2, Modulus: 9999999967}
	return cc
}

func sampleTuples() []shamir.Tuple {
	return []shamir.Tuple{
		{
			OrderKey: 1, PartKey: 10, SuppKey: 100, LineNumber: 1,
			Quantity: 17, ExtPrice: 1000.00, Discount: 0.05, Tax: 0.02,
			RetFlag: 'N', LineStatus: 'O',
			ShipDate: "1996-03-13", CommitDate: "1996-02-12", RecDate: "1996-03-22",
			ShipInstruct: "DELIVER IN PERSON", ShipMode: "TRUCK", Comment: "fast",
		},
		{
			OrderKey: 2, PartKey: 20, SuppKey: 200, LineNumber: 1,
			Quantity: 5, ExtPrice: 500.00, Discount: 0.00, Tax: 0.00,
			RetFlag: 'N', LineStatus: 'F',
			ShipDate: "1997-01-01", CommitDate: "1996-12-20", RecDate: "1997-01-05",
			ShipInstruct: "TAKE BACK RETURN", ShipMode: "MAIL", Comment: "slow",
		},
		{
			OrderKey: 3, PartKey: 30, SuppKey: 300, LineNumber: 1,
			Quantity: 25, ExtPrice: 2500.00, Discount: 0.10, Tax: 0.05,
			RetFlag: 'R', LineStatus: 'F',
			ShipDate: "1998-05-05", CommitDate: "1998-04-20", RecDate: "1998-05-10",
			ShipInstruct: "NONE", ShipMode: "AIR", Comment: "broken",
		},
	}
}

// TestIngestQueryCount is spec.md's end-to-end scenario: ingest tuples,
// run a COUNT/equality query, and check every replica agrees on the
// (non-shared) count.
func TestIngestQueryCount(t *testing.T) {
	cc := testClusterConfig(64)
	set, err := NewInMemorySet(cc)
	if err != nil {
		t.Fatalf("NewInMemorySet() error = %v", err)
	}

	tuples := sampleTuples()
	if err := set.Ingest(context.Background(), tuples); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	vectors, err := shamir.Encode(set.cfg, set.masterKey, tuples[0])
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	plan := query.NewPlan(query.Count, shamir.OrderKey, query.And, []query.Filter{
		{Attribute: shamir.RetFlag, ShareValue: vectors[0][shamir.RetFlag]},
	})
	results, err := set.Query(context.Background(), plan)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != cc.Shamir.N {
		t.Fatalf("Query() returned %d results, want %d", len(results), cc.Shamir.N)
	}
	for i, r := range results {
		if r.Count != 2 {
			t.Errorf("replica %d: Count = %d, want 2 (two tuples have RetFlag 'N')", i, r.Count)
		}
	}
}

// TestIngestQuerySum checks a SUM query's per-replica share sums
// reconstruct to the plaintext total across matching tuples.
func TestIngestQuerySum(t *testing.T) {
	cc := testClusterConfig(64)
	set, err := NewInMemorySet(cc)
	if err != nil {
		t.Fatalf("NewInMemorySet() error = %v", err)
	}

	tuples := sampleTuples()
	if err := set.Ingest(context.Background(), tuples); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	vectors, err := shamir.Encode(set.cfg, set.masterKey, tuples[0])
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	plan := query.NewPlan(query.Sum, shamir.ExtPrice, query.And, []query.Filter{
		{Attribute: shamir.RetFlag, ShareValue: vectors[0][shamir.RetFlag]},
	})
	results, err := set.Query(context.Background(), plan)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	shares := make([]shamir.Share, set.cfg.K)
	for i := 0; i < set.cfg.K; i++ {
		shares[i] = shamir.Share{X: int64(i + 1), Y: results[i].Sum}
	}
	got, err := shamir.Reconstruct(shares, set.cfg.K, set.cfg.Modulus)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	want := shamir.NormalizeDecimal(1000.00) + shamir.NormalizeDecimal(500.00)
	if got != want {
		t.Errorf("reconstructed SUM = %d, want %d", got, want)
	}
}

func TestNewSetMismatchedReplicaCount(t *testing.T) {
	cc := testClusterConfig(16)
	cc.Shamir = shamir.Config{N: 3, K: 2, Modulus: 9999999967}
	set, err := NewInMemorySet(cc)
	if err != nil {
		t.Fatalf("NewInMemorySet() error = %v", err)
	}
	if _, err := NewSet(set.Orams[:2], cc.Shamir, set.masterKey); err == nil {
		t.Fatal("expected error for mismatched oram/N count, got nil")
	}
}
