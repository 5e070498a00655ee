package query

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ResultDir returns the directory a Plan's per-replica result files are
// written to (spec.md §6: "Query-result directory mirrors the filter
// schema"), namespaced by the plan's uuid so concurrent queries never
// collide.
func ResultDir(root string, plan Plan) string {
	return filepath.Join(root, plan.ID.String())
}

// WriteResult persists replica i's Result to
// <root>/<plan-id>/server_<i>.txt, in the plaintext-decimal, one-value-
// per-line convention spec.md §6 uses for share files:
//
//   - Count:   one line, the tuple count (already identical across
//     replicas — it's a count of matches, not a shared secret).
//   - Sum:     one line, this replica's field-domain sum share.
//   - Avg:     two lines, sum share then count.
//   - Min/Max: one line per matching tuple's share value, so the client
//     reconstructs every candidate before taking the extremum.
func WriteResult(root string, replicaIndex int, r Result) error {
	dir := ResultDir(root, r.Plan)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("query: create result dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("server_%d.txt", replicaIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("query: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	switch r.Plan.Op {
	case Count:
		fmt.Fprintln(w, r.Count)
	case Sum:
		fmt.Fprintln(w, r.Sum)
	case Avg:
		fmt.Fprintln(w, r.Sum)
		fmt.Fprintln(w, r.Count)
	case Min, Max:
		for _, v := range r.Candidates {
			fmt.Fprintln(w, v)
		}
	}
	return w.Flush()
}

// ReadResult reverses WriteResult, for a client reconstructing plan's
// per-replica outputs. plan.Op must match the Op the result was
// written under.
func ReadResult(root string, replicaIndex int, plan Plan) (Result, error) {
	path := filepath.Join(ResultDir(root, plan), fmt.Sprintf("server_%d.txt", replicaIndex))
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("query: open %s: %w", path, err)
	}
	defer f.Close()

	result := Result{Plan: plan}
	sc := bufio.NewScanner(f)
	switch plan.Op {
	case Count:
		if sc.Scan() {
			result.Count, err = strconv.ParseInt(sc.Text(), 10, 64)
		}
	case Sum:
		if sc.Scan() {
			result.Sum, err = strconv.ParseInt(sc.Text(), 10, 64)
		}
	case Avg:
		if sc.Scan() {
			result.Sum, err = strconv.ParseInt(sc.Text(), 10, 64)
		}
		if err == nil && sc.Scan() {
			result.Count, err = strconv.ParseInt(sc.Text(), 10, 64)
		}
	case Min, Max:
		for sc.Scan() {
			var v int64
			v, err = strconv.ParseInt(sc.Text(), 10, 64)
			if err != nil {
				break
			}
			result.Candidates = append(result.Candidates, v)
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("query: parse %s: %w", path, err)
	}
	if serr := sc.Err(); serr != nil {
		return Result{}, fmt.Errorf("query: scan %s: %w", path, serr)
	}
	return result, nil
}
