package engine_test

import (
	"testing"

	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
)

func TestAggregateFilesDefaultsToPending(t *testing.T) {
	assets := []string{"a.pdf", "b.pdf"}
	statuses := map[string]string{"a.pdf": domain.FileStatusApproved}

	agg := engine.AggregateFiles(assets, statuses)
	if !agg.HasPendingOrRejected {
		t.Fatalf("file without ledger entry must count as pending")
	}
	if agg.AllApproved {
		t.Fatalf("allApproved true with a pending file")
	}

	statuses["b.pdf"] = domain.FileStatusApproved
	agg = engine.AggregateFiles(assets, statuses)
	if agg.HasPendingOrRejected || !agg.AllApproved {
		t.Fatalf("aggregate = %+v, want all approved", agg)
	}
}

func TestAggregateFilesIdempotent(t *testing.T) {
	assets := []string{"a.pdf", "b.pdf", "c.pdf"}
	statuses := map[string]string{
		"a.pdf": domain.FileStatusApproved,
		"b.pdf": domain.FileStatusRejected,
	}
	first := engine.AggregateFiles(assets, statuses)
	second := engine.AggregateFiles(assets, statuses)
	if first != second {
		t.Fatalf("aggregate not stable: %+v vs %+v", first, second)
	}
}

func TestAggregateFilesEmptyAssets(t *testing.T) {
	agg := engine.AggregateFiles(nil, map[string]string{"stale.pdf": domain.FileStatusRejected})
	if agg.HasPendingOrRejected || !agg.AllApproved {
		t.Fatalf("empty assets aggregate = %+v, want {false,true}", agg)
	}
}

func TestAggregateFilesIgnoresUnlistedEntries(t *testing.T) {
	// Ledger entries for files no longer in assets do not affect the result.
	assets := []string{"a.pdf"}
	statuses := map[string]string{
		"a.pdf":    domain.FileStatusApproved,
		"gone.pdf": domain.FileStatusRejected,
	}
	agg := engine.AggregateFiles(assets, statuses)
	if !agg.AllApproved {
		t.Fatalf("stale ledger entry affected aggregate: %+v", agg)
	}
}
