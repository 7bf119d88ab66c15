package rundb

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Wainberg/dragonn/metrics"
)

func TestStoreRecordAndList(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	base := time.Unix(1700000000, 0)
	for i, passed := range []bool{true, false, true} {
		run := &Run{
			Label:         "Shallow CNN",
			Seed:          1,
			FirstSequence: "ACGT",
			Result: metrics.Result{
				{Name: metrics.Loss, Value: float64(i)},
				{Name: metrics.AuROC, Value: 0.5},
			},
			Passed:    passed,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(ctx, run); err != nil {
			t.Fatalf("record: %v", err)
		}
		if run.ID == "" {
			t.Fatal("expected an assigned ID")
		}
	}
	if err := store.Record(ctx, &Run{Label: "Deep CNN", Result: metrics.Result{}}); err != nil {
		t.Fatalf("record: %v", err)
	}

	runs, err := store.List(ctx, "Shallow CNN", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs but got %d", len(runs))
	}
	if v, _ := runs[0].Result.Get(metrics.Loss); v != 2 {
		t.Errorf("expected newest run first, got loss %f", v)
	}
	if !runs[0].Passed || runs[1].Passed {
		t.Errorf("unexpected pass flags: %v %v", runs[0].Passed, runs[1].Passed)
	}
	if !runs[2].CreatedAt.Equal(base) {
		t.Errorf("unexpected timestamp: %v", runs[2].CreatedAt)
	}

	latest, ok, err := store.Latest(ctx, "Deep CNN")
	if err != nil || !ok {
		t.Fatalf("latest: %v %v", ok, err)
	}
	if latest.Label != "Deep CNN" {
		t.Errorf("unexpected run: %+v", latest)
	}
	if _, ok, err := store.Latest(ctx, "missing"); err != nil || ok {
		t.Errorf("expected no run, got %v %v", ok, err)
	}
}

func TestStoreRecordNaN(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	run := &Run{
		Label:  "Shallow RNN",
		Result: metrics.Result{{Name: metrics.AuPRC, Value: math.NaN()}},
	}
	if err := store.Record(ctx, run); err != nil {
		t.Fatalf("record: %v", err)
	}
	latest, ok, err := store.Latest(ctx, "Shallow RNN")
	if err != nil || !ok {
		t.Fatalf("latest: %v %v", ok, err)
	}
	if v, _ := latest.Result.Get(metrics.AuPRC); !math.IsNaN(v) {
		t.Errorf("expected NaN but got %f", v)
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, &Run{Label: "x"}); err == nil {
		t.Error("expected error after close")
	}
	if _, err := Open(ctx, ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreErrorContext(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	run := &Run{ID: "dup", Label: "Deep CNN", Result: metrics.Result{}}
	if err := store.Record(ctx, run); err != nil {
		t.Fatal(err)
	}
	err = store.Record(ctx, run)
	if err == nil {
		t.Fatal("expected error for duplicate ID")
	}
	if !strings.HasPrefix(err.Error(), "record run dup: ") {
		t.Errorf("unexpected error: %v", err)
	}
}
