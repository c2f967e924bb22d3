package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// openTestStore opens an in-memory SQLiteStore with a controllable clock.
func openTestStore(t *testing.T) (*SQLiteStore, *time.Time) {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func Test_Store_BeginAndFinish(t *testing.T) {
	t.Parallel()
	s, clock := openTestStore(t)
	ctx := context.Background()

	run, err := s.Begin(ctx, "./data/documents", "documents")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if run.ID == "" || run.Status != StatusRunning {
		t.Fatalf("unexpected begun run: %+v", run)
	}

	*clock = clock.Add(3 * time.Second)
	run.Documents, run.Skipped, run.Chunks = 4, 1, 17
	run.Status = StatusSucceeded
	if err := s.Finish(ctx, run); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != run.ID || got.Status != StatusSucceeded {
		t.Errorf("latest = %+v", got)
	}
	if got.Documents != 4 || got.Skipped != 1 || got.Chunks != 17 {
		t.Errorf("counters = %d/%d/%d, want 4/1/17", got.Documents, got.Skipped, got.Chunks)
	}
	if d := got.FinishedAt.Sub(got.StartedAt); d != 3*time.Second {
		t.Errorf("duration = %v, want 3s", d)
	}
}

func Test_Store_LatestEmpty(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	if _, err := s.Latest(context.Background()); !errors.Is(err, ErrNoRuns) {
		t.Errorf("want ErrNoRuns, got %v", err)
	}
}

func Test_Store_RecentNewestFirstAndLimited(t *testing.T) {
	t.Parallel()
	s, clock := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for range 5 {
		run, err := s.Begin(ctx, "docs", "documents")
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		ids = append(ids, run.ID)
		*clock = clock.Add(time.Minute)
	}

	runs, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("want 3 runs, got %d", len(runs))
	}
	for i, want := range []string{ids[4], ids[3], ids[2]} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}
}

func Test_Store_FailedRunKeepsError(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	ctx := context.Background()

	run, err := s.Begin(ctx, "docs", "documents")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	run.Status = StatusFailed
	run.Error = "rag: embedding failed: connection refused"
	if err := s.Finish(ctx, run); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Status != StatusFailed || got.Error != run.Error {
		t.Errorf("latest = %+v", got)
	}
}

func Test_Store_FinishUnknownRun(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	err := s.Finish(context.Background(), Run{ID: "does-not-exist", Status: StatusSucceeded})
	if err == nil {
		t.Fatal("expected error finishing an unknown run")
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "docrag.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	run, err := s1.Begin(ctx, "docs", "documents")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	got, err := s2.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("latest id = %s, want %s", got.ID, run.ID)
	}
	if err := s2.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}
