package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "runs.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func sampleRun(id string, status RunStatus) *RunRecord {
	started := time.Now().Add(-2 * time.Second).UTC()
	return &RunRecord{
		ID:          id,
		Status:      status,
		StartedAt:   started,
		CompletedAt: started.Add(time.Second),
		DurationMs:  1000,
		Outputs: []OutputRecord{
			{Name: "app_url", Sensitive: false},
			{Name: "db_url", Sensitive: true},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleRun("run-1", RunSucceeded)
	if err := store.SaveRun(ctx, want); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunSucceeded {
		t.Errorf("status = %s, want succeeded", got.Status)
	}
	if got.DurationMs != 1000 {
		t.Errorf("duration = %d, want 1000", got.DurationMs)
	}
	if len(got.Outputs) != 2 {
		t.Fatalf("outputs = %v, want 2 records", got.Outputs)
	}
	// Outputs come back sorted by name.
	if got.Outputs[0].Name != "app_url" || got.Outputs[0].Sensitive {
		t.Errorf("first output = %+v", got.Outputs[0])
	}
	if got.Outputs[1].Name != "db_url" || !got.Outputs[1].Sensitive {
		t.Errorf("second output = %+v", got.Outputs[1])
	}
}

func TestSaveRunRecordsError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-err", RunFailed)
	run.Outputs = nil
	run.Error = "[provisioning] provisioning resource \"db\" failed"
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-err")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Error == "" {
		t.Error("error message lost")
	}
	if len(got.Outputs) != 0 {
		t.Errorf("outputs = %v, want none", got.Outputs)
	}
}

func TestSaveRunRejectsBadStatus(t *testing.T) {
	store := newTestStore(t)
	run := sampleRun("run-bad", RunStatus("exploded"))
	if err := store.SaveRun(context.Background(), run); err == nil {
		t.Error("invalid status must be rejected")
	}
}

func TestSaveRunRejectsDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.SaveRun(ctx, sampleRun("run-dup", RunSucceeded)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("run-dup", RunSucceeded)); err == nil {
		t.Error("duplicate run id must be rejected")
	}
}

func TestListRunsMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := sampleRun(id, RunSucceeded)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		run.CompletedAt = run.StartedAt.Add(time.Second)
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	if runs[0].ID != "run-c" || runs[2].ID != "run-a" {
		t.Errorf("order = [%s %s %s], want most recent first",
			runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := store.ListRuns(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListRuns limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "run-b" {
		t.Errorf("limited = %+v, want just run-b", limited)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRun(ctx, sampleRun("run-del", RunSucceeded)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.DeleteRun(ctx, "run-del"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := store.GetRun(ctx, "run-del"); err == nil {
		t.Error("deleted run must not be found")
	}
	if err := store.DeleteRun(ctx, "run-del"); err == nil {
		t.Error("deleting a missing run must fail")
	}
}
