package indexdb

import (
	"path/filepath"
	"testing"

	"gridrover.ai/internal/sim/tuning"
	"gridrover.ai/internal/sim/world"
)

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteIndex_TickStatsRoundTrip(t *testing.T) {
	s := openTestIndex(t)

	for i := 0; i < 20; i++ {
		err := s.WriteTickStats(world.TickStats{
			Tick:             uint64(i),
			ActiveRobots:     3,
			ObjectsCollected: i / 2,
			Collisions:       i % 3,
			PlansRequested:   i,
			PlanFallbacks:    i % 2,
		})
		if err != nil {
			t.Fatalf("WriteTickStats: %v", err)
		}
	}
	s.Flush()

	st, ok, err := s.LatestStats()
	if err != nil {
		t.Fatalf("LatestStats: %v", err)
	}
	if !ok {
		t.Fatalf("no rows after flush")
	}
	if st.Tick != 19 || st.ObjectsCollected != 9 || st.ActiveRobots != 3 {
		t.Fatalf("latest row mismatch: %+v", st)
	}
}

func TestSQLiteIndex_RecordRun(t *testing.T) {
	s := openTestIndex(t)

	cfg := world.WorldConfig{
		ID: "run-1", Width: 40, Height: 40, Robots: 2, Objects: 3, Obstacles: 1,
		BatteryCap: 100, Seed: 7, TickRateHz: 5,
	}
	if err := s.RecordRun(cfg, tuning.Defaults()); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	var seed int64
	var digest string
	row := s.db.QueryRow(`SELECT seed, tuning_digest FROM runs WHERE run_id = ?`, "run-1")
	if err := row.Scan(&seed, &digest); err != nil {
		t.Fatalf("run row: %v", err)
	}
	if seed != 7 || digest == "" {
		t.Fatalf("run row mismatch: seed=%d digest=%q", seed, digest)
	}

	// Re-recording the same run upserts rather than failing.
	if err := s.RecordRun(cfg, tuning.Defaults()); err != nil {
		t.Fatalf("RecordRun again: %v", err)
	}
}

func TestSQLiteIndex_EmptyIsNotAnError(t *testing.T) {
	s := openTestIndex(t)
	_, ok, err := s.LatestStats()
	if err != nil {
		t.Fatalf("LatestStats: %v", err)
	}
	if ok {
		t.Fatalf("rows in a fresh index")
	}
}

func TestSQLiteIndex_QueueDropNeverBlocks(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan op, 1)}
	s.ch <- op{stats: world.TickStats{Tick: 1}}

	// Full queue: this must return immediately.
	if err := s.WriteTickStats(world.TickStats{Tick: 2}); err != nil {
		t.Fatalf("WriteTickStats: %v", err)
	}
	if len(s.ch) != 1 {
		t.Fatalf("queue depth = %d, want 1", len(s.ch))
	}
}
