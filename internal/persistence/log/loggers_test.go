package log

import (
	"testing"

	"gridrover.ai/internal/sim/world"
)

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	l := NewTickLogger(dir)
	for i := 0; i < 5; i++ {
		err := l.WriteTick(world.TickLogEntry{
			Tick:           uint64(i),
			CollectedTotal: i,
			Digest:         "d",
			Actions: []world.RecordedAction{
				{RobotID: 0, Action: "explore", X: float64(i), Y: 1},
			},
		})
		if err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := ReadTickLog(dir)
	if err != nil {
		t.Fatalf("ReadTickLog: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Tick != uint64(i) || e.CollectedTotal != i {
			t.Fatalf("entry %d out of order: %+v", i, e)
		}
		if len(e.Actions) != 1 || e.Actions[0].Action != "explore" {
			t.Fatalf("entry %d actions corrupted: %+v", i, e.Actions)
		}
	}
}

func TestReadTickLog_MissingDir(t *testing.T) {
	if _, err := ReadTickLog(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing events dir")
	}
}
