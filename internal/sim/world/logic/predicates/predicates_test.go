package predicates

import (
	"reflect"
	"testing"

	"gridrover.ai/internal/sim/world/logic/geom"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Width:  40,
		Height: 40,
		Robots: []RobotState{
			{ID: 0, X: 5.4, Y: 5.6, Battery: 80, Active: true},
			{ID: 1, X: 12.1, Y: 8.9, Battery: 10, Active: true},
			{ID: 2, X: 30, Y: 30, Battery: 0, Active: false},
		},
		Objects: []ObjectState{
			{ID: 0, X: 5.2, Y: 5.2},
			{ID: 1, X: 20, Y: 20, Collected: true},
		},
		Obstacles: []ObstacleState{
			{ID: 0, X: 15.5, Y: 15.5, Radius: 1.0},
		},
	}
}

func TestExtract_Idempotent(t *testing.T) {
	snap := sampleSnapshot()
	a := Extract(snap, 20, 0.5, 3)
	b := Extract(snap, 20, 0.5, 3)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("extraction not idempotent:\n%+v\nvs\n%+v", a, b)
	}
}

func TestExtract_BlockingAndLowBattery(t *testing.T) {
	s := Extract(sampleSnapshot(), 20, 0.5, 3)

	if !s.Blocking[geom.Cell{X: 5, Y: 5}] || !s.Blocking[geom.Cell{X: 12, Y: 8}] {
		t.Fatalf("active robot cells not blocking: %+v", s.Blocking)
	}
	if s.Blocking[geom.Cell{X: 30, Y: 30}] {
		t.Fatalf("inactive robot cell marked blocking")
	}
	if s.LowBatt[0] || !s.LowBatt[1] {
		t.Fatalf("low-battery marks wrong: %+v", s.LowBatt)
	}
	if _, ok := s.RobotAt[2]; ok {
		t.Fatalf("inactive robot present in robot-at")
	}
}

func TestExtract_CollectedObjectsExcluded(t *testing.T) {
	s := Extract(sampleSnapshot(), 20, 0.5, 3)
	if id, ok := s.ObjectAt[geom.Cell{X: 5, Y: 5}]; !ok || id != 0 {
		t.Fatalf("uncollected object missing: %+v", s.ObjectAt)
	}
	if _, ok := s.ObjectAt[geom.Cell{X: 20, Y: 20}]; ok {
		t.Fatalf("collected object still present")
	}
}

func TestExtract_ObstacleDilation(t *testing.T) {
	s := Extract(sampleSnapshot(), 20, 0.5, 3)
	if !s.Obstacle[geom.Cell{X: 15, Y: 15}] {
		t.Fatalf("obstacle center cell not blocked")
	}
	// Radius 1.0 + dilation 0.5 covers the direct neighbors' centers.
	if !s.Obstacle[geom.Cell{X: 16, Y: 15}] || !s.Obstacle[geom.Cell{X: 15, Y: 16}] {
		t.Fatalf("dilated neighbor cells not blocked: %+v", s.Obstacle)
	}
	if s.Obstacle[geom.Cell{X: 18, Y: 15}] {
		t.Fatalf("cell outside dilation blocked")
	}
}

func TestHomeCell_DistinctPerRobot(t *testing.T) {
	base := geom.Cell{X: 20, Y: 20}
	seen := map[geom.Cell]int{}
	for id := 0; id < 4; id++ {
		h := HomeCell(base, id, 4, 3)
		if prev, dup := seen[h]; dup {
			t.Fatalf("robots %d and %d share home cell %v", prev, id, h)
		}
		seen[h] = id
	}
}

func TestPreconditions(t *testing.T) {
	s := Extract(sampleSnapshot(), 20, 0.5, 3)

	// Robot 0 shares a cell with object 0 and has battery.
	if id, ok := s.CanCollect(0); !ok || id != 0 {
		t.Fatalf("robot 0 should collect object 0, got (%d,%v)", id, ok)
	}
	// Robot 1 is low-battery: no collecting.
	if _, ok := s.CanCollect(1); ok {
		t.Fatalf("low-battery robot allowed to collect")
	}
	// Nobody is standing on a base cell here.
	if s.CanRecharge(0) || s.CanRecharge(1) {
		t.Fatalf("recharge precondition fired away from base")
	}

	// Move robot 1 onto its home cell: recharge applies.
	snap := sampleSnapshot()
	home := HomeCell(geom.Cell{X: 20, Y: 20}, 1, len(snap.Robots), 3)
	snap.Robots[1].X = float64(home.X) + 0.5
	snap.Robots[1].Y = float64(home.Y) + 0.5
	s = Extract(snap, 20, 0.5, 3)
	if !s.CanRecharge(1) {
		t.Fatalf("low-battery robot at home cell cannot recharge")
	}
}

func TestAdjacent(t *testing.T) {
	a := geom.Cell{X: 3, Y: 3}
	for _, c := range []geom.Cell{{X: 4, Y: 3}, {X: 2, Y: 3}, {X: 3, Y: 4}, {X: 3, Y: 2}} {
		if !Adjacent(a, c) {
			t.Fatalf("%v and %v should be adjacent", a, c)
		}
	}
	for _, c := range []geom.Cell{a, {X: 4, Y: 4}, {X: 5, Y: 3}} {
		if Adjacent(a, c) {
			t.Fatalf("%v and %v should not be adjacent", a, c)
		}
	}
}
