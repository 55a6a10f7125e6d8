package world

import (
	"math"
	"testing"

	"gridrover.ai/internal/sim/tuning"
	"gridrover.ai/internal/sim/world/logic/geom"
)

func TestLoopDetector_CircularPatrol(t *testing.T) {
	det := tuning.Defaults().Detection
	k := NewKnownWorld(det, 0, 0)

	// Patrol the same 4 cells over and over.
	patrol := []geom.Cell{{X: 10, Y: 10}, {X: 11, Y: 10}, {X: 11, Y: 11}, {X: 10, Y: 11}}

	fired := false
	lastCounter := 0
	for i := 0; i < det.BufferCap; i++ {
		c := patrol[i%len(patrol)]
		k.RecordPosition(float64(c.X)+0.5, float64(c.Y)+0.5)
		if k.LoopDetected {
			if !fired && i >= det.BufferCap {
				t.Fatalf("detection after the buffer window (update %d)", i)
			}
			fired = true
			if k.StuckCounter <= lastCounter {
				t.Fatalf("stuck counter not strictly increasing: %d -> %d", lastCounter, k.StuckCounter)
			}
			lastCounter = k.StuckCounter
		}
	}
	if !fired {
		t.Fatalf("circular patrol never detected within the buffer window")
	}
}

// arcPosition walks a wide sweeping arc: fresh cells, low curvature,
// large hull area. The detector must stay quiet on it.
func arcPosition(i int) (float64, float64) {
	const radius = 50.0
	theta := float64(i) * 2 * math.Pi / 180
	return 60 + radius*math.Cos(theta), 60 + radius*math.Sin(theta)
}

func TestLoopDetector_SweepingArcStaysQuiet(t *testing.T) {
	det := tuning.Defaults().Detection
	k := NewKnownWorld(det, 0, 0)
	for i := 0; i < det.BufferCap*2; i++ {
		x, y := arcPosition(i)
		k.RecordPosition(x, y)
	}
	if k.LoopDetected {
		t.Fatalf("sweeping arc flagged as loop (area=%v knot=%v)", k.CoverageArea, k.Knottiness)
	}
	if k.StuckCounter != 0 {
		t.Fatalf("stuck counter %d on a sweeping arc", k.StuckCounter)
	}
}

func TestLoopDetector_CounterDecaysToZeroOnly(t *testing.T) {
	det := tuning.Defaults().Detection
	k := NewKnownWorld(det, 0, 0)

	// Dither first, then walk straight out.
	for i := 0; i < det.BufferCap; i++ {
		k.RecordPosition(5.5, 5.5+float64(i%2))
	}
	if k.StuckCounter == 0 {
		t.Fatalf("dither did not raise the stuck counter")
	}
	for i := 0; i < det.BufferCap*4; i++ {
		x, y := arcPosition(i)
		k.RecordPosition(x, y)
	}
	if k.StuckCounter != 0 {
		t.Fatalf("stuck counter did not decay to zero: %d", k.StuckCounter)
	}
	if k.StuckCounter < 0 {
		t.Fatalf("stuck counter went negative: %d", k.StuckCounter)
	}
}

func TestEscapeTarget_AlwaysInsideMargin(t *testing.T) {
	tune := tuning.Defaults()
	const width, height = 60, 40
	margin := tune.Escape.MarginFrac * math.Min(width, height)

	for seed := int64(0); seed < 200; seed++ {
		rng := newSplitmix(seed)
		k := NewKnownWorld(tune.Detection, 0, 0)
		x := rng.Float64() * width
		y := rng.Float64() * height
		heading := rng.Float64() * 360
		k.StartEscape(rng, x, y, heading, width, height, tune.Escape)
		tx, ty := k.EscapeTarget()
		if tx < margin || tx > width-margin || ty < margin || ty > height-margin {
			t.Fatalf("seed %d: escape target (%v,%v) outside margin %v", seed, tx, ty, margin)
		}
	}
}

func TestEscape_ClearsOnArrivalAndResetsMetrics(t *testing.T) {
	tune := tuning.Defaults()
	k := NewKnownWorld(tune.Detection, 0, 0)
	for i := 0; i < tune.Detection.BufferCap; i++ {
		k.RecordPosition(5.5, 5.5+float64(i%2))
	}
	rng := newSplitmix(7)
	k.StartEscape(rng, 5.5, 5.5, 0, 40, 40, tune.Escape)
	if !k.Escaping() {
		t.Fatalf("escape did not arm")
	}

	tx, ty := k.EscapeTarget()
	if cleared := k.UpdateEscape(tx, ty, tune.Escape); !cleared {
		t.Fatalf("arrival at target did not clear escape")
	}
	if k.Escaping() || k.StuckCounter != 0 || k.LoopDetected || len(k.recent) != 0 {
		t.Fatalf("escape clear did not reset detector state")
	}
}

func TestEscape_CountdownExpires(t *testing.T) {
	tune := tuning.Defaults()
	k := NewKnownWorld(tune.Detection, 0, 0)
	rng := newSplitmix(7)
	k.StartEscape(rng, 20.5, 20.5, 90, 40, 40, tune.Escape)

	cleared := false
	for i := 0; i < tune.Escape.Ticks; i++ {
		// Stay put: neither arrival nor clearance can trigger.
		if k.UpdateEscape(20.5, 20.6, tune.Escape) {
			cleared = true
			break
		}
	}
	if !cleared {
		t.Fatalf("escape did not expire after %d ticks", tune.Escape.Ticks)
	}
}

func TestKnownWorld_MonotonicDiscovery(t *testing.T) {
	k := NewKnownWorld(tuning.Defaults().Detection, 3, 2)
	if !k.DiscoverObject(1) || k.DiscoverObject(1) {
		t.Fatalf("discovery not once-only")
	}
	if k.KnownObjects() != 1 || !k.KnowsObject(1) {
		t.Fatalf("object 1 not known after discovery")
	}
	k.ForgetObject(1)
	if k.KnowsObject(1) || k.KnownObjects() != 0 {
		t.Fatalf("forget did not remove the entry")
	}
	if !k.DiscoverObstacle(0) || k.DiscoverObstacle(0) {
		t.Fatalf("obstacle discovery not once-only")
	}
}
