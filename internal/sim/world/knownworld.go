package world

import (
	"math"

	"github.com/paulmach/orb"

	"gridrover.ai/internal/sim/tuning"
	"gridrover.ai/internal/sim/world/logic/geom"
	"gridrover.ai/internal/sim/world/logic/predicates"
)

// KnownWorld is one robot's private, partially observed view. Discovered
// entities are arena-indexed booleans (never forgotten once seen, except
// that an object entry is dropped when the object is collected). The
// recent-cell ring buffer feeds the geometric stuck detector.
type KnownWorld struct {
	det tuning.Detection

	objects        []bool
	obstacles      []bool
	objectCount    int
	obstacleCount  int

	visited map[geom.Cell]bool

	recent []geom.Cell // chronological; trimmed to det.BufferCap

	// Known-world bounding box over visited cells.
	minX, minY, maxX, maxY int
	hasBBox                bool

	CoverageArea float64
	Knottiness   float64
	LoopDetected bool
	StuckCounter int

	escape escapeState
}

// Escape-mode states: Inactive, Escaping. The transition to Escaping is
// driven by the decision engine (ShouldVenture); the transitions back
// are geometric and time-boxed.
type escapeState struct {
	Active    bool
	TargetX   float64
	TargetY   float64
	TicksLeft int
	// Clutter centroid: where the robot was when escape armed.
	CentroidX float64
	CentroidY float64
}

func NewKnownWorld(det tuning.Detection, objects, obstacles int) *KnownWorld {
	return &KnownWorld{
		det:       det,
		objects:   make([]bool, objects),
		obstacles: make([]bool, obstacles),
		visited:   map[geom.Cell]bool{},
	}
}

func (k *KnownWorld) DiscoverObject(id int) bool {
	if id < 0 || id >= len(k.objects) || k.objects[id] {
		return false
	}
	k.objects[id] = true
	k.objectCount++
	return true
}

// ForgetObject drops a discovered-object entry. Called only when the
// world object transitions to collected.
func (k *KnownWorld) ForgetObject(id int) {
	if id < 0 || id >= len(k.objects) || !k.objects[id] {
		return
	}
	k.objects[id] = false
	k.objectCount--
}

func (k *KnownWorld) KnowsObject(id int) bool {
	return id >= 0 && id < len(k.objects) && k.objects[id]
}

func (k *KnownWorld) DiscoverObstacle(id int) bool {
	if id < 0 || id >= len(k.obstacles) || k.obstacles[id] {
		return false
	}
	k.obstacles[id] = true
	k.obstacleCount++
	return true
}

func (k *KnownWorld) KnowsObstacle(id int) bool {
	return id >= 0 && id < len(k.obstacles) && k.obstacles[id]
}

func (k *KnownWorld) KnownObjects() int   { return k.objectCount }
func (k *KnownWorld) KnownObstacles() int { return k.obstacleCount }

func (k *KnownWorld) Visited(c geom.Cell) bool { return k.visited[c] }

// RecordPosition quantizes the position, appends it to the ring buffer,
// grows the bounding box, and re-runs stuck detection over the buffer.
func (k *KnownWorld) RecordPosition(x, y float64) {
	c := predicates.CellOf(x, y)
	k.visited[c] = true

	k.recent = append(k.recent, c)
	if len(k.recent) > k.det.BufferCap {
		k.recent = append(k.recent[:0:0], k.recent[len(k.recent)-k.det.BufferCap:]...)
	}

	if !k.hasBBox {
		k.minX, k.maxX, k.minY, k.maxY = c.X, c.X, c.Y, c.Y
		k.hasBBox = true
	} else {
		if c.X < k.minX {
			k.minX = c.X
		}
		if c.X > k.maxX {
			k.maxX = c.X
		}
		if c.Y < k.minY {
			k.minY = c.Y
		}
		if c.Y > k.maxY {
			k.maxY = c.Y
		}
	}

	k.detect()
}

// detect is the OR-of-heuristics loop detector. Deliberately not a
// single clean predicate: false positives are acceptable because escape
// mode is cheap and self-terminating.
func (k *KnownWorld) detect() {
	n := len(k.recent)
	if n < k.det.MinPoints {
		k.LoopDetected = false
		return
	}

	pts := make([]orb.Point, n)
	for i, c := range k.recent {
		pts[i] = orb.Point{float64(c.X) + 0.5, float64(c.Y) + 0.5}
	}
	k.CoverageArea = geom.HullArea(pts)
	k.Knottiness = geom.Knottiness(pts)
	maxVisits, uniqueRatio := geom.RevisitStats(k.recent)

	loop := false
	switch {
	case maxVisits >= k.det.RepeatThreshold:
		loop = true
	case uniqueRatio < k.det.UniqueRatioLow:
		loop = true
	case k.Knottiness >= k.det.KnotHigh && n >= k.det.KnotBufferMin:
		loop = true
	case k.CoverageArea <= k.det.SmallArea && k.Knottiness >= k.det.SmallAreaKnot:
		loop = true
	case k.CoverageArea <= k.det.SmallArea && n >= k.det.SmallAreaBufferMin:
		loop = true
	}

	k.LoopDetected = loop
	if loop {
		k.StuckCounter++
		return
	}
	k.StuckCounter -= k.det.StuckDecay
	if k.StuckCounter < 0 {
		k.StuckCounter = 0
	}
}

// ShouldVenture reports whether the robot looks stuck enough to arm
// escape mode: loop detected, or low coverage, or high knottiness, all
// gated by the minimum sample count.
func (k *KnownWorld) ShouldVenture(minSamples int) bool {
	if k.escape.Active {
		return false
	}
	if len(k.recent) < minSamples {
		return false
	}
	return k.LoopDetected ||
		k.CoverageArea <= k.det.LowCoverageArea ||
		k.Knottiness >= k.det.KnotHigh
}

func (k *KnownWorld) Escaping() bool                  { return k.escape.Active }
func (k *KnownWorld) EscapeTarget() (float64, float64) { return k.escape.TargetX, k.escape.TargetY }

// StartEscape arms escape mode: a target at a random angle biased
// opposite the current heading (mean 180° off, uniform jitter), at a
// distance scaled by world size, clamped inside the world margin. The
// current position is recorded as the clutter centroid.
func (k *KnownWorld) StartEscape(rng *splitmix, x, y, headingDeg float64, width, height int, esc tuning.Escape) {
	jitter := (rng.Float64()*2 - 1) * esc.JitterDeg
	angle := (headingDeg + 180 + jitter) * math.Pi / 180

	diag := math.Hypot(float64(width), float64(height))
	dist := esc.DistanceFrac * diag

	margin := esc.MarginFrac * math.Min(float64(width), float64(height))
	tx := clamp(x+dist*math.Cos(angle), margin, float64(width)-margin)
	ty := clamp(y+dist*math.Sin(angle), margin, float64(height)-margin)

	k.escape = escapeState{
		Active:    true,
		TargetX:   tx,
		TargetY:   ty,
		TicksLeft: esc.Ticks,
		CentroidX: x,
		CentroidY: y,
	}
}

// UpdateEscape advances the countdown and clears escape mode when the
// robot reaches the target, drifts clear of the clutter centroid, or the
// countdown expires, whichever first. Clearing resets the recent buffer
// and metrics so the detector does not re-fire on stale data.
func (k *KnownWorld) UpdateEscape(x, y float64, esc tuning.Escape) (cleared bool) {
	if !k.escape.Active {
		return false
	}
	k.escape.TicksLeft--

	arrived := math.Hypot(x-k.escape.TargetX, y-k.escape.TargetY) <= esc.ArriveRadius
	clear := math.Hypot(x-k.escape.CentroidX, y-k.escape.CentroidY) >= esc.ClearanceRadius
	if arrived || clear || k.escape.TicksLeft <= 0 {
		k.escape = escapeState{}
		k.resetRecent()
		return true
	}
	return false
}

func (k *KnownWorld) resetRecent() {
	k.recent = k.recent[:0]
	k.CoverageArea = 0
	k.Knottiness = 0
	k.LoopDetected = false
	k.StuckCounter = 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
