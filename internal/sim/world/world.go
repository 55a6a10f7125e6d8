package world

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gridrover.ai/internal/planner"
	"gridrover.ai/internal/protocol"
	"gridrover.ai/internal/sim/tuning"
	"gridrover.ai/internal/sim/world/logic/predicates"
)

type WorldConfig struct {
	ID         string
	Width      int
	Height     int
	Robots     int
	Objects    int
	Obstacles  int
	BatteryCap float64
	Seed       int64
	TickRateHz int
}

// Validate rejects invalid construction parameters before any tick runs.
func (cfg WorldConfig) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%s: "+format, append([]any{protocol.ErrBadRequest}, args...)...)
	}
	if cfg.ID == "" {
		return bad("empty world id")
	}
	if cfg.Width < 8 || cfg.Height < 8 {
		return bad("world %dx%d too small (min 8x8)", cfg.Width, cfg.Height)
	}
	if cfg.Width > 4096 || cfg.Height > 4096 {
		return bad("world %dx%d too large (max 4096)", cfg.Width, cfg.Height)
	}
	if cfg.Robots < 1 {
		return bad("robots %d < 1", cfg.Robots)
	}
	if cfg.Objects < 0 || cfg.Obstacles < 0 {
		return bad("negative entity count")
	}
	if cfg.BatteryCap <= 0 {
		return bad("battery capacity %v <= 0", cfg.BatteryCap)
	}
	if cfg.TickRateHz < 1 {
		return bad("tick rate %d < 1", cfg.TickRateHz)
	}
	area := cfg.Width * cfg.Height
	if cfg.Robots+cfg.Objects+cfg.Obstacles > area/4 {
		return bad("entity count %d exceeds quarter of world area %d", cfg.Robots+cfg.Objects+cfg.Obstacles, area)
	}
	return nil
}

// World is a single-threaded authoritative simulation. All state must be
// accessed only from the world loop goroutine (tests drive step directly).
type World struct {
	cfg  WorldConfig
	tune tuning.Behavior

	tick atomic.Uint64

	robots     []*Robot
	objects    []*WorldObject
	obstacles  []Obstacle
	pheromones []Pheromone

	rng    *splitmix
	bridge *planner.Bridge // nil disables the planning strategy

	collectedTotal     int
	collisionsThisTick int
	lastPlanStats      planner.Stats

	// Optional sinks (may be nil). Implemented in internal/persistence/*
	// and internal/transport/observer.
	tickLogger TickLogger
	statsSink  StatsSink
	obsSink    chan<- protocol.ObsMsg

	stop chan struct{}
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// StatsSink receives per-tick aggregates for the read-model index.
type StatsSink interface {
	WriteTickStats(stats TickStats) error
}

type TickStats struct {
	Tick             uint64
	ActiveRobots     int
	ObjectsCollected int
	Collisions       int
	PlansRequested   int
	PlanFallbacks    int
}

func New(cfg WorldConfig, tune tuning.Behavior) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := tune.Validate(); err != nil {
		return nil, err
	}

	w := &World{
		cfg:  cfg,
		tune: tune,
		rng:  newSplitmix(cfg.Seed),
		stop: make(chan struct{}),
	}
	w.populate()
	return w, nil
}

// populate places obstacles, objects and robots deterministically from
// the seed. Robots spawn on their home ring so tick 0 starts spread out.
func (w *World) populate() {
	base := predicates.CellOf(float64(w.cfg.Width)/2, float64(w.cfg.Height)/2)

	occupied := map[[2]int]bool{{base.X, base.Y}: true}
	place := func() (float64, float64) {
		for {
			x := 1 + w.rng.Intn(w.cfg.Width-2)
			y := 1 + w.rng.Intn(w.cfg.Height-2)
			if occupied[[2]int{x, y}] {
				continue
			}
			occupied[[2]int{x, y}] = true
			return float64(x) + 0.5, float64(y) + 0.5
		}
	}

	for i := 0; i < w.cfg.Obstacles; i++ {
		x, y := place()
		w.obstacles = append(w.obstacles, Obstacle{
			ID:     i,
			X:      x,
			Y:      y,
			Radius: 0.5 + w.rng.Float64()*1.5,
		})
	}
	for i := 0; i < w.cfg.Objects; i++ {
		x, y := place()
		w.objects = append(w.objects, &WorldObject{
			ID:    i,
			X:     x,
			Y:     y,
			Value: 1 + math.Floor(w.rng.Float64()*10),
		})
	}
	for i := 0; i < w.cfg.Robots; i++ {
		home := predicates.HomeCell(base, i, w.cfg.Robots, w.tune.Action.HomeRingRadius)
		w.robots = append(w.robots, &Robot{
			ID:              i,
			X:               float64(home.X) + 0.5,
			Y:               float64(home.Y) + 0.5,
			HeadingDeg:      float64(w.rng.Intn(360)),
			Speed:           w.tune.Action.MoveSpeed,
			SensorRadius:    w.tune.Action.SensorRadius,
			Battery:         w.cfg.BatteryCap,
			BatteryCapacity: w.cfg.BatteryCap,
			Active:          true,
			Action:          actionIdle,

			NearestObjectDist:   -1,
			NearestObstacleDist: -1,

			Known: NewKnownWorld(w.tune.Detection, w.cfg.Objects, w.cfg.Obstacles),
		})
	}
}

func (w *World) SetPlanner(b *planner.Bridge)           { w.bridge = b }
func (w *World) SetTickLogger(l TickLogger)             { w.tickLogger = l }
func (w *World) SetStatsSink(s StatsSink)               { w.statsSink = s }
func (w *World) SetObsSink(ch chan<- protocol.ObsMsg)   { w.obsSink = ch }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }
func (w *World) CollectedTotal() int { return w.collectedTotal }
func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) ActiveRobots() int {
	n := 0
	for _, r := range w.robots {
		if r.Active {
			n++
		}
	}
	return n
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.step(ctx)
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// snapshot captures the read-only view every decision in this tick sees.
// Positions are frozen here, so agents later in the order still read the
// previous tick's geometry; collected flags are live-checked at apply
// time, which makes the fixed processing order the collect tie-break.
func (w *World) snapshot() predicates.Snapshot {
	snap := predicates.Snapshot{
		Width:  w.cfg.Width,
		Height: w.cfg.Height,
	}
	for _, r := range w.robots {
		snap.Robots = append(snap.Robots, predicates.RobotState{
			ID:      r.ID,
			X:       r.X,
			Y:       r.Y,
			Battery: r.Battery,
			Active:  r.Active,
		})
	}
	for _, o := range w.objects {
		snap.Objects = append(snap.Objects, predicates.ObjectState{
			ID:        o.ID,
			X:         o.X,
			Y:         o.Y,
			Collected: o.Collected,
		})
	}
	for _, o := range w.obstacles {
		snap.Obstacles = append(snap.Obstacles, predicates.ObstacleState{
			ID:     o.ID,
			X:      o.X,
			Y:      o.Y,
			Radius: o.Radius,
		})
	}
	return snap
}

// step advances one tick. It always completes for every active robot,
// even when the external solver is unavailable.
func (w *World) step(ctx context.Context) {
	tick := w.tick.Load()
	w.collisionsThisTick = 0

	set := predicates.Extract(
		w.snapshot(),
		w.tune.Action.BatteryLowThreshold,
		w.tune.Action.ObstacleDilation,
		w.tune.Action.HomeRingRadius,
	)

	for _, r := range w.robots {
		if !r.Active {
			continue
		}
		w.stepRobot(ctx, tick, r, set)
	}

	w.decayPheromones()
	w.finishTick(tick)
	w.tick.Add(1)
}

func (w *World) stepRobot(ctx context.Context, tick uint64, r *Robot, set predicates.Set) {
	r.collidedThisTick = false

	r.Battery -= w.tune.Action.BatteryDrain
	if r.Battery <= 0 {
		r.Battery = 0
		r.Active = false
		r.Action = actionDepleted
		return
	}

	w.sense(r, tick)
	w.decide(ctx, tick, r, set)

	r.Known.RecordPosition(r.X, r.Y)
	if r.Known.Escaping() {
		r.Known.UpdateEscape(r.X, r.Y, w.tune.Escape)
	}
}

// sense discovers previously unseen objects/obstacles inside the sensor
// radius (monotonic knowledge) and recomputes nearest-entity distances.
func (w *World) sense(r *Robot, tick uint64) {
	nearestObj := -1.0
	for _, o := range w.objects {
		if o.Collected {
			continue
		}
		d := math.Hypot(o.X-r.X, o.Y-r.Y)
		if d <= r.SensorRadius && r.Known.DiscoverObject(o.ID) {
			w.depositPheromone(r, PheromoneObjectFound, tick)
		}
		if r.Known.KnowsObject(o.ID) && (nearestObj < 0 || d < nearestObj) {
			nearestObj = d
		}
	}
	r.NearestObjectDist = nearestObj

	nearestObs := -1.0
	for i := range w.obstacles {
		o := &w.obstacles[i]
		d := math.Hypot(o.X-r.X, o.Y-r.Y) - o.Radius
		if d <= r.SensorRadius {
			r.Known.DiscoverObstacle(o.ID)
		}
		if r.Known.KnowsObstacle(o.ID) && (nearestObs < 0 || d < nearestObs) {
			nearestObs = d
		}
	}
	r.NearestObstacleDist = nearestObs
}

func (w *World) collect(r *Robot, objectID int, tick uint64) {
	obj := w.objects[objectID]
	obj.Collected = true
	w.collectedTotal++
	r.Action = actionCollect
	w.depositPheromone(r, PheromoneObjectCollected, tick)
	// Discovered-object entries go away only on this transition.
	for _, other := range w.robots {
		other.Known.ForgetObject(objectID)
	}
}

func (w *World) finishTick(tick uint64) {
	digest := w.stateDigest(tick)

	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:           tick,
			CollectedTotal: w.collectedTotal,
			Collisions:     w.collisionsThisTick,
			Digest:         digest,
		}
		for _, r := range w.robots {
			entry.Actions = append(entry.Actions, RecordedAction{
				RobotID: r.ID,
				Action:  r.Action,
				X:       r.X,
				Y:       r.Y,
			})
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			// Logging is best-effort; the tick never fails on it.
			_ = err
		}
	}

	if w.statsSink != nil {
		var ps planner.Stats
		if w.bridge != nil {
			ps = w.bridge.Stats()
		}
		_ = w.statsSink.WriteTickStats(TickStats{
			Tick:             tick,
			ActiveRobots:     w.ActiveRobots(),
			ObjectsCollected: w.collectedTotal,
			Collisions:       w.collisionsThisTick,
			PlansRequested:   ps.Requested - w.lastPlanStats.Requested,
			PlanFallbacks:    ps.Fallbacks - w.lastPlanStats.Fallbacks,
		})
		if w.bridge != nil {
			w.lastPlanStats = w.bridge.Stats()
		}
	}

	if w.obsSink != nil {
		select {
		case w.obsSink <- w.buildObs(tick, digest):
		default:
			// Slow observers drop frames rather than stall the tick.
		}
	}
}
