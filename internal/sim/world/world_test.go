package world

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"testing"

	"gridrover.ai/internal/planner"
	"gridrover.ai/internal/protocol"
	"gridrover.ai/internal/sim/tuning"
	"gridrover.ai/internal/sim/world/logic/geom"
	"gridrover.ai/internal/sim/world/logic/predicates"
)

func testWorld(t *testing.T, robots, objects, obstacles int) *World {
	t.Helper()
	cfg := WorldConfig{
		ID:         "test",
		Width:      40,
		Height:     40,
		Robots:     robots,
		Objects:    objects,
		Obstacles:  obstacles,
		BatteryCap: 100,
		Seed:       42,
		TickRateHz: 5,
	}
	w, err := New(cfg, tuning.Defaults())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

// greedySolver is a minimal in-process stand-in for the external solver:
// it parses the submitted problem, BFS-routes to the goal over unblocked
// cells, and answers with the first step.
type greedySolver struct {
	requests []protocol.PlanRequestMsg
}

var (
	cellTokRe       = regexp.MustCompile(`c_-?\d+_-?\d+`)
	startAtRe       = regexp.MustCompile(`\(at (r\d+) (c_-?\d+_-?\d+)\)`)
	goalAtCellRe    = regexp.MustCompile(`\(:goal \(at r\d+ (c_-?\d+_-?\d+)\)\)`)
	goalCollectedRe = regexp.MustCompile(`\(:goal \(collected (o\d+)\)\)`)
	blockedFactRe   = regexp.MustCompile(`\((?:obstacle|robot-blocking) (c_-?\d+_-?\d+)\)`)
)

func tokToCell(t string) geom.Cell {
	var x, y int
	fmt.Sscanf(t, "c_%d_%d", &x, &y)
	return geom.Cell{X: x, Y: y}
}

func (g *greedySolver) Solve(_ context.Context, req protocol.PlanRequestMsg) (protocol.PlanResponseMsg, error) {
	g.requests = append(g.requests, req)
	prob := req.Problem

	cells := map[geom.Cell]bool{}
	for _, tok := range cellTokRe.FindAllString(prob, -1) {
		cells[tokToCell(tok)] = true
	}
	blocked := map[geom.Cell]bool{}
	for _, m := range blockedFactRe.FindAllStringSubmatch(prob, -1) {
		blocked[tokToCell(m[1])] = true
	}

	sm := startAtRe.FindStringSubmatch(prob)
	if sm == nil {
		return protocol.PlanResponseMsg{Valid: false, ErrorCode: protocol.ErrPlanInvalid}, nil
	}
	robot := sm[1]
	start := tokToCell(sm[2])

	var goal geom.Cell
	collectObj := ""
	if m := goalAtCellRe.FindStringSubmatch(prob); m != nil {
		goal = tokToCell(m[1])
	} else if m := goalCollectedRe.FindStringSubmatch(prob); m != nil {
		collectObj = m[1]
		om := regexp.MustCompile(`\(object-at ` + m[1] + ` (c_-?\d+_-?\d+)\)`).FindStringSubmatch(prob)
		if om == nil {
			return protocol.PlanResponseMsg{Valid: false, ErrorCode: protocol.ErrPlanInvalid}, nil
		}
		goal = tokToCell(om[1])
	} else {
		return protocol.PlanResponseMsg{Valid: false, ErrorCode: protocol.ErrPlanInvalid}, nil
	}

	if start == goal {
		actions := []protocol.PlanAction{}
		if collectObj != "" {
			actions = append(actions, protocol.PlanAction{Name: "collect", Params: []string{robot, collectObj, cellTok(goal)}})
		}
		return protocol.PlanResponseMsg{Valid: true, Actions: actions}, nil
	}

	// BFS with a fixed neighbor order.
	dirs := []geom.Cell{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}
	prev := map[geom.Cell]geom.Cell{start: start}
	queue := []geom.Cell{start}
	found := false
	for head := 0; head < len(queue) && !found; head++ {
		p := queue[head]
		for _, d := range dirs {
			n := geom.Cell{X: p.X + d.X, Y: p.Y + d.Y}
			if _, seen := prev[n]; seen || !cells[n] || blocked[n] {
				continue
			}
			prev[n] = p
			if n == goal {
				found = true
				break
			}
			queue = append(queue, n)
		}
	}
	if !found {
		return protocol.PlanResponseMsg{Valid: true, Actions: []protocol.PlanAction{{Name: "wait"}}}, nil
	}
	step := goal
	for prev[step] != start {
		step = prev[step]
	}
	return protocol.PlanResponseMsg{Valid: true, Actions: []protocol.PlanAction{
		{Name: "move", Params: []string{robot, cellTok(start), cellTok(step)}},
	}}, nil
}

func cellTok(c geom.Cell) string { return fmt.Sprintf("c_%d_%d", c.X, c.Y) }

func TestStep_CollectOnSpawnObject(t *testing.T) {
	w := testWorld(t, 1, 1, 0)
	r := w.robots[0]
	w.objects[0].X = r.X
	w.objects[0].Y = r.Y

	w.step(context.Background())

	if r.Action != actionCollect {
		t.Fatalf("first tick action = %q, want %q", r.Action, actionCollect)
	}
	if !w.objects[0].Collected {
		t.Fatalf("object not collected")
	}
	if w.collectedTotal != 1 {
		t.Fatalf("collectedTotal = %d, want 1", w.collectedTotal)
	}
}

func TestStep_LowBatteryHomesAndRecharges(t *testing.T) {
	w := testWorld(t, 1, 0, 0)
	gs := &greedySolver{}
	w.SetPlanner(planner.NewBridge("gridrover", gs, 2, 50, 0, nil))

	r := w.robots[0]
	home := predicates.HomeCell(geom.Cell{X: 20, Y: 20}, 0, 1, w.tune.Action.HomeRingRadius)
	// Two cells west of home, battery below the threshold.
	r.X = float64(home.X) - 1.5
	r.Y = float64(home.Y) + 0.5
	r.Battery = 5

	recharged := false
	for i := 0; i < 10 && !recharged; i++ {
		prevCell := predicates.CellOf(r.X, r.Y)
		w.step(context.Background())
		cell := predicates.CellOf(r.X, r.Y)
		if r.Action == actionRecharge {
			recharged = true
			break
		}
		// While homing, every move must not increase distance to home.
		if manhattanCells(cell, home) > manhattanCells(prevCell, home) {
			t.Fatalf("tick %d: moved away from home (%v -> %v)", i, prevCell, cell)
		}
	}
	if !recharged {
		t.Fatalf("robot never recharged; pos=(%v,%v) battery=%v action=%q", r.X, r.Y, r.Battery, r.Action)
	}
	if r.Battery != r.BatteryCapacity {
		t.Fatalf("battery = %v after recharge, want capacity %v", r.Battery, r.BatteryCapacity)
	}
	if got := predicates.CellOf(r.X, r.Y); got != home {
		t.Fatalf("recharged at %v, want home cell %v", got, home)
	}
}

func TestStep_TwoRobotsOneObject_FirstIndexWins(t *testing.T) {
	w := testWorld(t, 2, 1, 0)
	gs := &greedySolver{}
	w.SetPlanner(planner.NewBridge("gridrover", gs, 2, 50, 0, nil))

	w.objects[0].X = 5.5
	w.objects[0].Y = 5.5
	w.robots[0].X, w.robots[0].Y = 5.3, 5.3
	w.robots[1].X, w.robots[1].Y = 5.7, 5.7

	w.step(context.Background())

	if w.robots[0].Action != actionCollect {
		t.Fatalf("robot 0 action = %q, want collect", w.robots[0].Action)
	}
	if w.robots[1].Action == actionCollect {
		t.Fatalf("robot 1 also collected")
	}
	if w.collectedTotal != 1 {
		t.Fatalf("collectedTotal = %d, want exactly 1", w.collectedTotal)
	}

	// The loser's next-tick plan must not mention the collected object.
	before := len(gs.requests)
	w.step(context.Background())
	for _, req := range gs.requests[before:] {
		if strings.Contains(req.Problem, "(at r1 ") && strings.Contains(req.Problem, "object-at o0") {
			t.Fatalf("robot 1 planned against a collected object:\n%s", req.Problem)
		}
	}
}

func TestStep_EscapeLeavesClutterRegion(t *testing.T) {
	w := testWorld(t, 1, 0, 0)
	r := w.robots[0]
	r.X, r.Y = 5.5, 5.5
	// Facing the corner, so the escape direction points into open space.
	r.HeadingDeg = 225

	// Simulate 20 ticks of a 3-cell loop in the robot's history.
	loop := []geom.Cell{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}}
	for i := 0; i < 21; i++ {
		c := loop[i%3]
		r.Known.RecordPosition(float64(c.X)+0.5, float64(c.Y)+0.5)
	}
	if !r.Known.LoopDetected {
		t.Fatalf("3-cell loop not detected")
	}
	if r.Known.CoverageArea > w.tune.Detection.SmallArea {
		t.Fatalf("coverage area %v not recorded as small", r.Known.CoverageArea)
	}
	if r.Known.Knottiness <= 0 {
		t.Fatalf("knottiness not recorded")
	}

	cx, cy := r.X, r.Y
	w.step(context.Background())
	if !r.Known.Escaping() && math.Hypot(r.X-cx, r.Y-cy) < w.tune.Escape.ClearanceRadius {
		t.Fatalf("escape mode did not activate (action %q)", r.Action)
	}

	escaped := false
	for i := 0; i < w.tune.Escape.Ticks && !escaped; i++ {
		w.step(context.Background())
		if math.Hypot(r.X-cx, r.Y-cy) >= w.tune.Escape.ClearanceRadius {
			escaped = true
		}
	}
	if !escaped {
		t.Fatalf("robot stayed within %v of the clutter centroid", w.tune.Escape.ClearanceRadius)
	}
}

func TestStep_DepletedRobotIsTerminal(t *testing.T) {
	w := testWorld(t, 2, 0, 0)
	r := w.robots[0]
	r.Battery = w.tune.Action.BatteryDrain / 2

	w.step(context.Background())
	if r.Active {
		t.Fatalf("robot still active at zero battery")
	}
	if r.Action != actionDepleted {
		t.Fatalf("action = %q, want depleted", r.Action)
	}

	// Simulation continues for the rest of the fleet.
	for i := 0; i < 5; i++ {
		w.step(context.Background())
	}
	if r.Active || r.Battery != 0 {
		t.Fatalf("depleted robot came back: active=%v battery=%v", r.Active, r.Battery)
	}
	if !w.robots[1].Active {
		t.Fatalf("healthy robot deactivated")
	}
}

func TestStep_SolverUnavailableStillCompletesTick(t *testing.T) {
	w := testWorld(t, 3, 2, 2)
	// Bridge with a nil solver: every plan request degrades.
	w.SetPlanner(planner.NewBridge("gridrover", nil, 2, 8, 5, nil))

	for i := 0; i < 10; i++ {
		w.step(context.Background())
	}
	if w.CurrentTick() != 10 {
		t.Fatalf("tick = %d, want 10", w.CurrentTick())
	}
	for _, r := range w.robots {
		if r.Action == "" {
			t.Fatalf("robot %d never chose an action", r.ID)
		}
	}
}

func TestDeterminism_SameSeedSameDigest(t *testing.T) {
	mk := func() *World {
		cfg := WorldConfig{
			ID: "det", Width: 48, Height: 32, Robots: 3, Objects: 5, Obstacles: 4,
			BatteryCap: 100, Seed: 1337, TickRateHz: 5,
		}
		w, err := New(cfg, tuning.Defaults())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return w
	}
	w1 := mk()
	w2 := mk()
	for tick := 0; tick < 50; tick++ {
		w1.step(context.Background())
		w2.step(context.Background())
		d1 := w1.stateDigest(uint64(tick))
		d2 := w2.stateDigest(uint64(tick))
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick, d1, d2)
		}
	}
}

func TestPheromone_DecayAndSingleRemoval(t *testing.T) {
	w := testWorld(t, 1, 0, 0)
	w.pheromones = append(w.pheromones, Pheromone{
		X: 1, Y: 1, Kind: PheromoneDanger, Strength: 10, RobotID: 0,
	})

	decay := w.tune.Action.PheromoneDecay
	floor := w.tune.Action.PheromoneFloor

	prev := 10.0
	removedAt := -1
	for i := 0; i < 200; i++ {
		w.decayPheromones()
		if len(w.pheromones) == 0 {
			removedAt = i
			break
		}
		cur := w.pheromones[0].Strength
		if cur >= prev {
			t.Fatalf("strength not decreasing: %v -> %v", prev, cur)
		}
		if cur < floor {
			t.Fatalf("sub-floor pheromone survived: %v", cur)
		}
		prev = cur
	}
	if removedAt < 0 {
		t.Fatalf("pheromone never removed")
	}

	// Removal must land exactly when strength first crosses the floor.
	want := 0
	for s := 10.0 * decay; s >= floor; s *= decay {
		want++
	}
	if removedAt != want {
		t.Fatalf("removed at pass %d, want %d", removedAt, want)
	}

	// And it stays gone.
	w.decayPheromones()
	if len(w.pheromones) != 0 {
		t.Fatalf("pheromone resurrected")
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	base := WorldConfig{
		ID: "x", Width: 40, Height: 40, Robots: 2, Objects: 2, Obstacles: 2,
		BatteryCap: 100, Seed: 1, TickRateHz: 5,
	}
	mutations := []func(*WorldConfig){
		func(c *WorldConfig) { c.Robots = 0 },
		func(c *WorldConfig) { c.BatteryCap = -5 },
		func(c *WorldConfig) { c.Width = 2 },
		func(c *WorldConfig) { c.Objects = -1 },
		func(c *WorldConfig) { c.TickRateHz = 0 },
		func(c *WorldConfig) { c.ID = "" },
		func(c *WorldConfig) { c.Obstacles = 40 * 40 },
	}
	for i, mut := range mutations {
		cfg := base
		mut(&cfg)
		if _, err := New(cfg, tuning.Defaults()); err == nil {
			t.Fatalf("mutation %d accepted: %+v", i, cfg)
		}
	}
	if _, err := New(base, tuning.Defaults()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestSense_DiscoveryIsMonotonicAndDropsPheromone(t *testing.T) {
	w := testWorld(t, 1, 1, 1)
	r := w.robots[0]
	w.objects[0].X = r.X + 2
	w.objects[0].Y = r.Y
	w.obstacles[0].X = r.X - 3
	w.obstacles[0].Y = r.Y
	w.obstacles[0].Radius = 1

	w.sense(r, 0)
	if !r.Known.KnowsObject(0) || !r.Known.KnowsObstacle(0) {
		t.Fatalf("in-range entities not discovered")
	}
	found := 0
	for i := range w.pheromones {
		if w.pheromones[i].Kind == PheromoneObjectFound {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("object-found pheromones = %d, want 1", found)
	}

	// Re-sensing discovers nothing new.
	w.sense(r, 1)
	for i := range w.pheromones {
		if w.pheromones[i].Kind == PheromoneObjectFound {
			found--
		}
	}
	if found != 0 {
		t.Fatalf("duplicate discovery pheromone")
	}
	if r.NearestObjectDist < 0 || math.Abs(r.NearestObjectDist-2) > 1e-9 {
		t.Fatalf("nearest object dist = %v, want 2", r.NearestObjectDist)
	}
}

func manhattanCells(a, b geom.Cell) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
