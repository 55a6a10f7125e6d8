package planner

import (
	"fmt"
	"strconv"
	"strings"

	"gridrover.ai/internal/sim/world/logic/geom"
	"gridrover.ai/internal/sim/world/logic/predicates"
)

// buildProblem constructs the bounded local problem for one robot.
// Returns ok=false only when the robot is fully boxed in (no unblocked
// cell besides its own exists in the window), in which case submitting
// would be pointless and the caller waits.
func (b *Bridge) buildProblem(tick uint64, robotID int, cur geom.Cell, s predicates.Set) (problem, bool) {
	radius := b.WindowRadius
	home := s.Home[robotID]
	// Extend by one hop only, and only when that makes home reachable.
	if d := manhattan(cur, home); d == radius+1 {
		radius++
	}

	cells := map[geom.Cell]bool{}
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			if abs(dx)+abs(dy) > radius {
				continue
			}
			c := geom.Cell{X: cur.X + dx, Y: cur.Y + dy}
			if c.X < 0 || c.Y < 0 || c.X >= s.Width || c.Y >= s.Height {
				continue
			}
			cells[c] = true
		}
	}

	blocked := map[geom.Cell]bool{}
	for c := range cells {
		if s.Obstacle[c] {
			blocked[c] = true
		}
	}
	for id, c := range s.RobotAt {
		if id == robotID {
			continue
		}
		if cells[c] {
			blocked[c] = true
		}
	}

	goal, ok := b.selectGoal(robotID, cur, home, cells, blocked, s)
	if !ok {
		return problem{}, false
	}

	p := problem{
		goal:    goal,
		cells:   cells,
		blocked: blocked,
	}
	p.text = b.renderProblem(tick, robotID, cur, home, goal, cells, blocked, s)
	return p, true
}

// selectGoal applies the priority order: low-battery homing, then object
// collection, then exploration to the farthest unblocked cell. The
// returned goal never resolves to the robot's current cell: an empty
// plan would stall the robot, so any other unblocked neighbor is forced
// instead.
func (b *Bridge) selectGoal(robotID int, cur, home geom.Cell, cells, blocked map[geom.Cell]bool, s predicates.Set) (string, bool) {
	robotName := fmt.Sprintf("r%d", robotID)

	goalAt := func(c geom.Cell) string {
		return fmt.Sprintf("(at %s %s)", robotName, cellName(c))
	}
	reach := reachable(cur, cells, blocked)

	var goal string
	switch {
	case s.LowBatt[robotID]:
		if cells[home] && !blocked[home] {
			goal = goalAt(home)
		} else if c, ok := closestToward(home, cur, cells, blocked); ok {
			goal = goalAt(c)
		}
	default:
		// Collectible object in range?
		bestObj, bestCell, objOK := nearestObject(cur, cells, s)
		if objOK && !blocked[bestCell] && reach[bestCell] {
			goal = fmt.Sprintf("(collected o%d)", bestObj)
		} else if objOK {
			// Blocked or unreachable: close the distance instead.
			if c, ok := closestToward(bestCell, cur, cells, blocked); ok {
				goal = goalAt(c)
			}
		}
	}
	if goal == "" {
		if c, ok := farthestFrom(cur, cells, blocked); ok {
			goal = goalAt(c)
		}
	}

	// Safety invariant: never submit the current cell as the goal.
	if goal == goalAt(cur) || goal == "" {
		for _, d := range neighborDirs {
			n := geom.Cell{X: cur.X + d.X, Y: cur.Y + d.Y}
			if cells[n] && !blocked[n] {
				return goalAt(n), true
			}
		}
		return "", false
	}
	return goal, true
}

func (b *Bridge) renderProblem(tick uint64, robotID int, cur, home geom.Cell, goal string, cells, blocked map[geom.Cell]bool, s predicates.Set) string {
	robotName := fmt.Sprintf("r%d", robotID)
	ordered := sortedCells(cells)

	var sb strings.Builder
	fmt.Fprintf(&sb, "(define (problem p_%s_t%d)\n", robotName, tick)
	fmt.Fprintf(&sb, "  (:domain %s)\n", b.Domain)

	sb.WriteString("  (:objects")
	fmt.Fprintf(&sb, " %s - robot", robotName)
	for _, c := range ordered {
		fmt.Fprintf(&sb, " %s", cellName(c))
	}
	sb.WriteString(" - location")
	for _, c := range ordered {
		if id, ok := s.ObjectAt[c]; ok {
			fmt.Fprintf(&sb, " o%d", id)
		}
	}
	sb.WriteString(" - object)\n")

	sb.WriteString("  (:init\n")
	fmt.Fprintf(&sb, "    (at %s %s)\n", robotName, cellName(cur))
	for _, a := range ordered {
		for _, d := range neighborDirs {
			n := geom.Cell{X: a.X + d.X, Y: a.Y + d.Y}
			if cells[n] {
				fmt.Fprintf(&sb, "    (adjacent %s %s)\n", cellName(a), cellName(n))
			}
		}
	}
	for _, c := range ordered {
		if s.Obstacle[c] {
			fmt.Fprintf(&sb, "    (obstacle %s)\n", cellName(c))
		}
	}
	for _, c := range ordered {
		if blocked[c] && !s.Obstacle[c] {
			fmt.Fprintf(&sb, "    (robot-blocking %s)\n", cellName(c))
		}
	}
	if cells[s.Base] {
		fmt.Fprintf(&sb, "    (base %s)\n", cellName(s.Base))
	}
	if cells[home] {
		fmt.Fprintf(&sb, "    (home-position %s %s)\n", robotName, cellName(home))
	}
	for _, c := range ordered {
		if id, ok := s.ObjectAt[c]; ok {
			fmt.Fprintf(&sb, "    (object-at o%d %s)\n", id, cellName(c))
		}
	}
	if s.LowBatt[robotID] {
		fmt.Fprintf(&sb, "    (low-battery %s)\n", robotName)
	}
	sb.WriteString("  )\n")

	fmt.Fprintf(&sb, "  (:goal %s)\n", goal)
	sb.WriteString(")\n")
	return sb.String()
}

var neighborDirs = []geom.Cell{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

// reachable floods the window from start over unblocked cells.
func reachable(start geom.Cell, cells, blocked map[geom.Cell]bool) map[geom.Cell]bool {
	seen := map[geom.Cell]bool{start: true}
	queue := []geom.Cell{start}
	for head := 0; head < len(queue); head++ {
		p := queue[head]
		for _, d := range neighborDirs {
			n := geom.Cell{X: p.X + d.X, Y: p.Y + d.Y}
			if seen[n] || !cells[n] || blocked[n] {
				continue
			}
			seen[n] = true
			queue = append(queue, n)
		}
	}
	return seen
}

// nearestObject returns the uncollected object in the window closest to
// cur (deterministic tie-break on cell order).
func nearestObject(cur geom.Cell, cells map[geom.Cell]bool, s predicates.Set) (id int, at geom.Cell, ok bool) {
	best := -1
	for _, c := range sortedCells(cells) {
		oid, has := s.ObjectAt[c]
		if !has {
			continue
		}
		d := manhattan(cur, c)
		if best == -1 || d < best {
			best = d
			id = oid
			at = c
			ok = true
		}
	}
	return id, at, ok
}

// closestToward picks the unblocked window cell (excluding cur) that
// minimizes distance to target, preferring shorter hops on ties.
func closestToward(target, cur geom.Cell, cells, blocked map[geom.Cell]bool) (geom.Cell, bool) {
	var best geom.Cell
	bestDist, bestHop := -1, -1
	for _, c := range sortedCells(cells) {
		if c == cur || blocked[c] {
			continue
		}
		d := manhattan(c, target)
		hop := manhattan(c, cur)
		if bestDist == -1 || d < bestDist || (d == bestDist && hop < bestHop) {
			best = c
			bestDist = d
			bestHop = hop
		}
	}
	return best, bestDist != -1
}

func farthestFrom(cur geom.Cell, cells, blocked map[geom.Cell]bool) (geom.Cell, bool) {
	var best geom.Cell
	bestDist := -1
	for _, c := range sortedCells(cells) {
		if c == cur || blocked[c] {
			continue
		}
		if d := manhattan(c, cur); d > bestDist {
			best = c
			bestDist = d
		}
	}
	return best, bestDist != -1
}

func cellName(c geom.Cell) string {
	return fmt.Sprintf("c_%d_%d", c.X, c.Y)
}

func parseCell(name string) (geom.Cell, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 3 || parts[0] != "c" {
		return geom.Cell{}, fmt.Errorf("bad cell name %q", name)
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return geom.Cell{}, fmt.Errorf("bad cell name %q", name)
	}
	y, err := strconv.Atoi(parts[2])
	if err != nil {
		return geom.Cell{}, fmt.Errorf("bad cell name %q", name)
	}
	return geom.Cell{X: x, Y: y}, nil
}

func parseObject(params []string) (int, error) {
	for _, p := range params {
		if strings.HasPrefix(p, "o") {
			if id, err := strconv.Atoi(p[1:]); err == nil {
				return id, nil
			}
		}
	}
	return 0, fmt.Errorf("no object parameter in %v", params)
}

func manhattan(a, b geom.Cell) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
