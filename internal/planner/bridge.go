// Package planner builds small, bounded declarative planning problems
// around a robot's current cell and delegates movement decisions to an
// external solver service. Every request is guaranteed tractable (the
// location window never exceeds Manhattan radius 2, +1 hop for home
// reachability) and every failure path resolves to ErrNoPlan so the
// caller can fall back within the tick.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gridrover.ai/internal/protocol"
	"gridrover.ai/internal/sim/world/logic/geom"
	"gridrover.ai/internal/sim/world/logic/predicates"
)

// ErrNoPlan covers every non-usable outcome: solver unreachable, timed
// out, invalid response, or unusable first action. Callers treat all of
// them identically and fall back to the exploration heuristic.
var ErrNoPlan = errors.New("planner: no plan")

type ActionKind int

const (
	ActIdle ActionKind = iota
	ActMove
	ActCollect
	ActRecharge
	ActWait
)

func (k ActionKind) String() string {
	switch k {
	case ActMove:
		return "move"
	case ActCollect:
		return "collect"
	case ActRecharge:
		return "recharge"
	case ActWait:
		return "wait"
	default:
		return "idle"
	}
}

// Action is the typed translation of the first step of a returned plan.
type Action struct {
	Kind     ActionKind
	Target   geom.Cell // ActMove only
	ObjectID int       // ActCollect only
}

// Solver is the external planning service boundary.
type Solver interface {
	Solve(ctx context.Context, req protocol.PlanRequestMsg) (protocol.PlanResponseMsg, error)
}

type Stats struct {
	Requested int
	CacheHits int
	Fallbacks int
}

type Bridge struct {
	Domain       string
	Solver       Solver // nil disables planning: NextAction always falls back
	WindowRadius int    // 1..2
	TimeoutMs    int
	CacheTTL     uint64 // ticks

	log   *log.Logger
	cache map[cacheKey]cacheEntry
	stats Stats
}

func NewBridge(domain string, solver Solver, windowRadius, timeoutMs int, cacheTTL uint64, logger *log.Logger) *Bridge {
	if windowRadius < 1 {
		windowRadius = 1
	}
	if windowRadius > 2 {
		windowRadius = 2
	}
	return &Bridge{
		Domain:       domain,
		Solver:       solver,
		WindowRadius: windowRadius,
		TimeoutMs:    timeoutMs,
		CacheTTL:     cacheTTL,
		log:          logger,
		cache:        map[cacheKey]cacheEntry{},
	}
}

func (b *Bridge) Stats() Stats { return b.stats }

// NextAction builds the local problem for robotID against the extracted
// fact set and returns the first step of the solver's plan. Returns
// ErrNoPlan on any failure; the tick is never blocked beyond TimeoutMs.
func (b *Bridge) NextAction(ctx context.Context, tick uint64, robotID int, s predicates.Set) (Action, error) {
	cur, ok := s.RobotAt[robotID]
	if !ok {
		return Action{}, ErrNoPlan
	}

	key := cacheKey{robot: robotID, cell: cur, uncollected: len(s.ObjectAt)}
	if e, hit := b.cache[key]; hit && tick-e.tick <= b.CacheTTL {
		b.stats.CacheHits++
		return e.action, nil
	}
	b.stats.Requested++

	prob, ok := b.buildProblem(tick, robotID, cur, s)
	if !ok {
		// Fully boxed in: wait is the only safe answer.
		return Action{Kind: ActWait}, nil
	}

	if b.Solver == nil {
		b.stats.Fallbacks++
		return Action{}, ErrNoPlan
	}

	timeout := time.Duration(b.TimeoutMs) * time.Millisecond
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := b.Solver.Solve(cctx, protocol.PlanRequestMsg{
		Type:            protocol.TypePlanRequest,
		ProtocolVersion: protocol.Version,
		Domain:          b.Domain,
		Problem:         prob.text,
		TimeoutMs:       b.TimeoutMs,
	})
	if err != nil || !resp.Valid {
		// Timed-out and invalid responses are treated identically.
		b.stats.Fallbacks++
		if b.log != nil {
			code := protocol.ErrPlanTimeout
			if err == nil {
				code = protocol.ErrPlanInvalid
			}
			b.log.Printf("plan robot=%d tick=%d fallback code=%s err=%v", robotID, tick, code, err)
		}
		return Action{}, ErrNoPlan
	}

	act, err := b.translate(resp, prob, s, robotID)
	if err != nil {
		b.stats.Fallbacks++
		return Action{}, ErrNoPlan
	}
	b.cache[key] = cacheEntry{tick: tick, action: act}
	return act, nil
}

// translate maps the first action of a validated plan to a typed Action.
// An empty plan means the goal already holds: idle.
func (b *Bridge) translate(resp protocol.PlanResponseMsg, prob problem, s predicates.Set, robotID int) (Action, error) {
	if len(resp.Actions) == 0 {
		return Action{Kind: ActIdle}, nil
	}
	first := resp.Actions[0]
	switch first.Name {
	case "move", "return-to-home", "move-toward-home":
		target, err := moveTarget(first, prob, s, robotID)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActMove, Target: target}, nil
	case "collect":
		id, err := parseObject(first.Params)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActCollect, ObjectID: id}, nil
	case "recharge":
		return Action{Kind: ActRecharge}, nil
	case "wait":
		return Action{Kind: ActWait}, nil
	default:
		return Action{}, fmt.Errorf("unknown action %q", first.Name)
	}
}

func moveTarget(act protocol.PlanAction, prob problem, s predicates.Set, robotID int) (geom.Cell, error) {
	// move params: (robot from to); home moves may omit the cells.
	var target geom.Cell
	if len(act.Params) >= 3 {
		c, err := parseCell(act.Params[len(act.Params)-1])
		if err != nil {
			return geom.Cell{}, err
		}
		target = c
	} else {
		target = s.Home[robotID]
	}
	// The problem asserted every peer cell as robot-blocking; a solver
	// that moves into one anyway is broken, not trusted.
	if prob.blocked[target] {
		return geom.Cell{}, fmt.Errorf("move into blocked cell %v", target)
	}
	if !prob.cells[target] {
		return geom.Cell{}, fmt.Errorf("move outside window %v", target)
	}
	return target, nil
}

type cacheKey struct {
	robot       int
	cell        geom.Cell
	uncollected int
}

type cacheEntry struct {
	tick   uint64
	action Action
}

// problem carries the submitted text plus the window/blocking view it
// was generated from, for response validation.
type problem struct {
	text    string
	goal    string
	cells   map[geom.Cell]bool
	blocked map[geom.Cell]bool // obstacle ∪ robot-blocking (self excluded)
}

func sortedCells(m map[geom.Cell]bool) []geom.Cell {
	out := make([]geom.Cell, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}
