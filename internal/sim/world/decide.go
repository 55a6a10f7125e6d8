package world

import (
	"context"
	"errors"
	"math"

	"gridrover.ai/internal/planner"
	"gridrover.ai/internal/sim/world/logic/predicates"
)

// decide runs the fixed strategy chain for one robot: reactive engine,
// escape override, planning bridge, exploration heuristic. The reactive
// engine resolves only zero-lookahead actions; everything that needs
// movement falls through.
func (w *World) decide(ctx context.Context, tick uint64, r *Robot, set predicates.Set) {
	// Reactive: recharge before collect.
	if set.CanRecharge(r.ID) {
		r.Battery = r.BatteryCapacity
		r.Action = actionRecharge
		return
	}
	if id, ok := set.CanCollect(r.ID); ok && !w.objects[id].Collected {
		w.collect(r, id, tick)
		return
	}

	// Stuck recovery overrides planning and exploration.
	if r.Known.Escaping() {
		tx, ty := r.Known.EscapeTarget()
		w.moveToward(r, tx, ty, tick)
		r.Action = actionEscape
		return
	}
	if r.Known.ShouldVenture(w.tune.Escape.MinSamples) {
		r.Known.StartEscape(w.rng, r.X, r.Y, r.HeadingDeg, w.cfg.Width, w.cfg.Height, w.tune.Escape)
		tx, ty := r.Known.EscapeTarget()
		w.moveToward(r, tx, ty, tick)
		r.Action = actionEscape
		return
	}

	// Bounded local planning.
	if w.bridge != nil {
		act, err := w.bridge.NextAction(ctx, tick, r.ID, set)
		if err == nil {
			w.applyPlanned(r, act, set, tick)
			return
		}
		if !errors.Is(err, planner.ErrNoPlan) {
			// Unexpected bridge errors degrade the same way.
			_ = err
		}
	}

	// Exploration heuristic.
	heading := w.exploreHeading(r)
	r.HeadingDeg = heading
	rad := heading * math.Pi / 180
	w.moveToward(r, r.X+math.Cos(rad)*r.Speed*2, r.Y+math.Sin(rad)*r.Speed*2, tick)
	r.Action = actionExplore
	w.depositPheromone(r, PheromoneExploration, tick)
}

func (w *World) applyPlanned(r *Robot, act planner.Action, set predicates.Set, tick uint64) {
	switch act.Kind {
	case planner.ActMove:
		w.moveToward(r, float64(act.Target.X)+0.5, float64(act.Target.Y)+0.5, tick)
		r.Action = actionMove
	case planner.ActCollect:
		id := act.ObjectID
		if id >= 0 && id < len(w.objects) && !w.objects[id].Collected &&
			predicates.CellOf(w.objects[id].X, w.objects[id].Y) == predicates.CellOf(r.X, r.Y) {
			w.collect(r, id, tick)
			return
		}
		r.Action = actionIdle
	case planner.ActRecharge:
		if set.IsBase(r.ID, predicates.CellOf(r.X, r.Y)) {
			r.Battery = r.BatteryCapacity
			r.Action = actionRecharge
			return
		}
		r.Action = actionIdle
	case planner.ActWait:
		// Path blocked by a peer: a first-class outcome, retried next tick.
		r.Action = actionWait
	default:
		r.Action = actionIdle
	}
}
