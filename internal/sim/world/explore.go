package world

import (
	"math"

	"gridrover.ai/internal/sim/world/logic/predicates"
)

// exploreHeading samples random headings and scores each candidate
// destination; the best-scoring heading wins (first seen on ties).
// All weights come from tuning, not constants.
func (w *World) exploreHeading(r *Robot) float64 {
	ex := w.tune.Exploration

	width := float64(w.cfg.Width)
	height := float64(w.cfg.Height)
	diag := math.Hypot(width, height)
	reach := ex.DistanceFrac * diag
	margin := ex.MarginFrac * math.Min(width, height)
	cx, cy := width/2, height/2

	robotFromCenter := math.Hypot(r.X-cx, r.Y-cy)
	farFromCenter := robotFromCenter > ex.CenterFarFrac*diag/2

	bestHeading := r.HeadingDeg
	bestScore := math.Inf(-1)

	for i := 0; i < ex.CandidateCount; i++ {
		theta := w.rng.Float64() * 2 * math.Pi
		px := clamp(r.X+math.Cos(theta)*reach, margin, width-margin)
		py := clamp(r.Y+math.Sin(theta)*reach, margin, height-margin)

		score := 0.0

		// Quadrant crossing: candidate lands in a different half-plane
		// on either axis.
		crossedX := (px > cx) != (r.X > cx)
		crossedY := (py > cy) != (r.Y > cy)
		if crossedX || crossedY {
			score += ex.QuadrantBonus
		} else {
			score -= ex.SameQuadrantPenalty
		}

		// Center approach only counts when currently far from center.
		if farFromCenter && math.Hypot(px-cx, py-cy) < robotFromCenter {
			score += ex.CenterBonus
		}

		if !r.Known.Visited(predicates.CellOf(px, py)) {
			score += ex.UnexploredBonus
		}

		for _, f := range [...]float64{0.25, 0.5, 0.75} {
			ix := r.X + (px-r.X)*f
			iy := r.Y + (py-r.Y)*f
			if !r.Known.Visited(predicates.CellOf(ix, iy)) {
				score += ex.PathUnexploredBonus
			}
		}

		score += ex.DistanceWeight * math.Hypot(px-r.X, py-r.Y)

		if score > bestScore {
			bestScore = score
			bestHeading = math.Atan2(py-r.Y, px-r.X) * 180 / math.Pi
		}
	}
	return bestHeading
}
