package world

import "math"

const robotRadius = 0.4

// moveToward advances the robot one speed-bounded step toward (tx,ty),
// resolving collisions against world bounds, obstacles and other active
// robots. On collision the robot stays put, its counter increments and a
// danger pheromone is deposited; the stuck detector sees the repeat cell.
func (w *World) moveToward(r *Robot, tx, ty float64, tick uint64) bool {
	dx := tx - r.X
	dy := ty - r.Y
	dist := math.Hypot(dx, dy)
	if dist < 1e-9 {
		return true
	}
	stepLen := math.Min(r.Speed, dist)
	nx := r.X + dx/dist*stepLen
	ny := r.Y + dy/dist*stepLen

	if w.collides(r, nx, ny) {
		r.Collisions++
		r.collidedThisTick = true
		w.collisionsThisTick++
		w.depositPheromone(r, PheromoneDanger, tick)
		return false
	}

	r.HeadingDeg = math.Atan2(dy, dx) * 180 / math.Pi
	r.X = nx
	r.Y = ny
	return true
}

func (w *World) collides(r *Robot, nx, ny float64) bool {
	if nx < robotRadius || ny < robotRadius ||
		nx > float64(w.cfg.Width)-robotRadius || ny > float64(w.cfg.Height)-robotRadius {
		return true
	}
	for i := range w.obstacles {
		o := &w.obstacles[i]
		if math.Hypot(o.X-nx, o.Y-ny) < o.Radius+robotRadius {
			return true
		}
	}
	for _, other := range w.robots {
		if other.ID == r.ID || !other.Active {
			continue
		}
		if math.Hypot(other.X-nx, other.Y-ny) < 2*robotRadius {
			return true
		}
	}
	return false
}
