package world

// WorldObject is a discoverable collectible. Collected flips exactly
// once, by whichever robot first satisfies the collect precondition.
type WorldObject struct {
	ID        int
	X         float64
	Y         float64
	Value     float64
	Collected bool
}

// Obstacle is immutable after creation.
type Obstacle struct {
	ID     int
	X      float64
	Y      float64
	Radius float64
}

type PheromoneKind string

const (
	PheromoneExploration     PheromoneKind = "exploration"
	PheromoneObjectFound     PheromoneKind = "object-found"
	PheromoneDanger          PheromoneKind = "danger"
	PheromoneObjectCollected PheromoneKind = "object-collected"
)

// Pheromone decays geometrically each tick and is removed once its
// strength falls below the configured floor.
type Pheromone struct {
	X        float64
	Y        float64
	Kind     PheromoneKind
	Strength float64
	RobotID  int
	Tick     uint64
}

func (w *World) depositPheromone(r *Robot, kind PheromoneKind, tick uint64) {
	w.pheromones = append(w.pheromones, Pheromone{
		X:        r.X,
		Y:        r.Y,
		Kind:     kind,
		Strength: w.tune.Action.PheromoneInitial,
		RobotID:  r.ID,
		Tick:     tick,
	})
}

// decayPheromones runs once per tick after all robots have acted.
// In-place filter keeps the slice allocation stable.
func (w *World) decayPheromones() {
	kept := w.pheromones[:0]
	for i := range w.pheromones {
		p := w.pheromones[i]
		p.Strength *= w.tune.Action.PheromoneDecay
		if p.Strength < w.tune.Action.PheromoneFloor {
			continue
		}
		kept = append(kept, p)
	}
	w.pheromones = kept
}
