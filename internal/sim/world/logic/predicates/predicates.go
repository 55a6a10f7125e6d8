// Package predicates discretizes a continuous world snapshot into the
// grid-cell fact set shared by the reactive engine and the planning
// bridge. Extraction is a pure function of the snapshot: the same
// snapshot always yields the same set.
package predicates

import (
	"math"

	"gridrover.ai/internal/sim/world/logic/geom"
)

// Snapshot is the read-only view of the world captured once per tick.
// Robot and object slices are arena-indexed: Robots[i].ID == i.
type Snapshot struct {
	Width  int
	Height int

	Robots    []RobotState
	Objects   []ObjectState
	Obstacles []ObstacleState
}

type RobotState struct {
	ID      int
	X       float64
	Y       float64
	Battery float64
	Active  bool
}

type ObjectState struct {
	ID        int
	X         float64
	Y         float64
	Collected bool
}

type ObstacleState struct {
	ID     int
	X      float64
	Y      float64
	Radius float64
}

// Set is the extracted fact set. Ephemeral: rebuilt every decision,
// never persisted.
type Set struct {
	Width    int
	Height   int
	Base     geom.Cell
	RobotAt  map[int]geom.Cell
	Home     map[int]geom.Cell
	Blocking map[geom.Cell]bool // every active robot's current cell
	Obstacle map[geom.Cell]bool
	ObjectAt map[geom.Cell]int // uncollected objects only; cell -> object id
	LowBatt  map[int]bool
}

// CellOf quantizes a continuous position.
func CellOf(x, y float64) geom.Cell {
	return geom.Cell{X: int(math.Floor(x)), Y: int(math.Floor(y))}
}

// Extract builds the fact set for snap. lowBattery is the threshold below
// which a robot is flagged low-battery; dilation widens every obstacle's
// blocked footprint; homeRing is the radius of the per-robot home offsets
// around the shared base.
func Extract(snap Snapshot, lowBattery, dilation, homeRing float64) Set {
	s := Set{
		Width:    snap.Width,
		Height:   snap.Height,
		Base:     geom.Cell{X: snap.Width / 2, Y: snap.Height / 2},
		RobotAt:  make(map[int]geom.Cell, len(snap.Robots)),
		Home:     make(map[int]geom.Cell, len(snap.Robots)),
		Blocking: make(map[geom.Cell]bool, len(snap.Robots)),
		Obstacle: map[geom.Cell]bool{},
		ObjectAt: map[geom.Cell]int{},
		LowBatt:  map[int]bool{},
	}

	n := len(snap.Robots)
	for _, r := range snap.Robots {
		if !r.Active {
			continue
		}
		c := CellOf(r.X, r.Y)
		s.RobotAt[r.ID] = c
		s.Blocking[c] = true
		if r.Battery < lowBattery {
			s.LowBatt[r.ID] = true
		}
		s.Home[r.ID] = HomeCell(s.Base, r.ID, n, homeRing)
	}

	for _, o := range snap.Obstacles {
		markDisk(s.Obstacle, o.X, o.Y, o.Radius+dilation)
	}

	for _, obj := range snap.Objects {
		if obj.Collected {
			continue
		}
		s.ObjectAt[CellOf(obj.X, obj.Y)] = obj.ID
	}

	return s
}

// HomeCell spreads per-robot home cells on a ring around the base so the
// fleet does not converge on a single recharge point.
func HomeCell(base geom.Cell, id, fleet int, ring float64) geom.Cell {
	if fleet < 1 {
		fleet = 1
	}
	theta := 2 * math.Pi * float64(id) / float64(fleet)
	hx := float64(base.X) + 0.5 + ring*math.Cos(theta)
	hy := float64(base.Y) + 0.5 + ring*math.Sin(theta)
	return CellOf(hx, hy)
}

// IsBase reports whether c is a base cell for the given robot: its home
// cell or the shared base itself.
func (s Set) IsBase(robotID int, c geom.Cell) bool {
	return c == s.Base || s.Home[robotID] == c
}

// CanRecharge: robot's cell is a base cell and the robot is low-battery.
func (s Set) CanRecharge(robotID int) bool {
	c, ok := s.RobotAt[robotID]
	if !ok {
		return false
	}
	return s.IsBase(robotID, c) && s.LowBatt[robotID]
}

// CanCollect: an uncollected object shares the robot's cell and the
// robot is not low-battery. Returns the object id on success.
func (s Set) CanCollect(robotID int) (int, bool) {
	c, ok := s.RobotAt[robotID]
	if !ok {
		return 0, false
	}
	if s.LowBatt[robotID] {
		return 0, false
	}
	id, ok := s.ObjectAt[c]
	return id, ok
}

// Adjacent reports whether two cells are Manhattan neighbors.
func Adjacent(a, b geom.Cell) bool {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx+dy == 1
}

func markDisk(m map[geom.Cell]bool, x, y, r float64) {
	if r < 0 {
		r = 0
	}
	minX := int(math.Floor(x - r))
	maxX := int(math.Floor(x + r))
	minY := int(math.Floor(y - r))
	maxY := int(math.Floor(y + r))
	for cx := minX; cx <= maxX; cx++ {
		for cy := minY; cy <= maxY; cy++ {
			// Block cells whose center falls inside the dilated disk.
			dx := float64(cx) + 0.5 - x
			dy := float64(cy) + 0.5 - y
			if dx*dx+dy*dy <= r*r {
				m[geom.Cell{X: cx, Y: cy}] = true
			}
		}
	}
}
