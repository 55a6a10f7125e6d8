package world

// Robot is a mobile agent. Created at world init, mutated every tick by
// the mover, deactivated (never destroyed) when its battery hits zero.
type Robot struct {
	ID int

	X          float64
	Y          float64
	HeadingDeg float64
	Speed      float64

	SensorRadius    float64
	Battery         float64
	BatteryCapacity float64

	Active bool

	Collisions       int
	collidedThisTick bool

	// Distances recomputed each tick during sensing; -1 when nothing of
	// that kind is known yet.
	NearestObjectDist   float64
	NearestObstacleDist float64

	// Action label chosen this tick (observer/log surface).
	Action string

	Known *KnownWorld
}

const (
	actionIdle     = "idle"
	actionCollect  = "collect"
	actionRecharge = "recharge"
	actionMove     = "move"
	actionWait     = "wait"
	actionExplore  = "explore"
	actionEscape   = "escape"
	actionDepleted = "depleted"
)
