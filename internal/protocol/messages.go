package protocol

const Version = "1.0"

// PLAN_REQUEST (engine -> solver service)
type PlanRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Domain          string `json:"domain"`
	Problem         string `json:"problem"`
	TimeoutMs       int    `json:"timeout_ms"`
}

// PLAN_RESPONSE (solver service -> engine)
type PlanResponseMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Valid           bool         `json:"valid"`
	Actions         []PlanAction `json:"actions"`
	Stats           PlanStats    `json:"stats"`
	ErrorCode       string       `json:"error_code,omitempty"`
}

// PlanAction is one grounded step of a returned plan.
// An empty Actions list with Valid=true means the goal already holds.
type PlanAction struct {
	Name   string   `json:"name"` // move | collect | recharge | return-to-home | move-toward-home | wait
	Params []string `json:"params,omitempty"`
}

type PlanStats struct {
	StatesExplored int     `json:"states_explored"`
	WallMs         float64 `json:"wall_ms"`
}

// OBS (server -> observer clients)
type ObsMsg struct {
	Type             string         `json:"type"`
	ProtocolVersion  string         `json:"protocol_version"`
	Tick             uint64         `json:"tick"`
	Robots           []RobotObs     `json:"robots"`
	Pheromones       []PheromoneObs `json:"pheromones,omitempty"`
	ObjectsRemaining int            `json:"objects_remaining"`
	CollectedTotal   int            `json:"collected_total"`
	Digest           string         `json:"digest"`
}

type RobotObs struct {
	ID         int     `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	HeadingDeg float64 `json:"heading_deg"`
	Battery    float64 `json:"battery"`
	Active     bool    `json:"active"`
	Action     string  `json:"action"`
	Collisions int     `json:"collisions"`
	Escaping   bool    `json:"escaping,omitempty"`
}

type PheromoneObs struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Kind     string  `json:"kind"`
	Strength float64 `json:"strength"`
	RobotID  int     `json:"robot_id"`
}

// SUBSCRIBE (observer client -> server, first frame on the socket)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryNTicks decimates the stream; 0 or 1 means every tick.
	EveryNTicks int `json:"every_n_ticks,omitempty"`
}

// BootstrapResponse describes the run to a connecting observer.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Tick            uint64 `json:"tick"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Robots          int    `json:"robots"`
	TickRateHz      int    `json:"tick_rate_hz"`
	Seed            int64  `json:"seed"`
}

const (
	TypePlanRequest  = "PLAN_REQUEST"
	TypePlanResponse = "PLAN_RESPONSE"
	TypeObs          = "OBS"
	TypeSubscribe    = "SUBSCRIBE"
)
