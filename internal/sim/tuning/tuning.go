package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Behavior is the full knob set injected into every decision component.
// Loaded once per run and shared read-only; components never mutate it.
type Behavior struct {
	Exploration Exploration `yaml:"exploration"`
	Escape      Escape      `yaml:"escape"`
	Detection   Detection   `yaml:"detection"`
	Action      Action      `yaml:"action"`
}

// Exploration weights the random-heading candidate scorer.
type Exploration struct {
	CandidateCount      int     `yaml:"candidate_count"`
	DistanceFrac        float64 `yaml:"distance_frac"`         // candidate distance as a fraction of world diagonal
	MarginFrac          float64 `yaml:"margin_frac"`           // inward clamp as a fraction of world size
	QuadrantBonus       float64 `yaml:"quadrant_bonus"`
	CenterBonus         float64 `yaml:"center_bonus"`
	CenterFarFrac       float64 `yaml:"center_far_frac"`       // "far from center" cutoff, fraction of half-diagonal
	UnexploredBonus     float64 `yaml:"unexplored_bonus"`
	PathUnexploredBonus float64 `yaml:"path_unexplored_bonus"` // per interpolation point at 25/50/75%
	DistanceWeight      float64 `yaml:"distance_weight"`
	SameQuadrantPenalty float64 `yaml:"same_quadrant_penalty"`
}

// Escape shapes the venture-away override once a robot is judged stuck.
type Escape struct {
	Ticks           int     `yaml:"ticks"`
	DistanceFrac    float64 `yaml:"distance_frac"`
	MarginFrac      float64 `yaml:"margin_frac"`
	ArriveRadius    float64 `yaml:"arrive_radius"`
	ClearanceRadius float64 `yaml:"clearance_radius"`
	JitterDeg       float64 `yaml:"jitter_deg"` // uniform jitter around the opposite-of-heading mean
	MinSamples      int     `yaml:"min_samples"`
}

// Detection thresholds for the OR-of-heuristics loop detector.
type Detection struct {
	BufferCap          int     `yaml:"buffer_cap"`
	MinPoints          int     `yaml:"min_points"`
	RepeatThreshold    int     `yaml:"repeat_threshold"`
	UniqueRatioLow     float64 `yaml:"unique_ratio_low"`
	KnotHigh           float64 `yaml:"knot_high"`
	KnotBufferMin      int     `yaml:"knot_buffer_min"`
	SmallArea          float64 `yaml:"small_area"`
	SmallAreaKnot      float64 `yaml:"small_area_knot"`
	SmallAreaBufferMin int     `yaml:"small_area_buffer_min"`
	LowCoverageArea    float64 `yaml:"low_coverage_area"`
	StuckDecay         int     `yaml:"stuck_decay"`
}

// Action mechanics: battery, movement, sensing, pheromones, planning.
type Action struct {
	BatteryLowThreshold float64 `yaml:"battery_low_threshold"`
	BatteryDrain        float64 `yaml:"battery_drain"`
	MoveSpeed           float64 `yaml:"move_speed"`
	SensorRadius        float64 `yaml:"sensor_radius"`
	ObstacleDilation    float64 `yaml:"obstacle_dilation"`
	PheromoneInitial    float64 `yaml:"pheromone_initial"`
	PheromoneDecay      float64 `yaml:"pheromone_decay"` // multiplicative, per tick
	PheromoneFloor      float64 `yaml:"pheromone_floor"`
	PlanWindowRadius    int     `yaml:"plan_window_radius"` // Manhattan radius, 1..2
	PlanTimeoutMs       int     `yaml:"plan_timeout_ms"`
	PlanCacheTTLTicks   int     `yaml:"plan_cache_ttl_ticks"`
	HomeRingRadius      float64 `yaml:"home_ring_radius"` // per-robot home offset distance around the base
}

func Load(path string) (Behavior, error) {
	var b Behavior
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("behavior.yaml: %w", err)
	}
	b.fillZeros()
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

// Defaults returns the documented fallback knob set used when no
// behavior.yaml is present.
func Defaults() Behavior {
	return Behavior{
		Exploration: Exploration{
			CandidateCount:      8,
			DistanceFrac:        0.25,
			MarginFrac:          0.05,
			QuadrantBonus:       30,
			CenterBonus:         20,
			CenterFarFrac:       0.6,
			UnexploredBonus:     40,
			PathUnexploredBonus: 10,
			DistanceWeight:      0.5,
			SameQuadrantPenalty: 15,
		},
		Escape: Escape{
			Ticks:           25,
			DistanceFrac:    0.35,
			MarginFrac:      0.08,
			ArriveRadius:    2.0,
			ClearanceRadius: 8.0,
			JitterDeg:       60,
			MinSamples:      10,
		},
		Detection: Detection{
			BufferCap:          30,
			MinPoints:          10,
			RepeatThreshold:    4,
			UniqueRatioLow:     0.4,
			KnotHigh:           12.0,
			KnotBufferMin:      12,
			SmallArea:          9.0,
			SmallAreaKnot:      6.0,
			SmallAreaBufferMin: 20,
			LowCoverageArea:    16.0,
			StuckDecay:         1,
		},
		Action: Action{
			BatteryLowThreshold: 20,
			BatteryDrain:        0.5,
			MoveSpeed:           1.0,
			SensorRadius:        6.0,
			ObstacleDilation:    0.5,
			PheromoneInitial:    100,
			PheromoneDecay:      0.95,
			PheromoneFloor:      1.0,
			PlanWindowRadius:    2,
			PlanTimeoutMs:       8,
			PlanCacheTTLTicks:   5,
			HomeRingRadius:      3.0,
		},
	}
}

// fillZeros backfills any knob left at its zero value with the default.
// Lets a partial behavior.yaml override only the knobs it names.
func (b *Behavior) fillZeros() {
	d := Defaults()
	ff := func(dst *float64, def float64) {
		if *dst == 0 {
			*dst = def
		}
	}
	fi := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	fi(&b.Exploration.CandidateCount, d.Exploration.CandidateCount)
	ff(&b.Exploration.DistanceFrac, d.Exploration.DistanceFrac)
	ff(&b.Exploration.MarginFrac, d.Exploration.MarginFrac)
	ff(&b.Exploration.QuadrantBonus, d.Exploration.QuadrantBonus)
	ff(&b.Exploration.CenterBonus, d.Exploration.CenterBonus)
	ff(&b.Exploration.CenterFarFrac, d.Exploration.CenterFarFrac)
	ff(&b.Exploration.UnexploredBonus, d.Exploration.UnexploredBonus)
	ff(&b.Exploration.PathUnexploredBonus, d.Exploration.PathUnexploredBonus)
	ff(&b.Exploration.DistanceWeight, d.Exploration.DistanceWeight)
	ff(&b.Exploration.SameQuadrantPenalty, d.Exploration.SameQuadrantPenalty)

	fi(&b.Escape.Ticks, d.Escape.Ticks)
	ff(&b.Escape.DistanceFrac, d.Escape.DistanceFrac)
	ff(&b.Escape.MarginFrac, d.Escape.MarginFrac)
	ff(&b.Escape.ArriveRadius, d.Escape.ArriveRadius)
	ff(&b.Escape.ClearanceRadius, d.Escape.ClearanceRadius)
	ff(&b.Escape.JitterDeg, d.Escape.JitterDeg)
	fi(&b.Escape.MinSamples, d.Escape.MinSamples)

	fi(&b.Detection.BufferCap, d.Detection.BufferCap)
	fi(&b.Detection.MinPoints, d.Detection.MinPoints)
	fi(&b.Detection.RepeatThreshold, d.Detection.RepeatThreshold)
	ff(&b.Detection.UniqueRatioLow, d.Detection.UniqueRatioLow)
	ff(&b.Detection.KnotHigh, d.Detection.KnotHigh)
	fi(&b.Detection.KnotBufferMin, d.Detection.KnotBufferMin)
	ff(&b.Detection.SmallArea, d.Detection.SmallArea)
	ff(&b.Detection.SmallAreaKnot, d.Detection.SmallAreaKnot)
	fi(&b.Detection.SmallAreaBufferMin, d.Detection.SmallAreaBufferMin)
	ff(&b.Detection.LowCoverageArea, d.Detection.LowCoverageArea)
	fi(&b.Detection.StuckDecay, d.Detection.StuckDecay)

	ff(&b.Action.BatteryLowThreshold, d.Action.BatteryLowThreshold)
	ff(&b.Action.BatteryDrain, d.Action.BatteryDrain)
	ff(&b.Action.MoveSpeed, d.Action.MoveSpeed)
	ff(&b.Action.SensorRadius, d.Action.SensorRadius)
	ff(&b.Action.ObstacleDilation, d.Action.ObstacleDilation)
	ff(&b.Action.PheromoneInitial, d.Action.PheromoneInitial)
	ff(&b.Action.PheromoneDecay, d.Action.PheromoneDecay)
	ff(&b.Action.PheromoneFloor, d.Action.PheromoneFloor)
	fi(&b.Action.PlanWindowRadius, d.Action.PlanWindowRadius)
	fi(&b.Action.PlanTimeoutMs, d.Action.PlanTimeoutMs)
	fi(&b.Action.PlanCacheTTLTicks, d.Action.PlanCacheTTLTicks)
	ff(&b.Action.HomeRingRadius, d.Action.HomeRingRadius)
}

func (b Behavior) Validate() error {
	if b.Detection.MinPoints < 10 {
		return fmt.Errorf("detection: min_points %d < 10", b.Detection.MinPoints)
	}
	if b.Detection.BufferCap < b.Detection.MinPoints {
		return fmt.Errorf("detection: buffer_cap %d < min_points %d", b.Detection.BufferCap, b.Detection.MinPoints)
	}
	if b.Action.PlanWindowRadius < 1 || b.Action.PlanWindowRadius > 2 {
		return fmt.Errorf("action: plan_window_radius %d outside 1..2", b.Action.PlanWindowRadius)
	}
	if b.Action.PheromoneDecay <= 0 || b.Action.PheromoneDecay >= 1 {
		return fmt.Errorf("action: pheromone_decay %v outside (0,1)", b.Action.PheromoneDecay)
	}
	if b.Exploration.CandidateCount < 1 {
		return fmt.Errorf("exploration: candidate_count %d < 1", b.Exploration.CandidateCount)
	}
	if b.Escape.Ticks < 1 {
		return fmt.Errorf("escape: ticks %d < 1", b.Escape.Ticks)
	}
	return nil
}
