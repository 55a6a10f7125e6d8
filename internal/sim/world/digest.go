package world

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gridrover.ai/internal/protocol"
)

// TickLogEntry is one JSONL record per tick (compressed by the
// persistence layer).
type TickLogEntry struct {
	Tick           uint64           `json:"tick"`
	Actions        []RecordedAction `json:"actions,omitempty"`
	CollectedTotal int              `json:"collected_total"`
	Collisions     int              `json:"collisions,omitempty"`
	Digest         string           `json:"digest"`
}

type RecordedAction struct {
	RobotID int     `json:"robot_id"`
	Action  string  `json:"action"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// stateDigest is a canonical hash of the mutable world state, used by
// determinism tests and the tick log.
func (w *World) stateDigest(tick uint64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tick=%d\n", tick)
	for _, r := range w.robots {
		fmt.Fprintf(&sb, "robot %d %.6f %.6f %.6f %.6f %v %d %s\n",
			r.ID, r.X, r.Y, r.HeadingDeg, r.Battery, r.Active, r.Collisions, r.Action)
	}
	for _, o := range w.objects {
		fmt.Fprintf(&sb, "object %d %.6f %.6f %v\n", o.ID, o.X, o.Y, o.Collected)
	}
	for i := range w.pheromones {
		p := &w.pheromones[i]
		fmt.Fprintf(&sb, "pheromone %s %.6f %.6f %.6f %d\n", p.Kind, p.X, p.Y, p.Strength, p.RobotID)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}

func (w *World) buildObs(tick uint64, digest string) protocol.ObsMsg {
	msg := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		CollectedTotal:  w.collectedTotal,
		Digest:          digest,
	}
	for _, r := range w.robots {
		msg.Robots = append(msg.Robots, protocol.RobotObs{
			ID:         r.ID,
			X:          r.X,
			Y:          r.Y,
			HeadingDeg: r.HeadingDeg,
			Battery:    r.Battery,
			Active:     r.Active,
			Action:     r.Action,
			Collisions: r.Collisions,
			Escaping:   r.Known.Escaping(),
		})
	}
	remaining := 0
	for _, o := range w.objects {
		if !o.Collected {
			remaining++
		}
	}
	msg.ObjectsRemaining = remaining
	for i := range w.pheromones {
		p := &w.pheromones[i]
		msg.Pheromones = append(msg.Pheromones, protocol.PheromoneObs{
			X:        p.X,
			Y:        p.Y,
			Kind:     string(p.Kind),
			Strength: p.Strength,
			RobotID:  p.RobotID,
		})
	}
	return msg
}
