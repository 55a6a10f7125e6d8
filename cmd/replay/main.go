// Command replay summarizes a run's compressed tick log: tick range,
// collection progress, collision totals and per-action counts. The log
// is the source of truth; this tool never touches the sqlite index.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	persistlog "gridrover.ai/internal/persistence/log"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory")
		runID   = flag.String("run", "run_1", "run id")
		tail    = flag.Int("tail", 0, "print the last N entries in full")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	runDir := filepath.Join(*dataDir, "runs", *runID)
	entries, err := persistlog.ReadTickLog(runDir)
	if err != nil {
		logger.Fatalf("read tick log: %v", err)
	}
	if len(entries) == 0 {
		logger.Fatalf("no entries under %s", runDir)
	}

	first := entries[0]
	last := entries[len(entries)-1]

	collisions := 0
	actionCounts := map[string]int{}
	for _, e := range entries {
		collisions += e.Collisions
		for _, a := range e.Actions {
			actionCounts[a.Action]++
		}
	}

	fmt.Printf("run %s: %d ticks (%d..%d)\n", *runID, len(entries), first.Tick, last.Tick)
	fmt.Printf("collected: %d  collisions: %d\n", last.CollectedTotal, collisions)
	fmt.Printf("final digest: %s\n", last.Digest)

	names := make([]string, 0, len(actionCounts))
	for name := range actionCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("actions:")
	for _, name := range names {
		fmt.Printf("  %-10s %d\n", name, actionCounts[name])
	}

	if *tail > 0 {
		start := len(entries) - *tail
		if start < 0 {
			start = 0
		}
		fmt.Println("tail:")
		for _, e := range entries[start:] {
			fmt.Printf("  tick=%d collected=%d collisions=%d digest=%s\n",
				e.Tick, e.CollectedTotal, e.Collisions, e.Digest)
			for _, a := range e.Actions {
				fmt.Printf("    r%d %s (%.2f, %.2f)\n", a.RobotID, a.Action, a.X, a.Y)
			}
		}
	}
}
