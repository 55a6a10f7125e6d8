package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "gridrover.ai/internal/persistence/log"
	"gridrover.ai/internal/persistence/indexdb"
	"gridrover.ai/internal/planner"
	"gridrover.ai/internal/sim/tuning"
	"gridrover.ai/internal/sim/world"
	"gridrover.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		runID      = flag.String("run", "run_1", "run id")
		seed       = flag.Int64("seed", 1337, "world seed")
		width      = flag.Int("width", 64, "world width in cells")
		height     = flag.Int("height", 64, "world height in cells")
		robots     = flag.Int("robots", 4, "fleet size")
		objects    = flag.Int("objects", 12, "collectible object count")
		obstacles  = flag.Int("obstacles", 8, "obstacle count")
		battery    = flag.Float64("battery", 100, "battery capacity")
		tickRate   = flag.Int("tick_rate", 5, "ticks per second")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/behavior.yaml", "behavior tuning path")
		solverURL  = flag.String("solver", "", "plan solver endpoint (empty disables planning)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	cfg := world.WorldConfig{
		ID:         *runID,
		Width:      *width,
		Height:     *height,
		Robots:     *robots,
		Objects:    *objects,
		Obstacles:  *obstacles,
		BatteryCap: *battery,
		Seed:       *seed,
		TickRateHz: *tickRate,
	}
	w, err := world.New(cfg, tune)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	runDir := filepath.Join(*dataDir, "runs", *runID)
	_ = os.MkdirAll(runDir, 0o755)

	tickLog := persistlog.NewTickLogger(runDir)
	defer tickLog.Close()
	w.SetTickLogger(tickLog)

	if !*disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(runDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.RecordRun(cfg, tune); err != nil {
			logger.Printf("index: record run: %v", err)
		}
		w.SetStatsSink(idx)
	}

	if u := strings.TrimSpace(*solverURL); u != "" {
		solver, err := planner.NewHTTPSolver(u)
		if err != nil {
			logger.Fatalf("solver: %v", err)
		}
		bridgeLog := log.New(os.Stdout, "[planner] ", log.LstdFlags|log.Lmicroseconds)
		w.SetPlanner(planner.NewBridge(
			"gridrover",
			solver,
			tune.Action.PlanWindowRadius,
			tune.Action.PlanTimeoutMs,
			uint64(tune.Action.PlanCacheTTLTicks),
			bridgeLog,
		))
		logger.Printf("planning via %s", u)
	} else {
		logger.Printf("no solver configured; exploration only")
	}

	ctx, cancel := signalContext()
	defer cancel()

	obs := observer.NewServer(w, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
	w.SetObsSink(obs.Sink())
	go obs.Run(ctx)

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP gridrover_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE gridrover_tick gauge\n")
		fmt.Fprintf(rw, "gridrover_tick{run=%q} %d\n", *runID, w.CurrentTick())

		fmt.Fprintf(rw, "# HELP gridrover_active_robots Robots with battery remaining.\n")
		fmt.Fprintf(rw, "# TYPE gridrover_active_robots gauge\n")
		fmt.Fprintf(rw, "gridrover_active_robots{run=%q} %d\n", *runID, w.ActiveRobots())

		fmt.Fprintf(rw, "# HELP gridrover_collected_total Objects collected so far.\n")
		fmt.Fprintf(rw, "# TYPE gridrover_collected_total counter\n")
		fmt.Fprintf(rw, "gridrover_collected_total{run=%q} %d\n", *runID, w.CollectedTotal())
	})
	mux.HandleFunc("/v1/observe/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observe", obs.WSHandler())

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Printf("run=%s %dx%d robots=%d seed=%d listening on %s", *runID, *width, *height, *robots, *seed, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http: %v", err)
	}
	logger.Printf("shutdown complete tick=%d collected=%d", w.CurrentTick(), w.CollectedTotal())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
