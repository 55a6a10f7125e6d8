// Package indexdb maintains a queryable sqlite read model next to the
// JSONL event logs. It is a secondary index: writes are async and may
// drop under pressure, the compressed logs remain the source of truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridrover.ai/internal/sim/tuning"
	"gridrover.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan op
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type op struct {
	stats world.TickStats
	flush chan struct{} // non-nil: commit and signal instead of insert
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Buffered so a slow disk never stalls the tick loop.
		ch: make(chan op, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			robots INTEGER NOT NULL,
			objects INTEGER NOT NULL,
			obstacles INTEGER NOT NULL,
			tuning_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			active_robots INTEGER NOT NULL,
			objects_collected INTEGER NOT NULL,
			collisions INTEGER NOT NULL,
			plans_requested INTEGER NOT NULL,
			plan_fallbacks INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_collected ON ticks(objects_collected);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteTickStats implements world.StatsSink. Never blocks: entries are
// dropped when the indexer falls behind.
func (s *SQLiteIndex) WriteTickStats(stats world.TickStats) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- op{stats: stats}:
	default:
	}
	return nil
}

// RecordRun writes the run row synchronously before the loop starts, so
// every ticks row has its run metadata in place.
func (s *SQLiteIndex) RecordRun(cfg world.WorldConfig, tune tuning.Behavior) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO runs(run_id,seed,width,height,robots,objects,obstacles,tuning_digest,tuning_json,started_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		cfg.ID, cfg.Seed, cfg.Width, cfg.Height, cfg.Robots, cfg.Objects, cfg.Obstacles,
		hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// LatestStats returns the highest-tick row, for dashboards and tests.
func (s *SQLiteIndex) LatestStats() (world.TickStats, bool, error) {
	row := s.db.QueryRow(
		`SELECT tick,active_robots,objects_collected,collisions,plans_requested,plan_fallbacks
		 FROM ticks ORDER BY tick DESC LIMIT 1`)
	var st world.TickStats
	err := row.Scan(&st.Tick, &st.ActiveRobots, &st.ObjectsCollected, &st.Collisions, &st.PlansRequested, &st.PlanFallbacks)
	if err == sql.ErrNoRows {
		return world.TickStats{}, false, nil
	}
	if err != nil {
		return world.TickStats{}, false, err
	}
	return st, true, nil
}

// Flush blocks until everything queued before the call is committed.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- op{flush: done}
	<-done
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insert, err := s.db.Prepare(
		`INSERT OR REPLACE INTO ticks(tick,active_robots,objects_collected,collisions,plans_requested,plan_fallbacks)
		 VALUES(?,?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
		}
		return
	}
	defer insert.Close()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for o := range s.ch {
		if o.flush != nil {
			commit()
			close(o.flush)
			continue
		}
		st := o.stats
		begin()
		if tx == nil {
			continue
		}
		if _, err := tx.Stmt(insert).Exec(
			int64(st.Tick),
			st.ActiveRobots,
			st.ObjectsCollected,
			st.Collisions,
			st.PlansRequested,
			st.PlanFallbacks,
		); err != nil {
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
