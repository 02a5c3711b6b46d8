package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"netaction.dev/internal/sim/action"
	"netaction.dev/internal/sim/catalogs"
	"netaction.dev/internal/sim/tuning"
	"netaction.dev/internal/sim/world"
)

// SQLiteIndex is a secondary, queryable index of the tick log and the loaded catalog.
// Writes are queued to one goroutine and batched into transactions; the JSONL tick log
// remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	dropSession atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSession
)

type req struct {
	kind reqKind

	tick    world.TickLogEntry
	session SessionEvent
}

// SessionEvent is a websocket session joining or leaving the world.
type SessionEvent struct {
	Tick      uint64
	SessionID string
	ActorID   uint64
	Name      string
	// Kind is "join" or "leave".
	Kind string
	At   time.Time
}

type Stats struct {
	DropTickTotal    uint64 `json:"drop_tick_total"`
	DropSessionTotal uint64 `json:"drop_session_total"`
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
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
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			behavior TEXT NOT NULL,
			duration_seconds REAL NOT NULL,
			exec_time_seconds REAL NOT NULL,
			blocking_mode TEXT NOT NULL,
			anticipatable INTEGER NOT NULL,
			radius REAL NOT NULL,
			params_json TEXT NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			played INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			charges INTEGER NOT NULL,
			activities INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			actors INTEGER NOT NULL,
			blocking INTEGER NOT NULL,
			non_blocking INTEGER NOT NULL,
			step_ms REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			tick INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			actor_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (session_id, kind)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_actor ON sessions(actor_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle for read-only queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

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

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropTickTotal:    s.dropTick.Load(),
		DropSessionTotal: s.dropSession.Load(),
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSession(ev SessionEvent) {
	if s == nil || s.closed.Load() || ev.SessionID == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.ch <- req{kind: reqSession, session: ev}:
	default:
		s.dropSession.Add(1)
	}
}

// UpsertCatalog replaces the actions table with reg and stores the applied tuning.
// It runs synchronously at startup so the index never lags the catalog clients see.
func (s *SQLiteIndex) UpsertCatalog(reg *catalogs.Registry, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	if reg == nil {
		return action.ErrRegistryNotReady
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	catJSON, err := json.Marshal(reg.CatalogMsg().Actions)
	if err != nil {
		return err
	}
	tuneJSON, err := json.Marshal(tune)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('catalog_digest',?)`, reg.Digest); err != nil {
		return err
	}
	cat, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer cat.Close()
	if _, err := cat.Exec("actions", reg.Digest, string(catJSON), now); err != nil {
		return err
	}
	if _, err := cat.Exec("tuning", tune.Digest(), string(tuneJSON), now); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM actions`); err != nil {
		return err
	}
	ins, err := tx.Prepare(`INSERT INTO actions(id,name,behavior,duration_seconds,exec_time_seconds,blocking_mode,anticipatable,radius,params_json,digest) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	for _, d := range reg.CatalogMsg().Actions {
		params := []byte("{}")
		if len(d.Params) > 0 {
			if params, err = json.Marshal(d.Params); err != nil {
				return err
			}
		}
		anticipatable := 0
		if d.Anticipatable {
			anticipatable = 1
		}
		if _, err := ins.Exec(int64(d.ID), d.Name, d.Behavior, d.DurationSeconds, d.ExecTimeSeconds,
			d.BlockingMode, anticipatable, d.Radius, string(params), reg.Digest); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,joins,leaves,played,rejected,charges,activities,deaths,actors,blocking,non_blocking,step_ms) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(tick,session_id,actor_id,name,kind,at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertSession != nil {
			_ = insertSession.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
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
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if insertTick == nil {
				break
			}
			if _, err := tx.Stmt(insertTick).Exec(
				int64(e.Tick),
				e.Joins, e.Leaves,
				e.Played, e.Rejected, e.Charges,
				e.Activities, e.Deaths,
				e.Actors, e.Blocking, e.NonBlocking,
				e.StepMS,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSession:
			ev := r.session
			if insertSession == nil {
				break
			}
			if _, err := tx.Stmt(insertSession).Exec(
				int64(ev.Tick),
				ev.SessionID,
				int64(ev.ActorID),
				ev.Name,
				ev.Kind,
				ev.At.UTC().Format(time.RFC3339Nano),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
