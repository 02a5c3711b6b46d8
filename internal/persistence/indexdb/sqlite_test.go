package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"netaction.dev/internal/sim/action"
	"netaction.dev/internal/sim/behaviors"
	"netaction.dev/internal/sim/catalogs"
	"netaction.dev/internal/sim/tuning"
	"netaction.dev/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	s.RecordSession(SessionEvent{SessionID: "s1", Kind: "join"})
	s.RecordSession(SessionEvent{})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropSessionTotal != 1 {
		t.Fatalf("DropSessionTotal=%d want=1", st.DropSessionTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesTicksSessionsAndCatalog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	reg, err := catalogs.New([]action.Definition{
		{Name: "slash", Behavior: "melee", DurationSeconds: 0.5, ExecTimeSeconds: 0.1, Params: map[string]float64{"damage": 30}},
		{Name: "jab", Behavior: "melee", BlockingMode: action.BlockOnlyDuringExecTime, Anticipatable: true},
	}, behaviors.Factories())
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if err := idx.UpsertCatalog(reg, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}

	for i := uint64(0); i < 3; i++ {
		_ = idx.WriteTick(world.TickLogEntry{Tick: i, Played: 1, Actors: 2, Blocking: int(i)})
	}
	idx.RecordSession(SessionEvent{Tick: 1, SessionID: "s1", ActorID: 1, Name: "alice", Kind: "join"})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var ticks, played, maxBlocking int
	if err := db.QueryRow(`SELECT COUNT(*), SUM(played), MAX(blocking) FROM ticks`).Scan(&ticks, &played, &maxBlocking); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if ticks != 3 || played != 3 || maxBlocking != 2 {
		t.Fatalf("ticks=%d played=%d max_blocking=%d", ticks, played, maxBlocking)
	}

	var name, mode string
	var anticipatable int
	if err := db.QueryRow(`SELECT name, blocking_mode, anticipatable FROM actions WHERE id=1`).Scan(&name, &mode, &anticipatable); err != nil {
		t.Fatalf("actions: %v", err)
	}
	if name != "jab" || mode != "ONLY_DURING_EXEC_TIME" || anticipatable != 1 {
		t.Fatalf("action row: %s %s %d", name, mode, anticipatable)
	}

	var digest string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='catalog_digest'`).Scan(&digest); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if digest != reg.Digest {
		t.Fatalf("digest=%s want %s", digest, reg.Digest)
	}

	var actor int64
	if err := db.QueryRow(`SELECT actor_id FROM sessions WHERE session_id='s1' AND kind='join'`).Scan(&actor); err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if actor != 1 {
		t.Fatalf("actor=%d", actor)
	}
}
