package main

import (
	"fmt"
	"path/filepath"

	"netaction.dev/internal/persistence/indexdb"
	"netaction.dev/internal/sim/catalogs"
	"netaction.dev/internal/sim/tuning"
	"netaction.dev/internal/sim/world"
	"netaction.dev/internal/transport/ws"
)

type runtimeIndex interface {
	world.TickLogger
	ws.SessionRecorder
	Close() error
	UpsertCatalog(reg *catalogs.Registry, tune tuning.Tuning) error
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir, backend string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported NETACTION_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
