package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "netaction.dev/internal/persistence/log"
	"netaction.dev/internal/sim/behaviors"
	"netaction.dev/internal/sim/catalogs"
	"netaction.dev/internal/sim/tuning"
	"netaction.dev/internal/sim/world"
	"netaction.dev/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		worldID     = flag.String("world", "world_1", "world id")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		actionsPath = flag.String("actions", "", "path to actions.yaml (default: <configs>/actions.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite index (tick counters + catalog)")
		noTickLog   = flag.Bool("disable_tick_log", false, "disable the compressed tick log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	envCfg, err := parseEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if envCfg.DataDir != "" {
		*dataDir = envCfg.DataDir
	}
	if envCfg.DisableDB != nil {
		*disableDB = *envCfg.DisableDB
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	ap := strings.TrimSpace(*actionsPath)
	if ap == "" {
		ap = filepath.Join(*configDir, "actions.yaml")
	}
	reg, err := catalogs.Load(ap, behaviors.Factories())
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	logger.Printf("catalog: %d actions digest=%s", reg.Len(), reg.Digest)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	idx, err := openRuntimeIndex(worldDir, envCfg.IndexBackend, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalog(reg, tune); err != nil {
			logger.Printf("index backend: upsert catalog: %v", err)
		}
	}

	w, err := world.New(world.WorldConfig{
		ID:                    *worldID,
		TickRateHz:            tune.TickRateHz,
		AnticipationTimeoutMs: tune.AnticipationTimeoutMs,
		PoolMaxIdlePerAction:  tune.PoolMaxIdlePerAction,
		MaxQueuedPerActor:     tune.MaxQueuedPerActor,
		StartHP:               tune.StartHP,
		ArenaSize:             tune.ArenaSize,
	}, reg, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	var tickLog *persistlog.TickLogger
	if !*noTickLog {
		tickLog = persistlog.NewTickLogger(worldDir)
		defer tickLog.Close()
	}
	tl := multiTickLogger{}
	if tickLog != nil {
		tl.a = tickLog
	}
	if idx != nil {
		tl.b = idx
	}
	w.SetTickLogger(tl)

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	wsOpts := ws.Options{MaxOutQueue: tune.MaxOutQueue}
	if idx != nil {
		wsOpts.Sessions = idx
	}
	wsSrv := ws.NewServer(w, logger, wsOpts)

	adminHTTP := envCfg.adminHTTP()
	if !adminHTTP {
		logger.Printf("admin endpoints disabled (NETACTION_ENABLE_ADMIN_HTTP=false)")
	}
	if !envCfg.EnablePprofHTTP {
		logger.Printf("pprof endpoints disabled (NETACTION_ENABLE_PPROF_HTTP=false)")
	}
	mux := newMux(w, wsSrv, idx, muxOptions{AdminHTTP: adminHTTP, PprofHTTP: envCfg.EnablePprofHTTP})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tick_rate_hz=%d anticipation_timeout_ms=%d)", *addr, tune.TickRateHz, tune.AnticipationTimeoutMs)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
	logger.Printf("shutdown at tick %d", w.CurrentTick())
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
