package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/world"
	"netaction.dev/internal/transport/observer"
	"netaction.dev/internal/transport/ws"
)

type muxOptions struct {
	AdminHTTP bool
	PprofHTTP bool
}

func newMux(w *world.World, wsSrv *ws.Server, idx runtimeIndex, opts muxOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, wsSrv, idx))

	if opts.AdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID       string             `json:"world_id"`
				Tick          uint64             `json:"tick"`
				CatalogDigest string             `json:"catalog_digest"`
				Sessions      int64              `json:"sessions"`
				Metrics       world.WorldMetrics `json:"metrics"`
				State         protocol.StateMsg  `json:"state"`
			}{
				WorldID:       w.ID(),
				Tick:          w.CurrentTick(),
				CatalogDigest: w.Catalog().Digest,
				Sessions:      wsSrv.Sessions(),
				Metrics:       w.Metrics(),
				State:         w.LatestState(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})

		obsSrv := observer.NewServer(w, wsSrv.Logger())
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	}
	if opts.PprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

func metricsHandler(w *world.World, wsSrv *ws.Server, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		id := w.ID()
		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP netaction_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE netaction_world_tick gauge\n")
		fmt.Fprintf(rw, "netaction_world_tick{world=%q} %d\n", id, tick)

		fmt.Fprintf(rw, "# HELP netaction_world_actors Current number of actors in the world.\n")
		fmt.Fprintf(rw, "# TYPE netaction_world_actors gauge\n")
		fmt.Fprintf(rw, "netaction_world_actors{world=%q} %d\n", id, m.Actors)

		fmt.Fprintf(rw, "# HELP netaction_ws_sessions Current number of websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE netaction_ws_sessions gauge\n")
		fmt.Fprintf(rw, "netaction_ws_sessions{world=%q} %d\n", id, wsSrv.Sessions())

		fmt.Fprintf(rw, "# HELP netaction_ws_bad_frames_total Binary frames dropped by the decoder.\n")
		fmt.Fprintf(rw, "# TYPE netaction_ws_bad_frames_total counter\n")
		fmt.Fprintf(rw, "netaction_ws_bad_frames_total{world=%q} %d\n", id, wsSrv.BadFrames())

		fmt.Fprintf(rw, "# HELP netaction_actions_running Running action instances by collection.\n")
		fmt.Fprintf(rw, "# TYPE netaction_actions_running gauge\n")
		fmt.Fprintf(rw, "netaction_actions_running{world=%q,set=%q} %d\n", id, "blocking", m.Blocking)
		fmt.Fprintf(rw, "netaction_actions_running{world=%q,set=%q} %d\n", id, "non_blocking", m.NonBlocking)

		fmt.Fprintf(rw, "# HELP netaction_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE netaction_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "netaction_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "netaction_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "netaction_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)

		fmt.Fprintf(rw, "# HELP netaction_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE netaction_world_step_ms gauge\n")
		fmt.Fprintf(rw, "netaction_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

		fmt.Fprintf(rw, "# HELP netaction_actions_total Play requests by outcome.\n")
		fmt.Fprintf(rw, "# TYPE netaction_actions_total counter\n")
		fmt.Fprintf(rw, "netaction_actions_total{world=%q,result=%q} %d\n", id, "played", m.Totals.Played)
		fmt.Fprintf(rw, "netaction_actions_total{world=%q,result=%q} %d\n", id, "rejected", m.Totals.Rejected)

		fmt.Fprintf(rw, "# HELP netaction_events_total Gameplay events since start.\n")
		fmt.Fprintf(rw, "# TYPE netaction_events_total counter\n")
		fmt.Fprintf(rw, "netaction_events_total{world=%q,event=%q} %d\n", id, "charge", m.Totals.Charges)
		fmt.Fprintf(rw, "netaction_events_total{world=%q,event=%q} %d\n", id, "activity", m.Totals.Activities)
		fmt.Fprintf(rw, "netaction_events_total{world=%q,event=%q} %d\n", id, "death", m.Totals.Deaths)
		fmt.Fprintf(rw, "netaction_events_total{world=%q,event=%q} %d\n", id, "error", m.Totals.Errors)
		fmt.Fprintf(rw, "netaction_events_total{world=%q,event=%q} %d\n", id, "dropped_confirm", m.Totals.DroppedConfirms)

		fmt.Fprintf(rw, "# HELP netaction_pool_instances Action instance pool counters.\n")
		fmt.Fprintf(rw, "# TYPE netaction_pool_instances gauge\n")
		fmt.Fprintf(rw, "netaction_pool_instances{world=%q,stat=%q} %d\n", id, "created", m.Pool.Created)
		fmt.Fprintf(rw, "netaction_pool_instances{world=%q,stat=%q} %d\n", id, "reused", m.Pool.Reused)
		fmt.Fprintf(rw, "netaction_pool_instances{world=%q,stat=%q} %d\n", id, "released", m.Pool.Released)
		fmt.Fprintf(rw, "netaction_pool_instances{world=%q,stat=%q} %d\n", id, "dropped", m.Pool.Dropped)
		fmt.Fprintf(rw, "netaction_pool_instances{world=%q,stat=%q} %d\n", id, "idle", m.Pool.Idle)

		if idx != nil {
			s := idx.Stats()
			fmt.Fprintf(rw, "# HELP netaction_index_queue_depth Pending index writes.\n")
			fmt.Fprintf(rw, "# TYPE netaction_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "netaction_index_queue_depth{world=%q} %d\n", id, s.QueueDepth)
			fmt.Fprintf(rw, "# HELP netaction_index_dropped_total Index writes dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE netaction_index_dropped_total counter\n")
			fmt.Fprintf(rw, "netaction_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
			fmt.Fprintf(rw, "netaction_index_dropped_total{world=%q,kind=%q} %d\n", id, "session", s.DropSessionTotal)
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
