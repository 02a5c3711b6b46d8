// Package observer serves a read-only spectator feed of the world state.
package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"netaction.dev/internal/observerproto"
	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/world"
)

// Server never talks to the world loop; it samples the published state.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader  websocket.Upgrader
	observers atomic.Int64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Observers() int64 { return s.observers.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         s.world.ID(),
			Tick:            s.world.CurrentTick(),
			WorldParams:     s.world.Params(),
			Catalog:         s.world.Catalog().CatalogMsg(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		s.observers.Add(1)
		defer s.observers.Add(-1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var current atomic.Pointer[observerproto.SubscribeMsg]
		current.Store(&sub)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			writeErr <- s.stream(ctx, conn, &current)
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if next, ok := parseSubscribe(msg); ok {
				current.Store(&next)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, current *atomic.Pointer[observerproto.SubscribeMsg]) error {
	hz := s.world.TickRateHz()
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var lastTick uint64
	sent := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		st := s.world.LatestState()
		if st.Type == "" || (sent && st.Tick == lastTick) {
			continue
		}
		sub := current.Load()
		if sent && st.Tick < lastTick+uint64(sub.EveryTicks) {
			continue
		}
		b, err := json.Marshal(buildTick(st, s.world.Metrics(), sub.ActorIDs))
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
		lastTick = st.Tick
		sent = true
	}
}

func buildTick(st protocol.StateMsg, m world.WorldMetrics, only []uint64) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            st.Tick,
		Actors:          make([]protocol.ActorState, 0, len(st.Actors)),
		Played:          m.Totals.Played,
		Rejected:        m.Totals.Rejected,
		Deaths:          m.Totals.Deaths,
	}
	for _, a := range st.Actors {
		if len(only) > 0 && !slices.Contains(only, a.ID) {
			continue
		}
		msg.Actors = append(msg.Actors, a)
	}
	return msg
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	if sub.EveryTicks <= 0 {
		sub.EveryTicks = 1
	}
	if sub.EveryTicks > 1000 {
		sub.EveryTicks = 1000
	}
	return sub, true
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
