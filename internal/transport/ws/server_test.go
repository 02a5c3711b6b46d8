package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"netaction.dev/internal/persistence/indexdb"
	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
	"netaction.dev/internal/sim/behaviors"
	"netaction.dev/internal/sim/catalogs"
	"netaction.dev/internal/sim/world"
)

type memSessions struct {
	mu     sync.Mutex
	events []indexdb.SessionEvent
}

func (m *memSessions) RecordSession(ev indexdb.SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *memSessions) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

func startServer(t *testing.T, rec SessionRecorder) (*httptest.Server, *world.World) {
	t.Helper()
	reg, err := catalogs.New([]action.Definition{
		{Name: "heal", Behavior: "heal", DurationSeconds: 1, ExecTimeSeconds: 0.5},
	}, behaviors.Factories())
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	w, err := world.New(world.WorldConfig{TickRateHz: 50, AnticipationTimeoutMs: 100}, reg, logger)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, logger, Options{Sessions: rec}).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, w
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func hello(t *testing.T, conn *websocket.Conn, version string) {
	t.Helper()
	b, _ := json.Marshal(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: version, Name: "alice"})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}
}

func readText(t *testing.T, conn *websocket.Conn, v any) protocol.BaseMessage {
	t.Helper()
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v != nil {
			if err := json.Unmarshal(msg, v); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
		}
		return base
	}
}

func TestHandshake_WelcomeThenCatalog(t *testing.T) {
	rec := &memSessions{}
	srv, _ := startServer(t, rec)
	conn := dial(t, srv)
	hello(t, conn, protocol.Version)

	var welcome protocol.WelcomeMsg
	if b := readText(t, conn, &welcome); b.Type != protocol.TypeWelcome {
		t.Fatalf("first message %q", b.Type)
	}
	if welcome.ActorID == 0 || welcome.SessionID == "" || welcome.WorldParams.AnticipationTimeoutMs != 100 {
		t.Fatalf("welcome=%+v", welcome)
	}
	var cat protocol.CatalogMsg
	if b := readText(t, conn, &cat); b.Type != protocol.TypeCatalog {
		t.Fatalf("second message %q", b.Type)
	}
	if len(cat.Actions) != 1 || cat.Digest != welcome.CatalogDigest {
		t.Fatalf("catalog=%+v", cat)
	}
	if k := rec.kinds(); len(k) != 1 || k[0] != "join" {
		t.Fatalf("sessions=%v", k)
	}
}

func TestHandshake_RejectsVersion(t *testing.T) {
	srv, _ := startServer(t, nil)
	conn := dial(t, srv)
	hello(t, conn, "0.1")

	var e protocol.ErrorMsg
	if b := readText(t, conn, &e); b.Type != protocol.TypeError || e.Code != protocol.ErrProtoVersion {
		t.Fatalf("got %+v", e)
	}
}

func TestPlayFrame_Confirmed(t *testing.T) {
	srv, _ := startServer(t, nil)
	conn := dial(t, srv)
	hello(t, conn, protocol.Version)
	var welcome protocol.WelcomeMsg
	readText(t, conn, &welcome)
	readText(t, conn, nil)

	frame, err := protocol.EncodePlayFrame(protocol.ActionRequest{ID: 0, TargetIDs: []uint64{welcome.ActorID}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Garbage is answered with an error and never reaches the world.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x09}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var gotConfirm, gotError bool
	for !gotConfirm || !gotError {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if kind == websocket.BinaryMessage {
			f, err := protocol.DecodeFrame(msg)
			if err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			if f.Kind != protocol.FrameConfirm || f.ActorID != welcome.ActorID || f.Request.ID != 0 {
				t.Fatalf("frame=%+v", f)
			}
			gotConfirm = true
			continue
		}
		base, _ := protocol.DecodeBase(msg)
		if base.Type == protocol.TypeError {
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			if e.Code != protocol.ErrBadPacket {
				t.Fatalf("error=%+v", e)
			}
			gotError = true
		}
	}
}
