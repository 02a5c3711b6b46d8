package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"netaction.dev/internal/persistence/indexdb"
	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/world"
)

// SessionRecorder receives session joins and leaves. *indexdb.SQLiteIndex implements it.
type SessionRecorder interface {
	RecordSession(ev indexdb.SessionEvent)
}

type Options struct {
	// MaxOutQueue caps the per-session outbound queue. Clients may ask for less in HELLO.
	MaxOutQueue int
	Sessions    SessionRecorder
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader

	sessions  atomic.Int64
	badFrames atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if opts.MaxOutQueue <= 0 {
		opts.MaxOutQueue = 256
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Logger() *log.Logger { return s.log }

// Sessions is the number of connected sessions.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

// BadFrames counts binary frames that failed to decode.
func (s *Server) BadFrames() uint64 { return s.badFrames.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess, ok := s.handshake(ctx, conn)
		if !ok {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-sess.out:
					if err := writeOutbound(conn, m); err != nil {
						cancel()
						return
					}
				case m := <-sess.state:
					if err := writeOutbound(conn, m); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, ok := s.decode(sess, kind, msg)
			if !ok {
				continue
			}
			select {
			case s.world.Inbox() <- env:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		select {
		case s.world.Leave() <- sess.actorID:
		case <-time.After(time.Second):
			s.log.Printf("leave dropped: session=%s actor=%d", sess.id, sess.actorID)
		}
		s.record(sess, "leave")
	}
}

type session struct {
	id      string
	name    string
	actorID uint64
	out     chan world.Outbound
	state   chan world.Outbound
}

func writeOutbound(conn *websocket.Conn, m world.Outbound) error {
	kind := websocket.TextMessage
	if m.Binary {
		kind = websocket.BinaryMessage
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(kind, m.Data)
}

func (s *Server) decode(sess *session, kind int, msg []byte) (world.ActionEnvelope, bool) {
	switch kind {
	case websocket.BinaryMessage:
		f, err := protocol.DecodeFrame(msg)
		if err != nil || f.Kind != protocol.FramePlay {
			s.badFrames.Add(1)
			reason := "bad frame"
			if err != nil {
				reason = err.Error()
			}
			s.sendError(sess, protocol.ErrBadPacket, reason)
			return world.ActionEnvelope{}, false
		}
		return world.ActionEnvelope{ActorID: sess.actorID, Kind: world.EnvelopePlay, Request: f.Request}, true

	case websocket.TextMessage:
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			s.sendError(sess, protocol.ErrProtoBadRequest, "bad json")
			return world.ActionEnvelope{}, false
		}
		if base.ProtocolVersion != protocol.Version {
			s.sendError(sess, protocol.ErrProtoVersion, "bad protocol_version")
			return world.ActionEnvelope{}, false
		}
		if base.Type != protocol.TypeCharge {
			s.sendError(sess, protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
			return world.ActionEnvelope{}, false
		}
		return world.ActionEnvelope{ActorID: sess.actorID, Kind: world.EnvelopeCharge}, true
	}
	return world.ActionEnvelope{}, false
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*session, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrProtoVersion,
			Message:         "want protocol_version " + protocol.Version,
		})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, false
	}
	if hello.Name == "" {
		hello.Name = "actor"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 || maxQ > s.opts.MaxOutQueue {
		maxQ = s.opts.MaxOutQueue
	}
	if maxQ < 8 {
		maxQ = 8
	}

	sess := &session{
		id:    uuid.NewString(),
		name:  hello.Name,
		out:   make(chan world.Outbound, maxQ),
		state: make(chan world.Outbound, 1),
	}
	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{Name: hello.Name, SessionID: sess.id, Out: sess.out, State: sess.state, Resp: respCh}:
	case <-ctx.Done():
		return nil, false
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		return nil, false
	}
	sess.actorID = resp.Welcome.ActorID

	// Send welcome + catalog immediately. The actor already exists in the world, so a
	// failure here still needs a leave.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- sess.actorID
		return nil, false
	}
	if err := writeJSON(conn, resp.Catalog); err != nil {
		s.world.Leave() <- sess.actorID
		return nil, false
	}
	s.record(sess, "join")
	s.log.Printf("session %s joined as actor %d (%s)", sess.id, sess.actorID, sess.name)
	return sess, true
}

func (s *Server) record(sess *session, kind string) {
	if s.opts.Sessions == nil {
		return
	}
	s.opts.Sessions.RecordSession(indexdb.SessionEvent{
		Tick:      s.world.CurrentTick(),
		SessionID: sess.id,
		ActorID:   sess.actorID,
		Name:      sess.name,
		Kind:      kind,
	})
}

func (s *Server) sendError(sess *session, code, msg string) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	if err != nil {
		return
	}
	select {
	case sess.out <- world.Outbound{Data: b}:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
