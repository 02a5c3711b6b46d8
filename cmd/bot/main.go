package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"netaction.dev/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "actor name")
		every = flag.Uint64("every", 20, "ticks between plays")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		quiet = flag.Bool("quiet", false, "do not log cues")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Capabilities: protocol.HelloCapabilities{
			Anticipation: true,
			MaxQueue:     64,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	welcome, cat, err := readHandshake(conn)
	if err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	logger.Printf("WELCOME actor_id=%d session=%s tick_rate=%d anticipation_timeout_ms=%d actions=%d",
		welcome.ActorID, welcome.SessionID, welcome.WorldParams.TickRateHz, welcome.WorldParams.AnticipationTimeoutMs, len(cat.Actions))

	c, err := newClient(welcome, cat, *every, *seed, logger)
	if err != nil {
		logger.Fatalf("catalog: %v", err)
	}
	if *quiet {
		c.self.log = nil
	}

	// Reader goroutine. Frames are handed to the tick goroutine, which owns the scheduler.
	frames := make(chan protocol.Frame, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				f, err := protocol.DecodeFrame(msg)
				if err != nil {
					logger.Printf("bad frame: %v", err)
					continue
				}
				frames <- f
				continue
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type == protocol.TypeError {
				var e protocol.ErrorMsg
				if err := json.Unmarshal(msg, &e); err == nil {
					logger.Printf("ERROR %s: %s", e.Code, e.Message)
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	ticker := time.NewTicker(c.clock.Step())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			st := c.sched.Stats()
			logger.Printf("stats: %+v pool=%+v", st, c.pool.Stats())
			return
		case <-done:
			logger.Printf("connection closed")
			return
		case f := <-frames:
			c.confirm(f)
		case <-ticker.C:
			for _, in := range c.tick() {
				if err := send(conn, in); err != nil {
					logger.Printf("send: %v", err)
					return
				}
			}
		}
	}
}

func readHandshake(conn *websocket.Conn) (protocol.WelcomeMsg, protocol.CatalogMsg, error) {
	var welcome protocol.WelcomeMsg
	var cat protocol.CatalogMsg
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for welcome.ActorID == 0 || cat.Type == "" {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return welcome, cat, err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			if err := json.Unmarshal(msg, &welcome); err != nil {
				return welcome, cat, err
			}
		case protocol.TypeCatalog:
			if err := json.Unmarshal(msg, &cat); err != nil {
				return welcome, cat, err
			}
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			return welcome, cat, fmt.Errorf("%s: %s", e.Code, e.Message)
		}
	}
	if welcome.CatalogDigest != cat.Digest {
		return welcome, cat, fmt.Errorf("catalog digest mismatch: welcome=%s catalog=%s", welcome.CatalogDigest, cat.Digest)
	}
	return welcome, cat, nil
}

func send(conn *websocket.Conn, in intent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if in.charge {
		return conn.WriteJSON(protocol.ChargeMsg{
			Type:            protocol.TypeCharge,
			ProtocolVersion: protocol.Version,
			Percentage:      in.pct,
		})
	}
	b, err := protocol.EncodePlayFrame(*in.play)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, b)
}
