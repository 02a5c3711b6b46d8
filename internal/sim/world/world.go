package world

import (
	"errors"
	"log"
	"sync/atomic"

	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
	"netaction.dev/internal/sim/catalogs"
)

type WorldConfig struct {
	ID         string
	TickRateHz int

	// AnticipationTimeoutMs is only announced to clients; the server never predicts.
	AnticipationTimeoutMs int
	PoolMaxIdlePerAction  int
	// MaxQueuedPerActor bounds the blocking queue; plays beyond it are refused with
	// E_WORLD_BUSY. Zero means unbounded.
	MaxQueuedPerActor int

	StartHP      int
	ArenaSize    float64
	RespawnTicks int
}

// Outbound is one websocket message for a client.
type Outbound struct {
	Binary bool
	Data   []byte
}

type JoinRequest struct {
	Name      string
	SessionID string
	// Out carries confirms and errors, which are never evicted.
	Out       chan Outbound
	// State is a latest-wins slot for STATE messages. When nil, STATE goes to Out only
	// if there is room.
	State     chan Outbound
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Catalog protocol.CatalogMsg
}

type EnvelopeKind uint8

const (
	EnvelopePlay EnvelopeKind = iota
	// EnvelopeCharge releases a charge-up. The server measures the charge itself.
	EnvelopeCharge
)

type ActionEnvelope struct {
	ActorID uint64
	Kind    EnvelopeKind
	Request protocol.ActionRequest
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry carries per-tick counters only. Individual requests are never recorded.
type TickLogEntry struct {
	Tick        uint64  `json:"tick"`
	Joins       int     `json:"joins,omitempty"`
	Leaves      int     `json:"leaves,omitempty"`
	Played      int     `json:"played,omitempty"`
	Rejected    int     `json:"rejected,omitempty"`
	Charges     int     `json:"charges,omitempty"`
	Activities  int     `json:"activities,omitempty"`
	Deaths      int     `json:"deaths,omitempty"`
	Actors      int     `json:"actors"`
	Blocking    int     `json:"blocking"`
	NonBlocking int     `json:"non_blocking"`
	StepMS      float64 `json:"step_ms"`
}

// World is a single-threaded authoritative host for actor schedulers.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	reg *catalogs.Registry
	log *log.Logger

	clock *action.TickClock
	pool  *action.Pool

	tick atomic.Uint64

	avatars map[uint64]*Avatar
	// order is the avatar ids in ascending order; schedulers tick in this order.
	order  []uint64
	nextID uint64

	pending []pendingActivity

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan uint64
	stop  chan struct{}

	tickLogger TickLogger

	totals    Totals
	metrics   atomic.Value
	lastState atomic.Value
}

type pendingActivity struct {
	actorID uint64
	kind    action.ActivityKind
}

var ErrNoCatalog = errors.New("world: empty action catalog")

func New(cfg WorldConfig, reg *catalogs.Registry, logger *log.Logger) (*World, error) {
	if reg == nil {
		return nil, action.ErrRegistryNotReady
	}
	if reg.Len() == 0 {
		return nil, ErrNoCatalog
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.StartHP <= 0 {
		cfg.StartHP = 100
	}
	if cfg.ArenaSize <= 0 {
		cfg.ArenaSize = 32
	}
	if cfg.RespawnTicks <= 0 {
		cfg.RespawnTicks = 3 * cfg.TickRateHz
	}
	if logger == nil {
		logger = log.Default()
	}
	clock := action.NewTickClock(cfg.TickRateHz)
	w := &World{
		cfg:     cfg,
		reg:     reg,
		log:     logger,
		clock:   clock,
		pool:    action.NewPool(reg, clock, action.PoolOptions{MaxIdlePerAction: cfg.PoolMaxIdlePerAction}),
		avatars: map[uint64]*Avatar{},
		nextID:  1,
		inbox:   make(chan ActionEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan uint64, 64),
		stop:    make(chan struct{}),
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- uint64         { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) Catalog() *catalogs.Registry { return w.reg }

// Params are the world parameters announced in WELCOME.
func (w *World) Params() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:            w.cfg.TickRateHz,
		AnticipationTimeoutMs: w.cfg.AnticipationTimeoutMs,
	}
}

// Avatar returns the avatar with id. Not safe to call concurrently with Run.
func (w *World) Avatar(id uint64) (*Avatar, bool) {
	a, ok := w.avatars[id]
	return a, ok
}

// LatestState is the last STATE message built by the world loop.
func (w *World) LatestState() protocol.StateMsg {
	if w == nil {
		return protocol.StateMsg{}
	}
	v, _ := w.lastState.Load().(protocol.StateMsg)
	return v
}

func sendLatest(ch chan Outbound, m Outbound) {
	select {
	case ch <- m:
		return
	default:
	}
	// Drop one. Only use on channels that carry nothing but replaceable messages.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- m:
	default:
	}
}

// trySend never blocks the world loop; it reports whether m was queued.
func trySend(ch chan Outbound, m Outbound) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- m:
		return true
	default:
		return false
	}
}
