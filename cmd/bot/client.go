package main

import (
	"log"
	"math/rand"
	"slices"
	"time"

	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
	"netaction.dev/internal/sim/behaviors"
	"netaction.dev/internal/sim/catalogs"
	"netaction.dev/internal/sim/predict"
)

// avatar is the bot's own actor. It has no world around it, so it only plays cues.
type avatar struct {
	id   uint64
	log  *log.Logger
	cues map[string]int
}

var _ behaviors.CuePlayer = (*avatar)(nil)

func (a *avatar) PlayCue(name string, id action.ID, phase string) {
	a.cues[phase]++
	if a.log != nil {
		a.log.Printf("cue %s id=%d %s", name, id, phase)
	}
}

// client owns the predictive timeline. Every method runs on the tick goroutine.
type client struct {
	self  *avatar
	reg   *catalogs.Registry
	clock *action.TickClock
	pool  *action.Pool
	sched *predict.Scheduler
	rng   *rand.Rand
	log   *log.Logger

	ticks uint64
	// every is how many ticks pass between plays.
	every uint64
	// chargeAt is the tick a pending charge-up is released, zero when none.
	chargeAt uint64
}

func newClient(welcome protocol.WelcomeMsg, cat protocol.CatalogMsg, every uint64, seed int64, logger *log.Logger) (*client, error) {
	reg, err := catalogs.FromCatalog(cat, behaviors.Factories())
	if err != nil {
		return nil, err
	}
	if every == 0 {
		every = 1
	}
	if welcome.WorldParams.TickRateHz <= 0 {
		welcome.WorldParams.TickRateHz = 20
	}
	clock := action.NewTickClock(welcome.WorldParams.TickRateHz)
	pool := action.NewPool(reg, clock, action.PoolOptions{})
	self := &avatar{id: welcome.ActorID, log: logger, cues: map[string]int{}}
	timeout := time.Duration(welcome.WorldParams.AnticipationTimeoutMs) * time.Millisecond
	return &client{
		self:  self,
		reg:   reg,
		clock: clock,
		pool:  pool,
		sched: predict.New(self, pool, clock, predict.Options{AnticipationTimeout: timeout}, logger),
		rng:   rand.New(rand.NewSource(seed)),
		log:   logger,
		every: every,
	}, nil
}

// intent is what the tick goroutine asks the connection to send.
type intent struct {
	play   *protocol.ActionRequest
	charge bool
	pct    float64
}

// tick advances local time and returns what should go to the server this tick.
func (c *client) tick() []intent {
	c.clock.Advance()
	c.sched.Tick()
	c.ticks++

	var out []intent
	if c.chargeAt != 0 && c.ticks >= c.chargeAt {
		c.chargeAt = 0
		pct := 0.25 + 0.75*c.rng.Float64()
		c.sched.OnStoppedChargingUp(pct)
		out = append(out, intent{charge: true, pct: pct})
	}
	if c.ticks%c.every == 0 {
		if req, ok := c.pick(); ok {
			out = append(out, intent{play: &req})
		}
	}
	return out
}

// pick chooses a random action and anticipates it before it is sent.
func (c *client) pick() (protocol.ActionRequest, bool) {
	n := c.reg.Len()
	if n == 0 {
		return protocol.ActionRequest{}, false
	}
	id := action.ID(c.rng.Intn(n))
	def, _ := c.reg.Definition(id)
	req := protocol.ActionRequest{ID: id}
	if def.Behavior == "heal" {
		req.TargetIDs = []uint64{c.self.id}
	}
	if def.Behavior == "charged_shot" && c.chargeAt == 0 {
		c.chargeAt = c.ticks + 1 + uint64(c.rng.Intn(int(c.every)+1))
	}
	// The scheduler owns what it is handed; the outgoing request keeps its own targets.
	local := req
	local.TargetIDs = slices.Clone(req.TargetIDs)
	if err := c.sched.AnticipateAction(local); err != nil {
		c.log.Printf("anticipate %s: %v", def.Name, err)
		return protocol.ActionRequest{}, false
	}
	return req, true
}

// confirm reconciles a server confirmation. Other actors' confirmations are ignored.
func (c *client) confirm(f protocol.Frame) {
	if f.Kind != protocol.FrameConfirm || f.ActorID != c.self.id {
		return
	}
	if err := c.sched.PlayAction(f.Request); err != nil {
		c.log.Printf("confirm: %v", err)
	}
}
