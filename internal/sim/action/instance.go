package action

import (
	"time"

	"netaction.dev/internal/protocol"
)

type ActionRequest = protocol.ActionRequest

// Instance is one pooled, stateful execution of an action. It is owned by exactly one
// scheduler at a time and is only created by a Pool.
//
// Initialize binds a request, Reset clears everything back to zero values. Hooks are
// invoked by schedulers, never by the instance itself.
type Instance struct {
	// kind is the pool this instance belongs to. It survives Reset.
	kind ID
	def  *Definition

	behavior Behavior
	clock    Clock
	pool     *Pool

	id          ID
	req         ActionRequest
	bound       bool
	pooled      bool
	anticipated bool
	started     time.Duration
}

func (a *Instance) Kind() ID                   { return a.kind }
func (a *Instance) ID() ID                     { return a.id }
func (a *Instance) Definition() *Definition    { return a.def }
func (a *Instance) Behavior() Behavior         { return a.behavior }
func (a *Instance) Bound() bool                { return a.bound }
func (a *Instance) AnticipatedOnClient() bool  { return a.anticipated }
func (a *Instance) TimeStarted() time.Duration { return a.started }

// Request returns the bound payload. Treat it as read-only.
func (a *Instance) Request() *ActionRequest { return &a.req }

func (a *Instance) SetTimeStarted(t time.Duration) { a.started = t }

// Now is the current simulation time on the instance's clock.
func (a *Instance) Now() time.Duration {
	if a.clock == nil {
		return 0
	}
	return a.clock.Now()
}

func (a *Instance) TimeRunning() time.Duration { return a.Now() - a.started }

// Expired reports whether the definition's duration has elapsed.
func (a *Instance) Expired() bool { return a.def.Expired(a.TimeRunning()) }

// Initialize binds req to a pooled instance. The instance takes ownership of req.TargetIDs.
func (a *Instance) Initialize(req ActionRequest) {
	a.req = req
	a.id = req.ID
	a.bound = true
	a.pooled = false
}

// Reset clears identity, payload and timing. It is idempotent.
func (a *Instance) Reset() {
	a.req = ActionRequest{}
	a.id = 0
	a.bound = false
	a.anticipated = false
	a.started = 0
	if r, ok := a.behavior.(Resetter); ok {
		r.Reset()
	}
}

// Server hooks.

func (a *Instance) OnStart(actor Actor) bool { return a.behavior.OnStart(a, actor) }

func (a *Instance) OnUpdate(actor Actor) bool { return a.behavior.OnUpdate(a, actor) }

func (a *Instance) Cancel(actor Actor) {
	if c, ok := a.behavior.(Canceler); ok {
		c.Cancel(a, actor)
	}
}

func (a *Instance) End(actor Actor) {
	if e, ok := a.behavior.(Ender); ok {
		e.End(a, actor)
		return
	}
	a.Cancel(actor)
}

// Client hooks.

// OnStartClient starts the confirmed run. A previously anticipated instance stops being
// anticipated here and its start time moves to now.
func (a *Instance) OnStartClient(actor Actor) bool {
	a.anticipated = false
	a.started = a.Now()
	if s, ok := a.behavior.(ClientStarter); ok {
		return s.OnStartClient(a, actor)
	}
	return true
}

func (a *Instance) OnUpdateClient(actor Actor) bool {
	if u, ok := a.behavior.(ClientUpdater); ok {
		return u.OnUpdateClient(a, actor)
	}
	return true
}

func (a *Instance) EndClient(actor Actor) {
	if e, ok := a.behavior.(ClientEnder); ok {
		e.EndClient(a, actor)
		return
	}
	a.CancelClient(actor)
}

func (a *Instance) CancelClient(actor Actor) {
	if c, ok := a.behavior.(ClientCanceler); ok {
		c.CancelClient(a, actor)
	}
}

func (a *Instance) AnticipateActionClient(actor Actor) {
	a.anticipated = true
	a.started = a.Now()
	if p, ok := a.behavior.(Anticipator); ok {
		p.AnticipateActionClient(a, actor)
	}
}

// Cross-cutting hooks.

func (a *Instance) OnGameplayActivity(actor Actor, kind ActivityKind) {
	if l, ok := a.behavior.(ActivityListener); ok {
		l.OnGameplayActivity(a, actor, kind)
	}
}

func (a *Instance) OnStoppedChargingUp(actor Actor, percentage float64) {
	if l, ok := a.behavior.(ChargeListener); ok {
		l.OnStoppedChargingUp(a, actor, percentage)
	}
}

func (a *Instance) ShouldClientAnticipate(actor Actor, req ActionRequest) bool {
	if p, ok := a.behavior.(AnticipationPolicy); ok {
		return p.ShouldClientAnticipate(actor, req)
	}
	return true
}
