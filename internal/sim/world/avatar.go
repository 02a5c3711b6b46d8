package world

import (
	"math"
	"sort"

	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
	"netaction.dev/internal/sim/authority"
	"netaction.dev/internal/sim/behaviors"
)

// Avatar is a connected actor. It is the actor handle passed to every action hook.
type Avatar struct {
	world *World

	ID   uint64
	Name string
	Pos  protocol.Vec3
	HP   int
	// RespawnTick is set while dead.
	RespawnTick uint64

	sched    *authority.Scheduler
	out      chan Outbound
	stateOut chan Outbound
}

var _ behaviors.Combatant = (*Avatar)(nil)

func (a *Avatar) ActorID() uint64         { return a.ID }
func (a *Avatar) Position() protocol.Vec3 { return a.Pos }
func (a *Avatar) Alive() bool             { return a.HP > 0 }

func (a *Avatar) Scheduler() *authority.Scheduler { return a.sched }

// AdjustHP clamps to [0, StartHP]. Dropping to zero queues a death.
func (a *Avatar) AdjustHP(delta int) int {
	if !a.Alive() {
		return a.HP
	}
	a.HP += delta
	if a.HP > a.world.cfg.StartHP {
		a.HP = a.world.cfg.StartHP
	}
	if a.HP <= 0 {
		a.HP = 0
		a.Notify(action.ActivityDied)
	}
	return a.HP
}

// Nearby returns other living avatars within radius, in ascending id order.
func (a *Avatar) Nearby(radius float64) []behaviors.Combatant {
	var out []behaviors.Combatant
	for _, id := range a.world.order {
		o := a.world.avatars[id]
		if o == nil || o == a || !o.Alive() {
			continue
		}
		if o.Pos.Sub(a.Pos).Len() <= radius {
			out = append(out, o)
		}
	}
	return out
}

func (a *Avatar) Lookup(id uint64) (behaviors.Combatant, bool) {
	o, ok := a.world.avatars[id]
	if !ok {
		return nil, false
	}
	return o, true
}

// Notify defers the activity until every scheduler has ticked, so no scheduler is re-entered
// while it iterates its own collections.
func (a *Avatar) Notify(kind action.ActivityKind) {
	a.world.pending = append(a.world.pending, pendingActivity{actorID: a.ID, kind: kind})
}

func (a *Avatar) state() protocol.ActorState {
	s := protocol.ActorState{
		ID:          a.ID,
		Name:        a.Name,
		Pos:         a.Pos,
		HP:          a.HP,
		Blocking:    -1,
		NonBlocking: a.sched.NonBlockingLen(),
	}
	if h := a.sched.Head(); h != nil {
		s.Blocking = int32(h.ID())
	}
	return s
}

// spawnPos places avatars on a ring inside the arena so ids map to stable positions.
func (w *World) spawnPos(id uint64) protocol.Vec3 {
	const slots = 8
	r := w.cfg.ArenaSize / 4
	angle := 2 * math.Pi * float64(id%slots) / slots
	ring := float64(id/slots) * 2
	return protocol.Vec3{
		X: float32((r + ring) * math.Cos(angle)),
		Z: float32((r + ring) * math.Sin(angle)),
	}
}

func (w *World) addAvatar(name string, out, state chan Outbound) *Avatar {
	id := w.nextID
	w.nextID++
	if name == "" {
		name = "actor"
	}
	a := &Avatar{
		world:    w,
		ID:       id,
		Name:     name,
		Pos:      w.spawnPos(id),
		HP:       w.cfg.StartHP,
		out:      out,
		stateOut: state,
	}
	a.sched = authority.New(a, w.pool, w.clock, w.log)
	w.avatars[id] = a
	w.order = append(w.order, id)
	sort.Slice(w.order, func(i, j int) bool { return w.order[i] < w.order[j] })
	return a
}

func (w *World) removeAvatar(id uint64) bool {
	a, ok := w.avatars[id]
	if !ok {
		return false
	}
	a.sched.CancelAll()
	delete(w.avatars, id)
	for i, v := range w.order {
		if v == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}
