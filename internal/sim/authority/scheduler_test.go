package authority

import (
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"netaction.dev/internal/sim/action"
)

// journal records hook calls as "<name>:<hook>" across every instance of a test.
type journal struct {
	entries []string
}

func (j *journal) add(name, hook string) { j.entries = append(j.entries, name+":"+hook) }

func (j *journal) count(entry string) int {
	n := 0
	for _, e := range j.entries {
		if e == entry {
			n++
		}
	}
	return n
}

func (j *journal) index(entry string) int {
	for i, e := range j.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

type scripted struct {
	def     *action.Definition
	j       *journal
	updates int
}

func (b *scripted) OnStart(_ *action.Instance, _ action.Actor) bool {
	b.j.add(b.def.Name, "start")
	return b.def.Param("decline", 0) == 0
}

func (b *scripted) OnUpdate(_ *action.Instance, _ action.Actor) bool {
	b.updates++
	b.j.add(b.def.Name, "update")
	if stop := int(b.def.Param("stop_after", 0)); stop > 0 && b.updates >= stop {
		return false
	}
	return true
}

func (b *scripted) Cancel(_ *action.Instance, _ action.Actor) { b.j.add(b.def.Name, "cancel") }

func (b *scripted) End(_ *action.Instance, _ action.Actor) { b.j.add(b.def.Name, "end") }

func (b *scripted) OnGameplayActivity(_ *action.Instance, _ action.Actor, kind action.ActivityKind) {
	b.j.add(b.def.Name, kind.String())
}

func (b *scripted) Reset() { b.updates = 0 }

type registry struct {
	defs []*action.Definition
	j    *journal
}

func (r *registry) Resolve(id action.ID) (action.Prototype, error) {
	if int(id) < 0 || int(id) >= len(r.defs) {
		return action.Prototype{}, fmt.Errorf("%w: %v", action.ErrUnknownAction, id)
	}
	return action.Prototype{
		Definition: r.defs[id],
		New: func(def *action.Definition) action.Behavior {
			return &scripted{def: def, j: r.j}
		},
	}, nil
}

type harness struct {
	j     *journal
	clock *action.TickClock
	pool  *action.Pool
	s     *Scheduler
	ids   map[string]action.ID
}

func newHarness(t *testing.T, defs ...action.Definition) *harness {
	t.Helper()
	h := &harness{j: &journal{}, clock: action.NewTickClock(10), ids: map[string]action.ID{}}
	reg := &registry{j: h.j}
	for i := range defs {
		d := defs[i]
		if d.Behavior == "" {
			d.Behavior = "scripted"
		}
		reg.defs = append(reg.defs, &d)
		h.ids[d.Name] = action.ID(i)
	}
	h.pool = action.NewPool(reg, h.clock, action.PoolOptions{})
	h.s = New("actor-1", h.pool, h.clock, log.New(io.Discard, "", 0))
	return h
}

func (h *harness) play(t *testing.T, name string) {
	t.Helper()
	if err := h.s.PlayAction(action.ActionRequest{ID: h.ids[name]}); err != nil {
		t.Fatalf("PlayAction(%s): %v", name, err)
	}
}

// step advances the clock one tick and drives the scheduler.
func (h *harness) step() {
	h.clock.Advance()
	h.s.Tick()
}

func TestScheduler_FIFO(t *testing.T) {
	h := newHarness(t,
		action.Definition{Name: "A", DurationSeconds: 0.5},
		action.Definition{Name: "B", DurationSeconds: 0.5},
		action.Definition{Name: "C", DurationSeconds: 0.5},
	)
	h.play(t, "A")
	h.play(t, "B")
	h.play(t, "C")

	if h.j.count("A:start") != 1 || h.j.count("B:start") != 0 {
		t.Fatalf("only A should have started: %v", h.j.entries)
	}
	if got := h.s.Queued(); len(got) != 3 || got[0] != h.ids["A"] || got[1] != h.ids["B"] || got[2] != h.ids["C"] {
		t.Fatalf("queue=%v", got)
	}

	for i := 0; i < 20; i++ {
		h.step()
	}
	a, b, c := h.j.index("A:start"), h.j.index("B:start"), h.j.index("C:start")
	if !(a >= 0 && a < b && b < c) {
		t.Fatalf("start order A=%d B=%d C=%d", a, b, c)
	}
	if h.j.index("A:end") > b || h.j.index("B:end") > c {
		t.Fatalf("next action started before previous ended: %v", h.j.entries)
	}
	if h.s.QueueLen() != 0 {
		t.Fatalf("queue not drained: %v", h.s.Queued())
	}
	if h.pool.Stats().Released != 3 {
		t.Fatalf("released=%d want 3", h.pool.Stats().Released)
	}
}

func TestScheduler_IndefiniteDurationNeverExpires(t *testing.T) {
	for _, d := range []float64{0, -1} {
		h := newHarness(t, action.Definition{Name: "hold", DurationSeconds: d})
		h.play(t, "hold")
		for i := 0; i < 5000; i++ {
			h.step()
		}
		if h.s.Head() == nil || h.j.count("hold:end") != 0 {
			t.Fatalf("duration %v: indefinite action was terminated", d)
		}
	}

	h := newHarness(t, action.Definition{Name: "hold", Params: map[string]float64{"stop_after": 3}})
	h.play(t, "hold")
	h.step()
	h.step()
	if h.s.Head() == nil {
		t.Fatalf("stopped before its own update said so")
	}
	h.step()
	if h.s.Head() != nil || h.j.count("hold:end") != 1 {
		t.Fatalf("OnUpdate=false did not stop the action")
	}
}

func TestScheduler_ExactExpiry(t *testing.T) {
	h := newHarness(t, action.Definition{Name: "timed", DurationSeconds: 1})
	h.play(t, "timed")
	for i := 1; i < 10; i++ {
		h.step()
		if h.s.Head() == nil {
			t.Fatalf("terminated early at %v", h.clock.Now())
		}
	}
	h.step()
	if h.s.Head() != nil {
		t.Fatalf("still running at %v", h.clock.Now())
	}
	if h.j.count("timed:end") != 1 || h.j.count("timed:cancel") != 0 {
		t.Fatalf("expected exactly one End: %v", h.j.entries)
	}
}

func TestScheduler_ZeroExecTimeIsReclassified(t *testing.T) {
	h := newHarness(t,
		action.Definition{Name: "jab", BlockingMode: action.BlockOnlyDuringExecTime, Params: map[string]float64{"stop_after": 4}},
		action.Definition{Name: "heal", DurationSeconds: 2},
	)
	h.play(t, "jab")
	if h.s.Head() != nil || h.s.NonBlockingLen() != 1 {
		t.Fatalf("jab must leave the head immediately: queue=%v nb=%v", h.s.Queued(), h.s.NonBlocking())
	}

	h.play(t, "heal")
	if h.s.Head() == nil || h.s.Head().ID() != h.ids["heal"] {
		t.Fatalf("heal should start at once behind nothing")
	}

	rs := h.s.Stats().Reclassified
	if rs != 1 {
		t.Fatalf("reclassified=%d want 1", rs)
	}

	// Exec-time actions with a real exec time keep blocking.
	h2 := newHarness(t, action.Definition{Name: "windup", BlockingMode: action.BlockOnlyDuringExecTime, ExecTimeSeconds: 0.3, DurationSeconds: 1})
	h2.play(t, "windup")
	if h2.s.Head() == nil || h2.s.NonBlockingLen() != 0 {
		t.Fatalf("non-zero exec time must block")
	}
}

func TestScheduler_HealThenJabScenario(t *testing.T) {
	h := newHarness(t,
		action.Definition{Name: "heal", DurationSeconds: 2, BlockingMode: action.BlockEntireDuration},
		action.Definition{Name: "jab", DurationSeconds: 0, ExecTimeSeconds: 0, BlockingMode: action.BlockOnlyDuringExecTime},
	)
	h.play(t, "heal")
	h.play(t, "jab")

	// Tick 0: heal holds the head, jab is already in the queue behind it.
	if h.s.Head() == nil || h.s.Head().ID() != h.ids["heal"] {
		t.Fatalf("heal should be head")
	}
	if h.j.count("jab:start") != 0 {
		t.Fatalf("jab must wait for heal: %v", h.j.entries)
	}

	for i := 0; i < 19; i++ {
		h.step()
	}
	if h.s.Head() == nil || h.s.Head().ID() != h.ids["heal"] {
		t.Fatalf("heal ended before 2s")
	}
	h.step()
	if h.j.count("heal:end") != 1 {
		t.Fatalf("heal should end at 2s: %v", h.j.entries)
	}
	if h.s.QueueLen() != 0 {
		t.Fatalf("queue should be empty, got %v", h.s.Queued())
	}
	if h.j.count("jab:start") != 1 || h.s.NonBlockingLen() != 1 {
		t.Fatalf("jab should run in the non-blocking set: nb=%v", h.s.NonBlocking())
	}
	for i := 0; i < 50; i++ {
		h.step()
	}
	if h.s.NonBlockingLen() != 1 {
		t.Fatalf("indefinite jab should keep running independently")
	}
}

func TestScheduler_HealAndJabQueuedOnIdle(t *testing.T) {
	// Jab first: it is reclassified on start, so heal starts in the same tick.
	h := newHarness(t,
		action.Definition{Name: "heal", DurationSeconds: 2},
		action.Definition{Name: "jab", BlockingMode: action.BlockOnlyDuringExecTime},
	)
	h.play(t, "jab")
	h.play(t, "heal")
	if h.j.count("jab:start") != 1 || h.j.count("heal:start") != 1 {
		t.Fatalf("both should start in the same tick: %v", h.j.entries)
	}
	if h.s.Head().ID() != h.ids["heal"] || h.s.NonBlockingLen() != 1 {
		t.Fatalf("heal=head, jab=non-blocking expected")
	}
	for i := 0; i < 20; i++ {
		h.step()
	}
	if h.s.Head() != nil || h.s.NonBlockingLen() != 1 {
		t.Fatalf("after 2s heal gone, jab still running: head=%v nb=%d", h.s.Head(), h.s.NonBlockingLen())
	}
}

func TestScheduler_DeclineChain(t *testing.T) {
	h := newHarness(t,
		action.Definition{Name: "first", Params: map[string]float64{"stop_after": 1}},
		action.Definition{Name: "no1", Params: map[string]float64{"decline": 1}},
		action.Definition{Name: "no2", Params: map[string]float64{"decline": 1}},
		action.Definition{Name: "yes", DurationSeconds: 1},
	)
	h.play(t, "first")
	h.play(t, "no1")
	h.play(t, "no2")
	h.play(t, "yes")

	h.step()
	if h.s.Head() == nil || h.s.Head().ID() != h.ids["yes"] {
		t.Fatalf("declines should chain to yes in one tick: %v", h.j.entries)
	}
	if h.j.count("no1:end") != 0 || h.j.count("no1:cancel") != 0 || h.j.count("no2:end") != 0 {
		t.Fatalf("declined actions must not get End or Cancel: %v", h.j.entries)
	}
	if h.s.Stats().Declined != 2 {
		t.Fatalf("declined=%d want 2", h.s.Stats().Declined)
	}
	if h.pool.Idle(h.ids["no1"]) != 1 || h.pool.Idle(h.ids["no2"]) != 1 {
		t.Fatalf("declined instances should be back in their pools")
	}
}

func TestScheduler_DeclineOnEmptyQueue(t *testing.T) {
	h := newHarness(t, action.Definition{Name: "no", Params: map[string]float64{"decline": 1}})
	h.play(t, "no")
	if h.s.QueueLen() != 0 || h.s.NonBlockingLen() != 0 {
		t.Fatalf("declined action must not stay queued")
	}
	if h.pool.Idle(h.ids["no"]) != 1 {
		t.Fatalf("declined action not released")
	}
}

func TestScheduler_GameplayActivity(t *testing.T) {
	h := newHarness(t,
		action.Definition{Name: "head", DurationSeconds: 5},
		action.Definition{Name: "waiting", DurationSeconds: 5},
		action.Definition{Name: "bg", BlockingMode: action.BlockOnlyDuringExecTime},
	)
	h.play(t, "bg")
	h.play(t, "head")
	h.play(t, "waiting")
	h.s.OnGameplayActivity(action.ActivityAttackedByEnemy)

	kind := action.ActivityAttackedByEnemy.String()
	if h.j.count("head:"+kind) != 1 || h.j.count("bg:"+kind) != 1 {
		t.Fatalf("activity not forwarded: %v", h.j.entries)
	}
	if h.j.count("waiting:"+kind) != 0 {
		t.Fatalf("queued-but-not-started action got the activity")
	}
}

func TestScheduler_UnknownActionIsRejected(t *testing.T) {
	h := newHarness(t, action.Definition{Name: "only"})
	err := h.s.PlayAction(action.ActionRequest{ID: 9})
	if !errors.Is(err, action.ErrUnknownAction) {
		t.Fatalf("err=%v want ErrUnknownAction", err)
	}
	if h.s.QueueLen() != 0 || h.s.Stats().Rejected != 1 {
		t.Fatalf("rejected request must not queue anything")
	}
}

func TestScheduler_CancelAll(t *testing.T) {
	h := newHarness(t,
		action.Definition{Name: "head", DurationSeconds: 5},
		action.Definition{Name: "waiting", DurationSeconds: 5},
		action.Definition{Name: "bg", BlockingMode: action.BlockOnlyDuringExecTime},
	)
	h.play(t, "bg")
	h.play(t, "head")
	h.play(t, "waiting")
	h.s.CancelAll()

	if h.j.count("head:cancel") != 1 || h.j.count("bg:cancel") != 1 {
		t.Fatalf("running actions should be canceled: %v", h.j.entries)
	}
	if h.j.count("waiting:cancel") != 0 || h.j.count("waiting:start") != 0 {
		t.Fatalf("never-started action must not be canceled or started")
	}
	if h.s.QueueLen() != 0 || h.s.NonBlockingLen() != 0 {
		t.Fatalf("collections not cleared")
	}
	if got := h.pool.Stats().Idle; got != 3 {
		t.Fatalf("idle=%d want 3", got)
	}
}
