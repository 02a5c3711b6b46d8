package behaviors

import (
	"io"
	"log"
	"testing"

	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
	"netaction.dev/internal/sim/authority"
	"netaction.dev/internal/sim/catalogs"
	"netaction.dev/internal/sim/predict"
)

type arena struct {
	all []*dummy
}

type dummy struct {
	arena      *arena
	id         uint64
	pos        protocol.Vec3
	hp         int
	stunned    bool
	activities []action.ActivityKind
	cues       []string
}

func (a *arena) add(id uint64, x float32) *dummy {
	d := &dummy{arena: a, id: id, pos: protocol.Vec3{X: x}, hp: 100}
	a.all = append(a.all, d)
	return d
}

func (d *dummy) ActorID() uint64         { return d.id }
func (d *dummy) Position() protocol.Vec3 { return d.pos }
func (d *dummy) Alive() bool             { return d.hp > 0 }
func (d *dummy) Stunned() bool           { return d.stunned }

func (d *dummy) AdjustHP(delta int) int {
	d.hp += delta
	return d.hp
}

func (d *dummy) Nearby(radius float64) []Combatant {
	var out []Combatant
	for _, o := range d.arena.all {
		if o != d && o.Alive() && o.pos.Sub(d.pos).Len() <= radius {
			out = append(out, o)
		}
	}
	return out
}

func (d *dummy) Lookup(id uint64) (Combatant, bool) {
	for _, o := range d.arena.all {
		if o.id == id {
			return o, true
		}
	}
	return nil, false
}

func (d *dummy) Notify(kind action.ActivityKind) { d.activities = append(d.activities, kind) }

func (d *dummy) PlayCue(name string, _ action.ID, phase string) {
	d.cues = append(d.cues, name+":"+phase)
}

func testRegistry(t *testing.T) *catalogs.Registry {
	t.Helper()
	defs := []action.Definition{
		{Name: "slash", Behavior: "melee", DurationSeconds: 0.5, ExecTimeSeconds: 0.2, Radius: 2, Anticipatable: true, Params: map[string]float64{"damage": 15}},
		{Name: "mend", Behavior: "heal", DurationSeconds: 1, ExecTimeSeconds: 0.5, Params: map[string]float64{"amount": 20}},
		{Name: "bolt", Behavior: "charged_shot", DurationSeconds: 2, Radius: 10, Params: map[string]float64{"charge_seconds": 1, "max_damage": 40}},
		{Name: "meditate", Behavior: "channel", BlockingMode: action.BlockOnlyDuringExecTime, Params: map[string]float64{"pulse_hp": 3, "interval_seconds": 0.5}},
	}
	reg, err := catalogs.New(defs, Factories())
	if err != nil {
		t.Fatalf("catalogs.New: %v", err)
	}
	return reg
}

type rig struct {
	reg   *catalogs.Registry
	clock *action.TickClock
	s     *authority.Scheduler
}

func newRig(t *testing.T, self *dummy) *rig {
	t.Helper()
	reg := testRegistry(t)
	clock := action.NewTickClock(10)
	pool := action.NewPool(reg, clock, action.PoolOptions{})
	return &rig{reg: reg, clock: clock, s: authority.New(self, pool, clock, log.New(io.Discard, "", 0))}
}

func (r *rig) play(t *testing.T, name string, targets []uint64) {
	t.Helper()
	id, ok := r.reg.Lookup(name)
	if !ok {
		t.Fatalf("no action %q", name)
	}
	if err := r.s.PlayAction(action.ActionRequest{ID: id, TargetIDs: targets}); err != nil {
		t.Fatalf("PlayAction(%s): %v", name, err)
	}
}

func (r *rig) steps(n int) {
	for i := 0; i < n; i++ {
		r.clock.Advance()
		r.s.Tick()
	}
}

func TestMelee_HitsInRadiusAtExecTime(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	near := a.add(2, 1.5)
	far := a.add(3, 5)
	r := newRig(t, me)

	r.play(t, "slash", nil)
	r.steps(1)
	if near.hp != 100 {
		t.Fatalf("hit before exec time")
	}
	r.steps(1)
	if near.hp != 85 || far.hp != 100 || me.hp != 100 {
		t.Fatalf("hp near=%d far=%d me=%d", near.hp, far.hp, me.hp)
	}
	r.steps(5)
	if near.hp != 85 {
		t.Fatalf("melee fired twice: hp=%d", near.hp)
	}
	if len(near.activities) != 1 || near.activities[0] != action.ActivityAttackedByEnemy {
		t.Fatalf("target activities=%v", near.activities)
	}
	if len(me.activities) != 1 || me.activities[0] != action.ActivityUsingAttackAction {
		t.Fatalf("attacker activities=%v", me.activities)
	}
}

func TestMelee_ExplicitTargetsOutOfRangeIgnored(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	near := a.add(2, 1)
	far := a.add(3, 9)
	r := newRig(t, me)
	r.play(t, "slash", []uint64{3, 2, 42})
	r.steps(2)
	if near.hp != 85 || far.hp != 100 {
		t.Fatalf("hp near=%d far=%d", near.hp, far.hp)
	}
}

func TestMelee_StunnedRefusesAnticipation(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	reg := testRegistry(t)
	clock := action.NewTickClock(10)
	pool := action.NewPool(reg, clock, action.PoolOptions{})
	s := predict.New(me, pool, clock, predict.Options{}, log.New(io.Discard, "", 0))
	id, _ := reg.Lookup("slash")

	me.stunned = true
	if err := s.AnticipateAction(action.ActionRequest{ID: id}); err != nil {
		t.Fatalf("AnticipateAction: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("stunned actor anticipated")
	}

	me.stunned = false
	_ = s.AnticipateAction(action.ActionRequest{ID: id})
	_ = s.PlayAction(action.ActionRequest{ID: id})
	if s.Len() != 1 {
		t.Fatalf("len=%d", s.Len())
	}
	if len(me.cues) != 2 || me.cues[0] != "slash:anticipate" || me.cues[1] != "slash:start" {
		t.Fatalf("cues=%v", me.cues)
	}
}

func TestHeal_SelfAndTargets(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	ally := a.add(2, 30)
	me.hp, ally.hp = 50, 50
	r := newRig(t, me)

	r.play(t, "mend", nil)
	r.steps(5)
	if me.hp != 70 {
		t.Fatalf("self heal hp=%d", me.hp)
	}
	r.steps(5)
	r.play(t, "mend", []uint64{2})
	r.steps(5)
	if ally.hp != 70 || me.hp != 70 {
		t.Fatalf("targeted heal ally=%d me=%d", ally.hp, me.hp)
	}
	if len(ally.activities) != 1 || ally.activities[0] != action.ActivityHealed {
		t.Fatalf("ally activities=%v", ally.activities)
	}
}

func TestChargedShot_ReleaseScalesDamage(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	foe := a.add(2, 3)
	r := newRig(t, me)

	r.play(t, "bolt", nil)
	r.steps(5)
	r.s.OnGameplayActivity(action.ActivityStoppedChargingUp)
	if foe.hp != 100 {
		t.Fatalf("fired on release instead of on end")
	}
	r.steps(1)
	if r.s.Head() != nil {
		t.Fatalf("released shot should stop")
	}
	if foe.hp != 80 {
		t.Fatalf("half charge should deal 20, hp=%d", foe.hp)
	}
}

func TestChargedShot_FullChargeOnExpiry(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	foe := a.add(2, 3)
	r := newRig(t, me)
	r.play(t, "bolt", nil)
	r.steps(20)
	if foe.hp != 60 {
		t.Fatalf("full charge should deal 40, hp=%d", foe.hp)
	}

	r.play(t, "bolt", nil)
	r.steps(1)
	r.s.CancelAll()
	if foe.hp != 60 {
		t.Fatalf("canceled shot fired")
	}
}

func TestChargedShot_ClientRelease(t *testing.T) {
	b := &ChargedShot{def: &action.Definition{Name: "bolt", Params: map[string]float64{"min_fraction": 0.25}}}
	b.OnStoppedChargingUp(nil, nil, 0.1)
	if b.OnUpdateClient(nil, nil) {
		t.Fatalf("released shot should stop on the client")
	}
	if got := b.Damage(); got != 0.25 {
		t.Fatalf("damage fraction=%v want floor 0.25", got)
	}
	b.OnStoppedChargingUp(nil, nil, 0.9)
	if b.charge != 0.1 {
		t.Fatalf("second release changed the charge")
	}
	b.Reset()
	if b.released || b.charge != 0 {
		t.Fatalf("reset left state behind")
	}
}

func TestChannel_PulsesUntilInterrupted(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	me.hp = 10
	r := newRig(t, me)

	r.play(t, "meditate", nil)
	if r.s.NonBlockingLen() != 1 {
		t.Fatalf("channel should run non-blocking")
	}
	r.steps(10)
	if me.hp != 16 {
		t.Fatalf("hp=%d want 16 after 1s", me.hp)
	}
	r.s.OnGameplayActivity(action.ActivityAttackedByEnemy)
	r.steps(1)
	if r.s.NonBlockingLen() != 0 {
		t.Fatalf("channel not interrupted")
	}
	if me.hp != 16 {
		t.Fatalf("pulsed after interruption: hp=%d", me.hp)
	}
}

func TestBehaviors_DeclineWhenDead(t *testing.T) {
	a := &arena{}
	me := a.add(1, 0)
	me.hp = 0
	r := newRig(t, me)
	for _, name := range []string{"slash", "mend", "bolt", "meditate"} {
		r.play(t, name, nil)
	}
	if r.s.QueueLen() != 0 || r.s.NonBlockingLen() != 0 {
		t.Fatalf("dead actor started actions")
	}
	if r.s.Stats().Declined != 4 {
		t.Fatalf("declined=%d", r.s.Stats().Declined)
	}
}
