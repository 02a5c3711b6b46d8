package behaviors

import "netaction.dev/internal/sim/action"

// Melee damages its targets once, at exec time. A melee action with no duration ends right
// after the hit.
//
// Params: damage (default 10).
type Melee struct {
	def   *action.Definition
	fired bool
}

func (m *Melee) OnStart(_ *action.Instance, actor action.Actor) bool {
	self, ok := actor.(Combatant)
	if ok && !self.Alive() {
		return false
	}
	m.fired = false
	if ok {
		self.Notify(action.ActivityUsingAttackAction)
	}
	return true
}

func (m *Melee) OnUpdate(inst *action.Instance, actor action.Actor) bool {
	if m.fired || !reachedExec(inst) {
		return true
	}
	m.fired = true
	if self, ok := actor.(Combatant); ok {
		dmg := int(m.def.Param("damage", 10))
		for _, t := range targets(self, inst) {
			t.AdjustHP(-dmg)
			t.Notify(action.ActivityAttackedByEnemy)
		}
	}
	// Without a duration the hit is the whole action.
	return !m.def.Indefinite()
}

func (m *Melee) AnticipateActionClient(inst *action.Instance, actor action.Actor) {
	cue(actor, inst, PhaseAnticipate)
}

func (m *Melee) OnStartClient(inst *action.Instance, actor action.Actor) bool {
	cue(actor, inst, PhaseStart)
	return true
}

func (m *Melee) OnUpdateClient(*action.Instance, action.Actor) bool { return !m.def.Indefinite() }

func (m *Melee) EndClient(inst *action.Instance, actor action.Actor) { cue(actor, inst, PhaseEnd) }

func (m *Melee) CancelClient(inst *action.Instance, actor action.Actor) {
	cue(actor, inst, PhaseCancel)
}

// ShouldClientAnticipate refuses prediction while the actor is stunned: the server would
// decline the swing anyway.
func (m *Melee) ShouldClientAnticipate(actor action.Actor, _ action.ActionRequest) bool {
	if s, ok := actor.(Stunnable); ok && s.Stunned() {
		return false
	}
	return true
}

func (m *Melee) Reset() { m.fired = false }
