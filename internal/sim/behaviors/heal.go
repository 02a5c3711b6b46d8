package behaviors

import "netaction.dev/internal/sim/action"

// Heal restores hit points at exec time: to the listed targets, or to the actor itself when
// the request carries none.
//
// Params: amount (default 10).
type Heal struct {
	def   *action.Definition
	fired bool
}

func (h *Heal) OnStart(_ *action.Instance, actor action.Actor) bool {
	if self, ok := actor.(Combatant); ok && !self.Alive() {
		return false
	}
	h.fired = false
	return true
}

func (h *Heal) OnUpdate(inst *action.Instance, actor action.Actor) bool {
	if h.fired || !reachedExec(inst) {
		return true
	}
	h.fired = true
	self, ok := actor.(Combatant)
	if !ok {
		return true
	}
	amount := int(h.def.Param("amount", 10))
	for _, t := range healTargets(self, inst) {
		t.AdjustHP(amount)
		t.Notify(action.ActivityHealed)
	}
	return true
}

// Cancel before exec time loses the heal; nothing to undo.
func (h *Heal) Cancel(*action.Instance, action.Actor) {}

func (h *Heal) OnStartClient(inst *action.Instance, actor action.Actor) bool {
	cue(actor, inst, PhaseStart)
	return true
}

func (h *Heal) EndClient(inst *action.Instance, actor action.Actor) { cue(actor, inst, PhaseEnd) }

func (h *Heal) Reset() { h.fired = false }

func healTargets(self Combatant, inst *action.Instance) []Combatant {
	ids := inst.Request().TargetIDs
	if ids == nil {
		return []Combatant{self}
	}
	out := make([]Combatant, 0, len(ids))
	for _, id := range ids {
		if id == self.ActorID() {
			out = append(out, self)
			continue
		}
		if c, ok := self.Lookup(id); ok && c.Alive() {
			out = append(out, c)
		}
	}
	return out
}
