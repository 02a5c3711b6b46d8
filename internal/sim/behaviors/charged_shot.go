package behaviors

import (
	"math"

	"netaction.dev/internal/sim/action"
)

// ChargedShot charges until the player lets go, then fires once with damage scaled by the
// charge. If the player never lets go the shot fires at full charge when the action ends.
//
// Params: charge_seconds (default 1), max_damage (default 30), min_fraction (default 0.2).
type ChargedShot struct {
	def      *action.Definition
	released bool
	fired    bool
	charge   float64
}

func (c *ChargedShot) OnStart(_ *action.Instance, actor action.Actor) bool {
	if self, ok := actor.(Combatant); ok && !self.Alive() {
		return false
	}
	c.released, c.fired, c.charge = false, false, 0
	return true
}

// OnUpdate keeps charging until the release arrived, then stops so End fires the shot.
func (c *ChargedShot) OnUpdate(*action.Instance, action.Actor) bool { return !c.released }

func (c *ChargedShot) OnGameplayActivity(inst *action.Instance, _ action.Actor, kind action.ActivityKind) {
	switch kind {
	case action.ActivityStoppedChargingUp:
		if !c.released {
			c.released = true
			c.charge = c.Percentage(inst)
		}
	case action.ActivityDied:
		c.released, c.fired = true, true
	}
}

// Percentage is the charge reached so far, clamped to [0, 1].
func (c *ChargedShot) Percentage(inst *action.Instance) float64 {
	full := c.def.Param("charge_seconds", 1)
	if full <= 0 {
		return 1
	}
	return math.Min(1, math.Max(0, inst.TimeRunning().Seconds()/full))
}

func (c *ChargedShot) End(inst *action.Instance, actor action.Actor) {
	if !c.released {
		c.charge = c.Percentage(inst)
	}
	c.fire(inst, actor)
}

func (c *ChargedShot) Cancel(*action.Instance, action.Actor) { c.fired = true }

func (c *ChargedShot) fire(inst *action.Instance, actor action.Actor) {
	if c.fired {
		return
	}
	c.fired = true
	self, ok := actor.(Combatant)
	if !ok {
		return
	}
	dmg := int(math.Round(c.def.Param("max_damage", 30) * c.Damage()))
	for _, t := range targets(self, inst) {
		t.AdjustHP(-dmg)
		t.Notify(action.ActivityAttackedByEnemy)
	}
}

// Damage is the fraction of max_damage the shot deals at the current charge.
func (c *ChargedShot) Damage() float64 {
	return math.Max(c.def.Param("min_fraction", 0.2), c.charge)
}

func (c *ChargedShot) OnStartClient(inst *action.Instance, actor action.Actor) bool {
	c.released, c.charge = false, 0
	cue(actor, inst, PhaseStart)
	return true
}

func (c *ChargedShot) OnUpdateClient(*action.Instance, action.Actor) bool { return !c.released }

func (c *ChargedShot) OnStoppedChargingUp(inst *action.Instance, actor action.Actor, percentage float64) {
	if c.released {
		return
	}
	c.released = true
	c.charge = math.Min(1, math.Max(0, percentage))
	cue(actor, inst, PhaseFire)
}

func (c *ChargedShot) EndClient(inst *action.Instance, actor action.Actor) {
	cue(actor, inst, PhaseEnd)
}

func (c *ChargedShot) CancelClient(inst *action.Instance, actor action.Actor) {
	cue(actor, inst, PhaseCancel)
}

func (c *ChargedShot) Reset() {
	c.released, c.fired, c.charge = false, false, 0
}
