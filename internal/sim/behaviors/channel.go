package behaviors

import (
	"time"

	"netaction.dev/internal/sim/action"
)

// Channel restores a little health on a fixed interval until the actor attacks or is
// attacked. It usually has no duration and runs non-blocking.
//
// Params: pulse_hp (default 2), interval_seconds (default 0.5).
type Channel struct {
	def         *action.Definition
	pulses      int
	interrupted bool
}

func (c *Channel) OnStart(_ *action.Instance, actor action.Actor) bool {
	if self, ok := actor.(Combatant); ok && !self.Alive() {
		return false
	}
	c.pulses, c.interrupted = 0, false
	return true
}

func (c *Channel) OnUpdate(inst *action.Instance, actor action.Actor) bool {
	if c.interrupted {
		return false
	}
	due := c.due(inst)
	self, ok := actor.(Combatant)
	for ; c.pulses < due; c.pulses++ {
		if ok {
			self.AdjustHP(int(c.def.Param("pulse_hp", 2)))
		}
	}
	return true
}

func (c *Channel) due(inst *action.Instance) int {
	iv := time.Duration(c.def.Param("interval_seconds", 0.5) * float64(time.Second))
	if iv <= 0 {
		return c.pulses
	}
	return int(inst.TimeRunning() / iv)
}

func (c *Channel) OnGameplayActivity(_ *action.Instance, _ action.Actor, kind action.ActivityKind) {
	switch kind {
	case action.ActivityAttackedByEnemy, action.ActivityUsingAttackAction, action.ActivityDied:
		c.interrupted = true
	}
}

func (c *Channel) OnUpdateClient(*action.Instance, action.Actor) bool { return !c.interrupted }

func (c *Channel) OnStartClient(inst *action.Instance, actor action.Actor) bool {
	c.interrupted = false
	cue(actor, inst, PhaseStart)
	return true
}

func (c *Channel) EndClient(inst *action.Instance, actor action.Actor) { cue(actor, inst, PhaseEnd) }

func (c *Channel) Reset() {
	c.pulses, c.interrupted = 0, false
}
