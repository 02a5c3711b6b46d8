// Package behaviors holds the reference gameplay behaviors the server and the bot register
// in their catalogs.
package behaviors

import (
	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
)

// Combatant is what behaviors need from the actor handle. Actors that do not implement it
// play every action as a no-op.
type Combatant interface {
	ActorID() uint64
	Position() protocol.Vec3
	// AdjustHP applies delta and returns the new hit points.
	AdjustHP(delta int) int
	Alive() bool
	// Nearby lists other living combatants within radius of this one.
	Nearby(radius float64) []Combatant
	Lookup(id uint64) (Combatant, bool)
	// Notify queues a gameplay activity for this combatant's running actions.
	Notify(kind action.ActivityKind)
}

// Stunnable actors can refuse client prediction while stunned.
type Stunnable interface {
	Stunned() bool
}

// CuePlayer receives client-side presentation cues. The bot logs them.
type CuePlayer interface {
	PlayCue(name string, id action.ID, phase string)
}

const (
	PhaseAnticipate = "anticipate"
	PhaseStart      = "start"
	PhaseFire       = "fire"
	PhaseEnd        = "end"
	PhaseCancel     = "cancel"
)

// Factories returns a factory per behavior kind, keyed the way actions.yaml names them.
func Factories() map[string]func(def *action.Definition) action.Behavior {
	return map[string]func(def *action.Definition) action.Behavior{
		"melee":        func(def *action.Definition) action.Behavior { return &Melee{def: def} },
		"heal":         func(def *action.Definition) action.Behavior { return &Heal{def: def} },
		"charged_shot": func(def *action.Definition) action.Behavior { return &ChargedShot{def: def} },
		"channel":      func(def *action.Definition) action.Behavior { return &Channel{def: def} },
	}
}

func cue(actor action.Actor, inst *action.Instance, phase string) {
	if p, ok := actor.(CuePlayer); ok {
		p.PlayCue(inst.Definition().Name, inst.ID(), phase)
	}
}

// targets resolves the request's explicit targets, falling back to everyone within the
// definition's radius.
func targets(self Combatant, inst *action.Instance) []Combatant {
	req := inst.Request()
	if req.TargetIDs == nil {
		if inst.Definition().Radius <= 0 {
			return nil
		}
		return self.Nearby(inst.Definition().Radius)
	}
	out := make([]Combatant, 0, len(req.TargetIDs))
	for _, id := range req.TargetIDs {
		if id == self.ActorID() {
			continue
		}
		c, ok := self.Lookup(id)
		if !ok || !c.Alive() {
			continue
		}
		if r := inst.Definition().Radius; r > 0 && c.Position().Sub(self.Position()).Len() > r {
			continue
		}
		out = append(out, c)
	}
	return out
}

// reachedExec reports whether the exec point has passed for an action still waiting to fire.
func reachedExec(inst *action.Instance) bool {
	return inst.TimeRunning() >= inst.Definition().ExecTime()
}
