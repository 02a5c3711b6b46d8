// Package predict runs the client-side action timeline: actions may start speculatively
// before the server confirms them and are reconciled with the confirmation when it arrives.
package predict

import (
	"fmt"
	"log"
	"slices"
	"time"

	"netaction.dev/internal/sim/action"
)

type Options struct {
	// AnticipationTimeout is how long an unconfirmed anticipated action may run before it is
	// canceled. Zero cancels it on the first tick that evaluates it.
	AnticipationTimeout time.Duration
}

type Stats struct {
	Anticipated uint64 `json:"anticipated"`
	Skipped     uint64 `json:"skipped"`
	Confirmed   uint64 `json:"confirmed"`
	Reconciled  uint64 `json:"reconciled"`
	Declined    uint64 `json:"declined"`
	TimedOut    uint64 `json:"timed_out"`
	Ended       uint64 `json:"ended"`
	Rejected    uint64 `json:"rejected"`
}

// Scheduler is single-writer like authority.Scheduler.
type Scheduler struct {
	actor action.Actor
	pool  *action.Pool
	clock action.Clock
	opts  Options
	log   *log.Logger

	playing []*action.Instance

	stats Stats
}

func New(actor action.Actor, pool *action.Pool, clock action.Clock, opts Options, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	if opts.AnticipationTimeout < 0 {
		opts.AnticipationTimeout = 0
	}
	return &Scheduler{actor: actor, pool: pool, clock: clock, opts: opts, log: logger}
}

// AnticipateAction starts req locally ahead of the server. Requests whose definition is not
// anticipatable, or that the behavior refuses to anticipate, are dropped without error.
func (s *Scheduler) AnticipateAction(req action.ActionRequest) error {
	inst, err := s.acquire(req)
	if err != nil {
		return err
	}
	if !inst.Definition().Anticipatable || !inst.ShouldClientAnticipate(s.actor, req) {
		s.stats.Skipped++
		s.pool.Release(inst)
		return nil
	}
	inst.AnticipateActionClient(s.actor)
	s.playing = append(s.playing, inst)
	s.stats.Anticipated++
	return nil
}

// PlayAction handles a server confirmation. The first still-anticipated entry with the same
// id is reused; position and targets are not compared.
func (s *Scheduler) PlayAction(req action.ActionRequest) error {
	match := s.anticipated(req.ID)

	inst := match
	if inst == nil {
		var err error
		if inst, err = s.acquire(req); err != nil {
			return err
		}
	}
	s.stats.Confirmed++

	if !inst.OnStartClient(s.actor) {
		s.stats.Declined++
		if match != nil {
			s.remove(match)
		}
		s.tryRelease(inst)
		return nil
	}
	if match != nil {
		s.stats.Reconciled++
		return nil
	}
	s.playing = append(s.playing, inst)
	return nil
}

func (s *Scheduler) anticipated(id action.ID) *action.Instance {
	for _, inst := range s.playing {
		if inst.ID() == id && inst.AnticipatedOnClient() {
			return inst
		}
	}
	return nil
}

func (s *Scheduler) acquire(req action.ActionRequest) (*action.Instance, error) {
	inst, err := s.pool.Acquire(req)
	if err != nil {
		s.stats.Rejected++
		s.log.Printf("predict: acquire %v: %v", req.ID, err)
		return nil, fmt.Errorf("acquire %v: %w", req.ID, err)
	}
	return inst, nil
}

// Tick updates confirmed entries and terminates anticipated ones whose confirmation is late.
func (s *Scheduler) Tick() {
	for i := len(s.playing) - 1; i >= 0; i-- {
		inst := s.playing[i]

		timedOut := inst.AnticipatedOnClient() && inst.TimeRunning() >= s.opts.AnticipationTimeout
		keepGoing := true
		if !inst.AnticipatedOnClient() {
			keepGoing = inst.OnUpdateClient(s.actor)
		}
		if keepGoing && !inst.Expired() && !timedOut {
			continue
		}

		if inst.AnticipatedOnClient() {
			inst.CancelClient(s.actor)
			s.stats.TimedOut++
		} else {
			inst.EndClient(s.actor)
			s.stats.Ended++
		}
		s.playing = slices.Delete(s.playing, i, i+1)
		s.tryRelease(inst)
	}
}

// OnStoppedChargingUp forwards the released charge to every playing entry.
func (s *Scheduler) OnStoppedChargingUp(percentage float64) {
	for _, inst := range s.playing {
		inst.OnStoppedChargingUp(s.actor, percentage)
	}
}

// OnGameplayActivity forwards kind to every playing entry.
func (s *Scheduler) OnGameplayActivity(kind action.ActivityKind) {
	for _, inst := range s.playing {
		inst.OnGameplayActivity(s.actor, kind)
	}
}

// CancelAll cancels every playing entry and returns it to the pool.
func (s *Scheduler) CancelAll() {
	playing := s.playing
	s.playing = nil
	for _, inst := range playing {
		inst.CancelClient(s.actor)
		s.pool.Release(inst)
	}
}

func (s *Scheduler) remove(inst *action.Instance) {
	if i := slices.Index(s.playing, inst); i >= 0 {
		s.playing = slices.Delete(s.playing, i, i+1)
	}
}

func (s *Scheduler) tryRelease(inst *action.Instance) {
	if slices.Contains(s.playing, inst) {
		return
	}
	s.pool.Release(inst)
}

// Playing returns a snapshot of the playing entries. The instances stay owned by the
// scheduler.
func (s *Scheduler) Playing() []*action.Instance { return slices.Clone(s.playing) }

func (s *Scheduler) Len() int     { return len(s.playing) }
func (s *Scheduler) Stats() Stats { return s.stats }
