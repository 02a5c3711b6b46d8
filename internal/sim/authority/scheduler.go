// Package authority runs the server-side action timeline of one actor: a strict FIFO of
// blocking actions whose head is the one running, plus a set of non-blocking actions that
// run alongside it.
package authority

import (
	"fmt"
	"log"
	"slices"

	"netaction.dev/internal/sim/action"
)

type Stats struct {
	Played       uint64 `json:"played"`
	Started      uint64 `json:"started"`
	Declined     uint64 `json:"declined"`
	Reclassified uint64 `json:"reclassified"`
	Ended        uint64 `json:"ended"`
	Canceled     uint64 `json:"canceled"`
	Rejected     uint64 `json:"rejected"`
}

// Scheduler is single-writer: every method must be called from the goroutine that ticks it.
type Scheduler struct {
	actor action.Actor
	pool  *action.Pool
	clock action.Clock
	log   *log.Logger

	queue       []*action.Instance
	nonBlocking []*action.Instance

	stats Stats
}

func New(actor action.Actor, pool *action.Pool, clock action.Clock, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{actor: actor, pool: pool, clock: clock, log: logger}
}

// PlayAction queues req behind any blocking action already queued. Queuing never cancels
// anything in flight. If the queue was empty the new action starts right away.
func (s *Scheduler) PlayAction(req action.ActionRequest) error {
	inst, err := s.pool.Acquire(req)
	if err != nil {
		s.stats.Rejected++
		s.log.Printf("authority: play %v: %v", req.ID, err)
		return fmt.Errorf("play %v: %w", req.ID, err)
	}
	s.stats.Played++
	s.queue = append(s.queue, inst)
	if len(s.queue) == 1 {
		s.startHead()
	}
	return nil
}

// startHead starts the head of the queue, if any. It may recurse through advanceQueue when
// the head declines or is fire-and-forget, so callers must not touch the queue afterwards.
func (s *Scheduler) startHead() {
	if len(s.queue) == 0 {
		return
	}
	head := s.queue[0]
	head.SetTimeStarted(s.clock.Now())
	if !head.OnStart(s.actor) {
		// Declined: no End.
		s.stats.Declined++
		s.advanceQueue(false)
		return
	}
	s.stats.Started++

	if head.Definition().FireAndForget() {
		// Never leave this at the head, not even for a tick: the next queued action would
		// have to wait behind it.
		s.stats.Reclassified++
		s.nonBlocking = append(s.nonBlocking, head)
		s.advanceQueue(false)
	}
}

// advanceQueue drops the head (calling End when endRemoved) and starts the next one.
func (s *Scheduler) advanceQueue(endRemoved bool) {
	if len(s.queue) > 0 {
		head := s.queue[0]
		if endRemoved {
			head.End(s.actor)
			s.stats.Ended++
		}
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.tryRelease(head)
	}
	s.startHead()
}

// Tick drives the blocking head and every non-blocking action once.
func (s *Scheduler) Tick() {
	if len(s.queue) > 0 {
		if !s.keepRunning(s.queue[0]) {
			s.advanceQueue(true)
		}
	}

	// Reverse walk so removal in place is safe.
	for i := len(s.nonBlocking) - 1; i >= 0; i-- {
		inst := s.nonBlocking[i]
		if s.keepRunning(inst) {
			continue
		}
		inst.End(s.actor)
		s.stats.Ended++
		s.nonBlocking = slices.Delete(s.nonBlocking, i, i+1)
		s.tryRelease(inst)
	}
}

// keepRunning calls OnUpdate and applies the duration limit. Non-positive durations never
// expire.
func (s *Scheduler) keepRunning(inst *action.Instance) bool {
	keepGoing := inst.OnUpdate(s.actor)
	return keepGoing && !inst.Expired()
}

// OnGameplayActivity forwards kind to the blocking head and every non-blocking action.
func (s *Scheduler) OnGameplayActivity(kind action.ActivityKind) {
	if len(s.queue) > 0 {
		s.queue[0].OnGameplayActivity(s.actor, kind)
	}
	for _, inst := range s.nonBlocking {
		inst.OnGameplayActivity(s.actor, kind)
	}
}

// CancelAll cancels the running head and every non-blocking action, drops queued actions
// that never started and returns everything to the pool.
func (s *Scheduler) CancelAll() {
	queue := s.queue
	nonBlocking := s.nonBlocking
	s.queue = nil
	s.nonBlocking = nil

	for i, inst := range queue {
		if i == 0 {
			inst.Cancel(s.actor)
			s.stats.Canceled++
		}
		s.tryRelease(inst)
	}
	for _, inst := range nonBlocking {
		inst.Cancel(s.actor)
		s.stats.Canceled++
		s.tryRelease(inst)
	}
}

// tryRelease returns inst to the pool unless one of our collections still holds it.
func (s *Scheduler) tryRelease(inst *action.Instance) {
	if slices.Contains(s.queue, inst) || slices.Contains(s.nonBlocking, inst) {
		return
	}
	s.pool.Release(inst)
}

// Head is the running blocking action, or nil.
func (s *Scheduler) Head() *action.Instance {
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

func (s *Scheduler) QueueLen() int       { return len(s.queue) }
func (s *Scheduler) NonBlockingLen() int { return len(s.nonBlocking) }
func (s *Scheduler) Stats() Stats        { return s.stats }

// Queued returns the ids in queue order, head first.
func (s *Scheduler) Queued() []action.ID {
	out := make([]action.ID, 0, len(s.queue))
	for _, inst := range s.queue {
		out = append(out, inst.ID())
	}
	return out
}

// NonBlocking returns the ids of the non-blocking set in no particular order.
func (s *Scheduler) NonBlocking() []action.ID {
	out := make([]action.ID, 0, len(s.nonBlocking))
	for _, inst := range s.nonBlocking {
		out = append(out, inst.ID())
	}
	return out
}
