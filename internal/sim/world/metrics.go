package world

import "netaction.dev/internal/sim/action"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Actors      int `json:"actors"`
	Blocking    int `json:"blocking"`
	NonBlocking int `json:"non_blocking"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Totals Totals           `json:"totals"`
	Pool   action.PoolStats `json:"pool"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

// Totals are counters since the world started.
type Totals struct {
	Played          uint64 `json:"played"`
	Rejected        uint64 `json:"rejected"`
	Charges         uint64 `json:"charges"`
	Activities      uint64 `json:"activities"`
	Deaths          uint64 `json:"deaths"`
	Errors          uint64 `json:"errors"`
	DroppedConfirms uint64 `json:"dropped_confirms"`
}

func (t *Totals) add(e TickLogEntry) {
	t.Played += uint64(e.Played)
	t.Rejected += uint64(e.Rejected)
	t.Charges += uint64(e.Charges)
	t.Activities += uint64(e.Activities)
	t.Deaths += uint64(e.Deaths)
}

func (w *World) publishMetrics(nowTick uint64, e TickLogEntry) {
	w.metrics.Store(WorldMetrics{
		Tick:        nowTick,
		Actors:      e.Actors,
		Blocking:    e.Blocking,
		NonBlocking: e.NonBlocking,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: e.StepMS,
		Totals: w.totals,
		Pool:   w.pool.Stats(),
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
