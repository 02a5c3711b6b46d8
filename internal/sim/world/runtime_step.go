package world

import (
	"encoding/json"
	"time"

	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
)

func (w *World) stepInternal(joins []JoinRequest, leaves []uint64, actions []ActionEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	entry := TickLogEntry{Tick: nowTick}

	// Apply leaves and joins deterministically at tick boundary.
	for _, id := range leaves {
		if w.removeAvatar(id) {
			entry.Leaves++
		}
	}
	for _, req := range joins {
		resp := w.joinAvatar(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		entry.Joins++
	}

	// Apply actions in server_receive_order (the inbox order).
	for _, env := range actions {
		a := w.avatars[env.ActorID]
		if a == nil {
			continue
		}
		switch env.Kind {
		case EnvelopeCharge:
			a.sched.OnGameplayActivity(action.ActivityStoppedChargingUp)
			entry.Charges++
		default:
			if w.play(a, env.Request) {
				entry.Played++
			} else {
				entry.Rejected++
			}
		}
	}

	w.clock.Advance()
	for _, id := range w.order {
		if a := w.avatars[id]; a != nil {
			a.sched.Tick()
		}
	}
	entry.Activities, entry.Deaths = w.deliverActivities(nowTick)
	w.respawn(nowTick)

	state := w.buildState(nowTick)
	w.lastState.Store(state)
	if b, err := json.Marshal(state); err == nil {
		for _, id := range w.order {
			if a := w.avatars[id]; a != nil {
				a.sendState(Outbound{Data: b})
			}
		}
	}

	for _, a := range w.avatars {
		entry.Blocking += a.sched.QueueLen()
		entry.NonBlocking += a.sched.NonBlockingLen()
	}
	entry.Actors = len(w.avatars)
	entry.StepMS = float64(time.Since(stepStart).Microseconds()) / 1000

	w.totals.add(entry)
	w.publishMetrics(nowTick, entry)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Printf("tick log: %v", err)
		}
	}
	w.tick.Add(1)
}

func (w *World) joinAvatar(req JoinRequest) JoinResponse {
	a := w.addAvatar(req.Name, req.Out, req.State)
	return JoinResponse{
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       req.SessionID,
			ActorID:         a.ID,
			WorldParams:     w.Params(),
			CatalogDigest:   w.reg.Digest,
		},
		Catalog: w.reg.CatalogMsg(),
	}
}

// play hands req to the avatar's scheduler and, once accepted, broadcasts the confirmation
// to every client, the sender included.
func (w *World) play(a *Avatar, req protocol.ActionRequest) bool {
	if limit := w.cfg.MaxQueuedPerActor; limit > 0 && a.sched.QueueLen() >= limit {
		w.sendError(a, protocol.ErrWorldBusy, "blocking queue full")
		return false
	}
	frame, err := protocol.EncodeConfirmFrame(a.ID, req)
	if err != nil {
		w.sendError(a, protocol.ErrBadPacket, err.Error())
		return false
	}
	if err := a.sched.PlayAction(req); err != nil {
		w.sendError(a, protocol.ErrUnknownAction, err.Error())
		return false
	}
	for _, id := range w.order {
		o := w.avatars[id]
		if o == nil || o.out == nil {
			continue
		}
		if !trySend(o.out, Outbound{Binary: true, Data: frame}) {
			w.totals.DroppedConfirms++
		}
	}
	return true
}

func (w *World) sendError(a *Avatar, code, msg string) {
	w.totals.Errors++
	if a.out == nil {
		return
	}
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	if err != nil {
		return
	}
	trySend(a.out, Outbound{Data: b})
}

// deliverActivities hands out the activities queued during this tick. Activities raised
// while delivering wait for the next tick.
func (w *World) deliverActivities(nowTick uint64) (delivered, deaths int) {
	batch := w.pending
	w.pending = nil
	for _, p := range batch {
		a := w.avatars[p.actorID]
		if a == nil {
			continue
		}
		a.sched.OnGameplayActivity(p.kind)
		delivered++
		if p.kind == action.ActivityDied {
			a.sched.CancelAll()
			a.RespawnTick = nowTick + uint64(w.cfg.RespawnTicks)
			deaths++
		}
	}
	return delivered, deaths
}

func (w *World) respawn(nowTick uint64) {
	for _, id := range w.order {
		a := w.avatars[id]
		if a == nil || a.Alive() || a.RespawnTick == 0 || nowTick < a.RespawnTick {
			continue
		}
		a.HP = w.cfg.StartHP
		a.Pos = w.spawnPos(a.ID)
		a.RespawnTick = 0
	}
}

func (w *World) buildState(nowTick uint64) protocol.StateMsg {
	st := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Actors:          make([]protocol.ActorState, 0, len(w.order)),
	}
	for _, id := range w.order {
		if a := w.avatars[id]; a != nil {
			st.Actors = append(st.Actors, a.state())
		}
	}
	return st
}

// sendState replaces the pending STATE in the avatar's state slot. Without a slot, a full
// out queue skips the STATE so queued confirms are never evicted.
func (a *Avatar) sendState(m Outbound) {
	switch {
	case a.stateOut != nil:
		sendLatest(a.stateOut, m)
	case a.out != nil:
		trySend(a.out, m)
	}
}
