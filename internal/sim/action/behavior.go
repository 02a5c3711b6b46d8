package action

// Actor is the opaque handle of the character playing an action. Schedulers pass it through
// to every hook unchanged and never look inside it.
type Actor any

// ActivityKind is an external gameplay event delivered to running actions.
type ActivityKind int

const (
	ActivityAttackedByEnemy ActivityKind = iota + 1
	ActivityHealed
	ActivityStoppedChargingUp
	ActivityUsingAttackAction
	ActivityDied
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityAttackedByEnemy:
		return "ATTACKED_BY_ENEMY"
	case ActivityHealed:
		return "HEALED"
	case ActivityStoppedChargingUp:
		return "STOPPED_CHARGING_UP"
	case ActivityUsingAttackAction:
		return "USING_ATTACK_ACTION"
	case ActivityDied:
		return "DIED"
	default:
		return "UNKNOWN"
	}
}

// Behavior is the per-definition logic of an action. The server hooks are required; every
// other hook is an optional interface below and falls back to the default when missing.
//
// A Behavior value is owned by exactly one Instance and is reused across pool cycles.
type Behavior interface {
	// OnStart runs when the action reaches the front of the queue. False declines the
	// action; no End follows.
	OnStart(inst *Instance, actor Actor) bool
	// OnUpdate runs once per tick while the action runs. False stops it.
	OnUpdate(inst *Instance, actor Actor) bool
}

type Canceler interface {
	Cancel(inst *Instance, actor Actor)
}

// Ender overrides the natural end. Without it End calls Cancel.
type Ender interface {
	End(inst *Instance, actor Actor)
}

type ClientStarter interface {
	OnStartClient(inst *Instance, actor Actor) bool
}

type ClientUpdater interface {
	OnUpdateClient(inst *Instance, actor Actor) bool
}

// ClientEnder overrides the natural client end. Without it EndClient calls CancelClient.
type ClientEnder interface {
	EndClient(inst *Instance, actor Actor)
}

type ClientCanceler interface {
	CancelClient(inst *Instance, actor Actor)
}

type Anticipator interface {
	AnticipateActionClient(inst *Instance, actor Actor)
}

type ActivityListener interface {
	OnGameplayActivity(inst *Instance, actor Actor, kind ActivityKind)
}

type ChargeListener interface {
	OnStoppedChargingUp(inst *Instance, actor Actor, percentage float64)
}

// AnticipationPolicy gates client prediction. It must be a pure function of the actor and
// the request.
type AnticipationPolicy interface {
	ShouldClientAnticipate(actor Actor, req ActionRequest) bool
}

// Resetter drops behavior state when the instance goes back to its pool.
type Resetter interface {
	Reset()
}
