package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Name            string            `json:"name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	Anticipation bool `json:"anticipation,omitempty"`
	MaxQueue     int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	ActorID         uint64      `json:"actor_id"`
	WorldParams     WorldParams `json:"world_params"`
	CatalogDigest   string      `json:"catalog_digest"`
}

type WorldParams struct {
	TickRateHz            int `json:"tick_rate_hz"`
	AnticipationTimeoutMs int `json:"anticipation_timeout_ms"`
}

// CATALOG (server -> client). Definitions are listed in id order so Actions[i] has id i.
type CatalogMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Digest          string          `json:"digest"`
	Actions         []ActionDefJSON `json:"actions"`
}

type ActionDefJSON struct {
	ID              ActionID           `json:"id"`
	Name            string             `json:"name"`
	Behavior        string             `json:"behavior"`
	DurationSeconds float64            `json:"duration_seconds"`
	ExecTimeSeconds float64            `json:"exec_time_seconds"`
	Radius          float64            `json:"radius,omitempty"`
	Anticipatable   bool               `json:"anticipatable,omitempty"`
	BlockingMode    string             `json:"blocking_mode"`
	Params          map[string]float64 `json:"params,omitempty"`
}

// STATE (server -> client), sent once per tick.
type StateMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Actors          []ActorState `json:"actors"`
}

type ActorState struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Pos         Vec3   `json:"pos"`
	HP          int    `json:"hp"`
	Blocking    int32  `json:"blocking"` // -1 when the queue is empty
	NonBlocking int    `json:"non_blocking"`
}

// CHARGE (client -> server): the player released a charge-up early.
type ChargeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Percentage      float64 `json:"percentage"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
