package observerproto

import "netaction.dev/internal/protocol"

// Version is the observer protocol version (separate from the actor WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "OBSERVER_TICK"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryTicks thins the feed to one message per N world ticks.
	EveryTicks int `json:"every_ticks"`
	// ActorIDs limits the feed to these actors. Empty means all.
	ActorIDs []uint64 `json:"actor_ids,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string               `json:"protocol_version"`
	WorldID         string               `json:"world_id"`
	Tick            uint64               `json:"tick"`
	WorldParams     protocol.WorldParams `json:"world_params"`
	Catalog         protocol.CatalogMsg  `json:"catalog"`
}

// Server -> Client.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Actors []protocol.ActorState `json:"actors"`

	Played   uint64 `json:"played"`
	Rejected uint64 `json:"rejected"`
	Deaths   uint64 `json:"deaths"`
}
