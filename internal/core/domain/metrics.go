package domain

// Stat names a process-wide monotonic counter.
type Stat string

const (
	StatConnectionsAccepted Stat = "connections_accepted"
	StatConnectionsRejected Stat = "connections_rejected"
	StatAuthFailures        Stat = "auth_failures"
	StatMessagesReceived    Stat = "messages_received"
	StatMessagesRejected    Stat = "messages_rejected"
	StatDeliveries          Stat = "broadcast_deliveries"
	StatSignalsRelayed      Stat = "signals_relayed"
	StatChatsRelayed        Stat = "chats_relayed"
	StatRoomsCreated        Stat = "rooms_created"
	StatRoomsDeleted        Stat = "rooms_deleted"
	StatRoomsSwept          Stat = "rooms_swept"
	StatLivenessEvictions   Stat = "liveness_evictions"
)

// AllStats lists every stat in a stable order.
var AllStats = []Stat{
	StatConnectionsAccepted,
	StatConnectionsRejected,
	StatAuthFailures,
	StatMessagesReceived,
	StatMessagesRejected,
	StatDeliveries,
	StatSignalsRelayed,
	StatChatsRelayed,
	StatRoomsCreated,
	StatRoomsDeleted,
	StatRoomsSwept,
	StatLivenessEvictions,
}

// Stats is a snapshot of counter values keyed by name.
type Stats map[Stat]int64
