package tm

// RelayLink is the IPC boundary to the local relay proxy: inbound
// LR_TRIP/LR_CLOSE events, outbound edge-triggered ack forwarding (§6).
type RelayLink interface {
	// SendAck forwards an acknowledgment category change to the local
	// relay proxy.
	SendAck(state CBState) error
}

// ProxyLink is the external overlay socket to/from the breaker proxy:
// outbound SIGNED_*/RELAY_* and RECOVERY_QUERY, inbound SIGNED_*_ACK (§6).
type ProxyLink interface {
	// SendToProxy unicasts m to the breaker proxy.
	SendToProxy(m Message) error
}

// PeerLink is the internal overlay socket used by v1 replicas to flood
// share bundles to every other replica (§6, internal overlay).
type PeerLink interface {
	// Broadcast sends m to every peer replica except the local one.
	Broadcast(m Message) error
}

// Network bundles the three socket boundaries a replica owns. A single
// implementation may back all three (as the teacher's tss.Party takes one
// transporter for both broadcast and point-to-point), or they may be
// distinct sockets as §6 describes; Replica only depends on the
// interfaces.
type Network interface {
	RelayLink
	ProxyLink
	PeerLink
}
