package tm

// MessageType enumerates the wire message variants of §4.1.
type MessageType uint32

const (
	MsgLRTrip MessageType = iota + 1
	MsgLRClose
	MsgRelayTrip
	MsgRelayClose
	MsgTripShare
	MsgCloseShare
	MsgSignedTrip
	MsgSignedClose
	MsgSignedTripAck
	MsgSignedCloseAck
	MsgRecoveryQuery
)

func (t MessageType) String() string {
	switch t {
	case MsgLRTrip:
		return "LR_TRIP"
	case MsgLRClose:
		return "LR_CLOSE"
	case MsgRelayTrip:
		return "RELAY_TRIP"
	case MsgRelayClose:
		return "RELAY_CLOSE"
	case MsgTripShare:
		return "TRIP_SHARE"
	case MsgCloseShare:
		return "CLOSE_SHARE"
	case MsgSignedTrip:
		return "SIGNED_TRIP"
	case MsgSignedClose:
		return "SIGNED_CLOSE"
	case MsgSignedTripAck:
		return "SIGNED_TRIP_ACK"
	case MsgSignedCloseAck:
		return "SIGNED_CLOSE_ACK"
	case MsgRecoveryQuery:
		return "RECOVERY_QUERY"
	default:
		return "UNKNOWN"
	}
}

// IsAck reports whether t is one of the breaker-proxy acknowledgment types.
func (t MessageType) IsAck() bool {
	return t == MsgSignedTripAck || t == MsgSignedCloseAck
}

// IsShare reports whether t is a v1 threshold-share bundle type.
func (t MessageType) IsShare() bool {
	return t == MsgTripShare || t == MsgCloseShare
}

// CBStateOf maps a message type to the breaker/relay state category it
// asserts, for types where that mapping is fixed by the type itself.
func (t MessageType) CBStateOf() CBState {
	switch t {
	case MsgLRTrip, MsgRelayTrip, MsgTripShare, MsgSignedTrip, MsgSignedTripAck:
		return CBTrip
	default:
		return CBClose
	}
}

// Header is the fixed 20-byte frame header of §4.1: type, sender_id, dts,
// len, all host-native (replicas are assumed same-endian). The wire codec
// in codec.go fixes the encoding to little-endian explicitly rather than
// "host-native", which is a deliberate tightening over the original C
// source (same-endian assumption) so that the byte layout is reproducible
// across build machines.
type Header struct {
	Type     MessageType
	SenderID uint32
	DTS      uint64
	Len      uint32
}

// HeaderSize is the fixed wire size of Header in bytes.
const HeaderSize = 4 + 4 + 8 + 4

// Message is a decoded frame: header plus its raw payload bytes.
type Message struct {
	Header
	Payload []byte
}
