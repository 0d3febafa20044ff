package tm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxFrameSize bounds a single wire frame (header + payload) so a corrupt
// or adversarial len field cannot force an unbounded allocation; it is
// generous enough for the largest legitimate payload (a SHARES_PER_MSG
// share bundle) with headroom.
const MaxFrameSize = 16 * 1024

// EncodeHeader writes h in the fixed 20-byte layout of §4.1.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[4:8], h.SenderID)
	binary.LittleEndian.PutUint64(buf[8:16], h.DTS)
	binary.LittleEndian.PutUint32(buf[16:20], h.Len)
	return buf
}

// DecodeHeader parses the fixed 20-byte layout, returning an error if buf
// is short.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("tm: truncated header: got %d bytes, want %d", len(buf), HeaderSize)
	}
	return Header{
		Type:     MessageType(binary.LittleEndian.Uint32(buf[0:4])),
		SenderID: binary.LittleEndian.Uint32(buf[4:8]),
		DTS:      binary.LittleEndian.Uint64(buf[8:16]),
		Len:      binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

// EncodeMessage serializes a full frame: header followed by payload.
func EncodeMessage(m Message) []byte {
	m.Header.Len = uint32(len(m.Payload))
	var buf bytes.Buffer
	buf.Write(EncodeHeader(m.Header))
	buf.Write(m.Payload)
	return buf.Bytes()
}

// DecodeMessage parses a full frame. A frame whose declared len does not
// match the bytes actually present is rejected as malformed (§4.1: "A
// truncated or oversized frame is dropped"), not silently truncated or
// padded.
func DecodeMessage(buf []byte) (Message, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Message{}, err
	}
	if h.Len > MaxFrameSize {
		return Message{}, fmt.Errorf("tm: oversized frame: len=%d exceeds %d", h.Len, MaxFrameSize)
	}
	want := HeaderSize + int(h.Len)
	if len(buf) != want {
		return Message{}, fmt.Errorf("tm: frame size mismatch: got %d bytes, header declares %d", len(buf), want)
	}
	payload := make([]byte, h.Len)
	copy(payload, buf[HeaderSize:])
	return Message{Header: h, Payload: payload}, nil
}
