package tm

import (
	"crypto/sha512"
	"encoding/binary"
)

// digestDelimiter guards against trivial concatenation ambiguity between
// the state and dts fields, following the same domain-separation
// discipline as the teacher's common.SHA512_256 (common/hash.go), which
// interleaves a delimiter byte and an explicit length prefix between
// hashed fields rather than a bare concatenation.
const digestDelimiter = byte('|')

// Digest computes the payload digest signed over by the v1 threshold share
// scheme: SHA-512/256 over a domain-separated encoding of {state, dts}, per
// §4.2/§8 P4. v2 RSA relay signatures use HeaderDigest instead.
func Digest(sv StateVector) []byte {
	var stateBuf [4]byte
	binary.LittleEndian.PutUint32(stateBuf[:], uint32(sv.State))
	var dtsBuf [8]byte
	binary.LittleEndian.PutUint64(dtsBuf[:], sv.DTS)

	h := sha512.New512_256()
	h.Write(stateBuf[:])
	h.Write([]byte{digestDelimiter})
	h.Write(dtsBuf[:])
	return h.Sum(nil)
}

// HeaderDigest computes the digest signed over by v2's RSA relay messages,
// which sign the message header (§4.1: "128-byte RSA signature over the
// header") rather than a {state,dts} payload struct.
func HeaderDigest(h Header) []byte {
	sum := sha512.Sum512_256(EncodeHeader(h))
	return sum[:]
}
