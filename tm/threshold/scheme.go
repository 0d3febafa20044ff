// Package threshold wraps a (t,n)-threshold BLS signature scheme around the
// per-dts share aggregation required by the decision engine: each replica
// signs its own state-vector digest with its key share, floods the share,
// and any replica that collects F+1 consistent shares for the same digest
// can recombine them into one signature the breaker proxy accepts.
package threshold

import (
	"github.com/drand/kyber"
	"github.com/drand/kyber/pairing"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/share"
	"github.com/drand/kyber/sign"
	"github.com/drand/kyber/sign/tbls"
)

// Scheme bundles the pairing suite, the threshold signing scheme, and the
// group public key/polynomial needed to sign, verify, and recombine shares.
// It is built once at startup from the replica's key material and is safe
// for concurrent read-only use thereafter (all methods are non-mutating).
type Scheme struct {
	suite  pairing.Suite
	ts     sign.ThresholdScheme
	pubPoly *share.PubPoly
	pub    kyber.Point // group public key, PubPoly.Commit()
}

// KeyShare is one replica's private share of the group signing key,
// alongside the public commitment polynomial shared by all replicas.
type KeyShare struct {
	Private *share.PriShare
	Public  *share.PubPoly
}

// NewScheme constructs a Scheme from the group's threshold public
// commitment polynomial. The polynomial itself (and thus the group
// public key) is identical across all replicas and is provisioned alongside
// each replica's private share at deployment time; this package does not
// perform distributed key generation, mirroring the spec's assumption that
// keys are established out of band before the replica starts.
func NewScheme(pubPoly *share.PubPoly) *Scheme {
	suite := bls12381.NewBLS12381Suite()
	return &Scheme{
		suite:   suite,
		ts:      tbls.NewThresholdSchemeOnG1(suite),
		pubPoly: pubPoly,
		pub:     pubPoly.Commit(),
	}
}

// Sign produces this replica's signature share over digest using its key
// share.
func (s *Scheme) Sign(priv *share.PriShare, digest []byte) ([]byte, error) {
	return s.ts.Sign(priv, digest)
}

// VerifyPartial checks a single signature share against the group's public
// sharing polynomial and the expected digest.
func (s *Scheme) VerifyPartial(digest, sig []byte) error {
	return s.ts.VerifyPartial(s.pubPoly, digest, sig)
}

// Recover combines t of the collected shares into a single recovered
// signature, verifying each contributing share along the way (so a single
// malformed or wrongly-signed share fails the whole recombination rather
// than silently corrupting it).
func (s *Scheme) Recover(digest []byte, shares [][]byte, t, n int) ([]byte, error) {
	return s.ts.Recover(s.pubPoly, digest, shares, t, n)
}

// VerifyRecovered checks a fully recombined signature against the group
// public key, the form the breaker proxy and peer replicas use to accept a
// SIGNED_TRIP/SIGNED_CLOSE message.
func (s *Scheme) VerifyRecovered(digest, sig []byte) error {
	return s.ts.VerifyRecovered(s.pub, digest, sig)
}

// GroupPublicKey returns the combined public key corresponding to the
// threshold secret, for embedding in outbound recovery responses or
// diagnostics.
func (s *Scheme) GroupPublicKey() kyber.Point { return s.pub }
