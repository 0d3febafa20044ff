package threshold

import (
	"fmt"
	"os"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/share"
)

// LoadPrivateShare reads a replica's scalar key share from path: the raw
// marshaled binary encoding of a kyber.Scalar on the key group (G2, per
// NewThresholdSchemeOnG1's convention of keys-on-G2/sigs-on-G1), prefixed
// by nothing else — one file holds exactly one share. index is the
// share's 0-based kyber polynomial index, i.e. replica id minus one: a
// PriPoly's Shares(n) evaluates share k at point k+1, so replica id r's
// key material must be provisioned as polynomial index r-1 for
// Aggregator's replica-id-keyed storage to line up with the scheme's
// Lagrange indices.
func LoadPrivateShare(path string, index int) (*PriShare, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("threshold: reading private share %s: %w", path, err)
	}
	suite := bls12381.NewBLS12381Suite()
	scalar := suite.G2().Scalar()
	if err := scalar.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("threshold: parsing private share %s: %w", path, err)
	}
	return &share.PriShare{I: index, V: scalar}, nil
}

// LoadPublicPoly reads the group's public commitment polynomial from path:
// a concatenation of fixed-width marshaled G2 points (PointLen bytes each,
// no length prefix), coefficient 0 (the group public key) first. Every
// replica loads the identical file.
func LoadPublicPoly(path string) (*PubPoly, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("threshold: reading public polynomial %s: %w", path, err)
	}
	suite := bls12381.NewBLS12381Suite()
	group := suite.G2()
	pointLen := group.PointLen()

	if len(raw)%pointLen != 0 || len(raw) == 0 {
		return nil, fmt.Errorf("threshold: public polynomial %s has size %d, not a multiple of point length %d", path, len(raw), pointLen)
	}
	n := len(raw) / pointLen
	commits := make([]kyber.Point, n)
	for i := 0; i < n; i++ {
		p := group.Point()
		if err := p.UnmarshalBinary(raw[i*pointLen : (i+1)*pointLen]); err != nil {
			return nil, fmt.Errorf("threshold: parsing commitment %d in %s: %w", i, path, err)
		}
		commits[i] = p
	}
	return share.NewPubPoly(group, nil, commits), nil
}
