package tm

import (
	"testing"

	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/spire-sub004/tm/scheduler"
	"github.com/spire-resilient-systems/spire-sub004/tm/threshold"
	"github.com/spire-resilient-systems/spire-sub004/tmlog"
)

// fakeClock drives the dts grid deterministically instead of racing real
// time, so tests can assert on exact published dts values.
type fakeClock struct {
	nowMS uint64
}

func (c *fakeClock) NowMS() uint64      { return c.nowMS }
func (c *fakeClock) NowUnixNano() int64 { return int64(c.nowMS) * 1_000_000 }

// newTestReplicaV1 builds a real (F+1, N) BLS sharing and a replica holding
// replica 1's share of it, so share-ingestion tests exercise actual
// signing/verification/recombination rather than stubs.
func newTestReplicaV1(t *testing.T, nowMS uint64) (*Replica, []*threshold.PriShare, *fakeNetwork) {
	t.Helper()
	const n, f = 4, 1
	quorum := f + 1

	suite := bls12381.NewBLS12381Suite()
	priPoly := share.NewPriPoly(suite.G2(), quorum, nil, suite.RandomStream())
	pubPoly := priPoly.Commit(suite.G2().Point().Base())
	shares := priPoly.Shares(n)

	params, err := NewParams(1, n, f, 0, ModeThresholdFlood)
	require.NoError(t, err)

	scheme := threshold.NewScheme(pubPoly)
	tripAgg := threshold.NewAggregator(scheme, n, params.SharesPerMsg, 1, quorum)
	closeAgg := threshold.NewAggregator(scheme, n, params.SharesPerMsg, 1, quorum)

	net := &fakeNetwork{}
	clock := &fakeClock{nowMS: nowMS}
	rep := NewReplica(params, tmlog.NewNop(), clock, net, scheduler.NewQueue(), nil)
	rep.WithThreshold(scheme, tripAgg, closeAgg, shares[0], shares[0])

	return rep, shares, net
}

func TestHandleShareCombinesOnQuorum(t *testing.T) {
	rep, shares, _ := newTestReplicaV1(t, 5000)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 4900}, StateVector{State: CBClose, DTS: 4900})

	require.NoError(t, rep.HandleLR(CBTrip, 5000))
	require.Equal(t, StateAttemptTrip, rep.State())

	dts := rep.curDTS
	digest := Digest(StateVector{State: CBTrip, DTS: dts})
	sig, err := rep.scheme.Sign(shares[1], digest) // replica 2's share
	require.NoError(t, err)

	require.NoError(t, rep.HandleShare(2, MsgTripShare, dts, sig))
	assert.Equal(t, StateTripped, rep.State(), "quorum of valid shares should combine and trip")
}

func TestHandleShareDropsInvalidShare(t *testing.T) {
	rep, shares, _ := newTestReplicaV1(t, 5000)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 4900}, StateVector{State: CBClose, DTS: 4900})
	require.NoError(t, rep.HandleLR(CBTrip, 5000))

	dts := rep.curDTS
	digest := Digest(StateVector{State: CBTrip, DTS: dts})
	sig, err := rep.scheme.Sign(shares[1], digest)
	require.NoError(t, err)
	sig[0] ^= 0xFF // corrupt the share

	require.NoError(t, rep.HandleShare(2, MsgTripShare, dts, sig))
	assert.Equal(t, StateAttemptTrip, rep.State(), "a bogus share must not be stored or move the state machine")

	// A subsequent genuine share still reaches quorum: the bogus one did
	// not poison the slot.
	goodSig, err := rep.scheme.Sign(shares[2], digest) // replica 3's share
	require.NoError(t, err)
	require.NoError(t, rep.HandleShare(3, MsgTripShare, dts, goodSig))
	assert.Equal(t, StateTripped, rep.State())
}

func TestHandleShareDropsStaleDTS(t *testing.T) {
	rep, shares, _ := newTestReplicaV1(t, 5000)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 4900}, StateVector{State: CBClose, DTS: 4900})
	require.NoError(t, rep.HandleLR(CBTrip, 5000))

	staleDTS := rep.curDTS - rep.params.DTSStepMS()
	digest := Digest(StateVector{State: CBTrip, DTS: staleDTS})
	sig, err := rep.scheme.Sign(shares[1], digest)
	require.NoError(t, err)

	require.NoError(t, rep.HandleShare(2, MsgTripShare, staleDTS, sig))
	assert.Equal(t, StateAttemptTrip, rep.State(), "a share older than cur_dts must be dropped")
}

func TestHandleShareDropsWhenNotPursuingTarget(t *testing.T) {
	rep, shares, _ := newTestReplicaV1(t, 5000)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 4900}, StateVector{State: CBClose, DTS: 4900})

	digest := Digest(StateVector{State: CBTrip, DTS: 5000})
	sig, err := rep.scheme.Sign(shares[1], digest)
	require.NoError(t, err)

	require.NoError(t, rep.HandleShare(2, MsgTripShare, 5000, sig))
	assert.Equal(t, StateClosed, rep.State(), "a share for a target not being pursued must be dropped")
}

func TestStartSenderSeedsFirstTickFromDTSGrid(t *testing.T) {
	rep, _, _ := newTestReplicaV1(t, 5050)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 4900}, StateVector{State: CBClose, DTS: 4900})

	require.NoError(t, rep.HandleLR(CBTrip, 5000))
	assert.Equal(t, uint64(5000), rep.curDTS, "first tick must publish at the discretized grid position, not a zeroed counter")
}
