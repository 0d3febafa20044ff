package tm

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/spire-sub004/tm/rsasig"
	"github.com/spire-resilient-systems/spire-sub004/tm/scheduler"
	"github.com/spire-resilient-systems/spire-sub004/tmlog"
)

// fakeNetwork records every outbound call a Replica makes, so tests can
// assert on forwarded acks/broadcasts without a real socket.
type fakeNetwork struct {
	acks      []CBState
	toProxy   []Message
	broadcast []Message
}

func (f *fakeNetwork) SendAck(state CBState) error {
	f.acks = append(f.acks, state)
	return nil
}

func (f *fakeNetwork) SendToProxy(m Message) error {
	f.toProxy = append(f.toProxy, m)
	return nil
}

func (f *fakeNetwork) Broadcast(m Message) error {
	f.broadcast = append(f.broadcast, m)
	return nil
}

// newTestReplica builds a v2 (relay-signed) replica so ATTEMPT_* sender
// startup only needs an RSA key, not a full threshold group.
func newTestReplica(t *testing.T) (*Replica, *fakeNetwork) {
	t.Helper()
	params, err := NewParams(1, 4, 1, 0, ModeRelaySigned)
	require.NoError(t, err)
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	net := &fakeNetwork{}
	rep := NewReplica(params, tmlog.NewNop(), SystemClock, net, scheduler.NewQueue(), nil)
	rep.WithRSA(rsasig.NewKeyStore(priv))
	return rep, net
}

func mustEnterOperational(t *testing.T, rep *Replica, state TMState, r, b StateVector) {
	t.Helper()
	require.NoError(t, rep.EnterOperational(state, r, b))
}

func TestEnterOperationalRejectsOutsideRecovery(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 100}, StateVector{State: CBClose, DTS: 100})
	err := rep.EnterOperational(StateTripped, StateVector{}, StateVector{})
	assert.Error(t, err, "expected EnterOperational to reject a second call outside RECOVERY")
}

func TestHandleLR_ClosedToAttemptTrip(t *testing.T) {
	rep, net := newTestReplica(t)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 1000}, StateVector{State: CBClose, DTS: 1000})

	require.NoError(t, rep.HandleLR(CBTrip, 1100))
	assert.Equal(t, StateAttemptTrip, rep.State())
	assert.NotEmpty(t, net.toProxy, "expected the sender's first tick to fire immediately")
}

func TestHandleLR_TrippedToAttemptClose(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateTripped, StateVector{State: CBTrip, DTS: 1000}, StateVector{State: CBTrip, DTS: 1000})

	require.NoError(t, rep.HandleLR(CBClose, 1100))
	assert.Equal(t, StateAttemptClose, rep.State())
}

func TestHandleLR_DropsStaleDTS(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 1000}, StateVector{State: CBClose, DTS: 1000})

	require.NoError(t, rep.HandleLR(CBTrip, 900))
	assert.Equal(t, StateClosed, rep.State(), "stale LR should be dropped")
	r, _ := rep.Vectors()
	assert.Equal(t, uint64(1000), r.DTS, "r.dts must not move on a stale event")
}

func TestHandleLR_AttemptTripCancelledByOpposingLR(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateAttemptTrip, StateVector{State: CBTrip, DTS: 1000}, StateVector{State: CBClose, DTS: 900})

	require.NoError(t, rep.HandleLR(CBClose, 1100))
	assert.Equal(t, StateClosed, rep.State())
}

func TestHandleLR_WaitTripResolvesOnLRTrip(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateWaitTrip, StateVector{State: CBClose, DTS: 1000}, StateVector{State: CBTrip, DTS: 1100})

	require.NoError(t, rep.HandleLR(CBTrip, 1200))
	assert.Equal(t, StateTripped, rep.State())
}

func TestHandleLR_WaitTripElseBranchGoesAttemptClose(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateWaitTrip, StateVector{State: CBClose, DTS: 1000}, StateVector{State: CBTrip, DTS: 1100})

	require.NoError(t, rep.HandleLR(CBClose, 1200))
	assert.Equal(t, StateAttemptClose, rep.State())
}

func TestHandleAck_ClosedAheadGoesWaitTrip(t *testing.T) {
	rep, net := newTestReplica(t)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 1000}, StateVector{State: CBClose, DTS: 1000})

	require.NoError(t, rep.HandleAck(CBTrip, 2000))
	assert.Equal(t, StateWaitTrip, rep.State())
	assert.Equal(t, []CBState{CBTrip}, net.acks)
}

func TestHandleAck_ClosedNotAheadGoesAttemptClose(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 2000}, StateVector{State: CBClose, DTS: 2000})

	// ack dts == r.dts: tie goes to ATTEMPT_*, not WAIT_*.
	require.NoError(t, rep.HandleAck(CBTrip, 2000))
	assert.Equal(t, StateAttemptClose, rep.State(), "tie-break should favor ATTEMPT_*")
}

func TestHandleAck_DropsStaleAckEntirely(t *testing.T) {
	rep, net := newTestReplica(t)
	mustEnterOperational(t, rep, StateTripped, StateVector{State: CBTrip, DTS: 10000}, StateVector{State: CBTrip, DTS: 10000})

	require.NoError(t, rep.HandleAck(CBClose, 9000))
	assert.Equal(t, StateTripped, rep.State())
	_, b := rep.Vectors()
	assert.Equal(t, uint64(10000), b.DTS, "stale ack must not update b.dts")
	assert.Empty(t, net.acks, "stale ack should not be forwarded")
}

func TestHandleAck_AttemptTripIgnoresBehindCloseAck(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateAttemptTrip, StateVector{State: CBTrip, DTS: 2000}, StateVector{State: CBClose, DTS: 1000})

	require.NoError(t, rep.HandleAck(CBClose, 1500))
	assert.Equal(t, StateAttemptTrip, rep.State(), "ack not ahead: should be ignored")
}

func TestHandleAck_AttemptTripResolvesOnTripAck(t *testing.T) {
	rep, _ := newTestReplica(t)
	mustEnterOperational(t, rep, StateAttemptTrip, StateVector{State: CBTrip, DTS: 2000}, StateVector{State: CBClose, DTS: 1000})

	require.NoError(t, rep.HandleAck(CBTrip, 2000))
	assert.Equal(t, StateTripped, rep.State())
}

func TestHandleAck_ForwardingIsEdgeTriggered(t *testing.T) {
	rep, net := newTestReplica(t)
	mustEnterOperational(t, rep, StateClosed, StateVector{State: CBClose, DTS: 1000}, StateVector{State: CBClose, DTS: 1000})

	require.NoError(t, rep.HandleAck(CBTrip, 2000))
	require.NoError(t, rep.HandleAck(CBTrip, 2100))
	assert.Len(t, net.acks, 1, "an unchanged ack category must be forwarded only once")
}
