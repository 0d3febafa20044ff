package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/spire-sub004/tm/scheduler"
	"github.com/spire-resilient-systems/spire-sub004/tmlog"
)

func newTestRecovery(t *testing.T) (*Recovery, *Replica, *fakeNetwork, *scheduler.Queue) {
	t.Helper()
	rep, net := newTestReplica(t)
	sched := scheduler.NewQueue()
	rep.sched = sched
	rep.log = tmlog.NewNop()

	queries := 0
	rc := NewRecovery(rep, sched, func() error {
		queries++
		return nil
	})
	return rc, rep, net, sched
}

func TestRecoveryBothTripResolvesTripped(t *testing.T) {
	rc, rep, _, _ := newTestRecovery(t)
	require.NoError(t, rc.HandleRelayEvent(CBTrip, 5000))
	require.NoError(t, rc.HandleProxyAck(CBTrip, 4900))
	assert.Equal(t, StateTripped, rep.State())
}

func TestRecoveryBothCloseResolvesClosed(t *testing.T) {
	rc, rep, _, _ := newTestRecovery(t)
	require.NoError(t, rc.HandleProxyAck(CBClose, 4900))
	require.NoError(t, rc.HandleRelayEvent(CBClose, 5000))
	assert.Equal(t, StateClosed, rep.State())
}

func TestRecoveryTripAheadOfCloseAckAttemptsTrip(t *testing.T) {
	rc, rep, _, _ := newTestRecovery(t)
	require.NoError(t, rc.HandleRelayEvent(CBTrip, 5000))
	require.NoError(t, rc.HandleProxyAck(CBClose, 4000))
	assert.Equal(t, StateAttemptTrip, rep.State())
}

func TestRecoveryTripBehindCloseAckWaitsClose(t *testing.T) {
	rc, rep, _, _ := newTestRecovery(t)
	require.NoError(t, rc.HandleRelayEvent(CBTrip, 4000))
	require.NoError(t, rc.HandleProxyAck(CBClose, 5000))
	assert.Equal(t, StateWaitClose, rep.State())
}

func TestRecoveryCloseAheadOfTripAckAttemptsClose(t *testing.T) {
	rc, rep, _, _ := newTestRecovery(t)
	require.NoError(t, rc.HandleRelayEvent(CBClose, 5000))
	require.NoError(t, rc.HandleProxyAck(CBTrip, 4000))
	assert.Equal(t, StateAttemptClose, rep.State())
}

func TestRecoveryCloseBehindTripAckWaitsTrip(t *testing.T) {
	rc, rep, _, _ := newTestRecovery(t)
	require.NoError(t, rc.HandleRelayEvent(CBClose, 4000))
	require.NoError(t, rc.HandleProxyAck(CBTrip, 5000))
	assert.Equal(t, StateWaitTrip, rep.State())
}

func TestRecoveryIgnoresSecondRelayEvent(t *testing.T) {
	rc, _, _, _ := newTestRecovery(t)
	require.NoError(t, rc.HandleRelayEvent(CBTrip, 5000))
	require.NoError(t, rc.HandleRelayEvent(CBClose, 6000))
	assert.Equal(t, uint64(5000), rc.r.DTS, "second relay event must not overwrite the first")
	assert.Equal(t, CBTrip, rc.r.State)
}

func TestRecoveryProxyAckForwardedAndStopsQuery(t *testing.T) {
	rc, _, net, sched := newTestRecovery(t)
	rc.Start(1_000_000_000)
	require.True(t, rc.queryActive, "expected the query timer to be active after Start")

	// The ack changes the breaker category from the assumed cold-start
	// default (CBClose), so it must be forwarded.
	require.NoError(t, rc.HandleProxyAck(CBTrip, 4000))
	assert.False(t, rc.queryActive, "HandleProxyAck should stop the query timer")
	assert.Equal(t, []CBState{CBTrip}, net.acks)

	// With queryActive=false, firing any remaining scheduled query must not
	// resurrect it.
	sched.FireDue(2_000_000_000)
	assert.False(t, rc.queryActive, "stopped query timer must not reactivate")
}

func TestRecoveryProxyAckMatchingDefaultCategoryNotForwarded(t *testing.T) {
	rc, _, net, _ := newTestRecovery(t)

	// The breaker proxy confirms the assumed cold-start category (closed):
	// nothing changed for the relay proxy to be told about.
	require.NoError(t, rc.HandleProxyAck(CBClose, 4000))
	assert.Empty(t, net.acks, "an ack confirming the cold-start default category must not be forwarded")
}
