package tm

import (
	"time"

	"github.com/spire-resilient-systems/spire-sub004/tm/scheduler"
	"github.com/spire-resilient-systems/spire-sub004/tm/threshold"
)

// startSender begins the periodic transmitter appropriate to the current
// mode while the replica is pursuing target (CBTrip while in ATTEMPT_TRIP,
// CBClose while in ATTEMPT_CLOSE), satisfying I7/P3: exactly one periodic
// transmitter runs while tm_state is ATTEMPT_*. The first tick fires
// immediately, matching §4.3 ("first tick: builds a bundle for r.dts").
func (rep *Replica) startSender(target CBState) {
	rep.stopSender()
	rep.senderActive = true
	rep.senderTarget = target
	rep.curDTS = rep.seedDTS()
	rep.senderAligned = scheduler.NewAlignedInterval(int64(rep.curDTS)*int64(time.Millisecond), rep.params.DTSInterval)

	switch rep.params.Mode {
	case ModeThresholdFlood:
		rep.fireShareTick(target)
	case ModeRelaySigned:
		rep.fireRelayTick(target)
	}
}

// seedDTS picks the dts the sender's first tick publishes at: the current
// position on the wall-clock dts grid, never older than r.dts (§3, §4.3).
// Every replica resolves this the same way off the same r, so the first
// bundle of a round lands on a dts the whole membership can agree on.
func (rep *Replica) seedDTS() uint64 {
	dts := Discretize(rep.clock.NowMS())
	if rep.r.DTS > dts {
		dts = rep.r.DTS
	}
	return dts
}

// startSignedResend begins the v1-only TRIPPED/CLOSED periodic unicast of
// cur_signed to the breaker proxy every SIGNED_TIMEOUT (§4.3).
func (rep *Replica) startSignedResend(target CBState) {
	rep.stopSender()
	rep.senderActive = true
	rep.senderTarget = target
	rep.senderAligned = scheduler.NewAlignedInterval(rep.clock.NowUnixNano(), rep.params.SignedTimeout)
	rep.fireSignedTick()
}

// stopSender cancels whatever periodic transmitter is pending, satisfying
// the §5 cancellation rule: a handler leaving a sending state must dequeue
// the pending timer before freeing the outbound message.
func (rep *Replica) stopSender() {
	if rep.senderActive {
		rep.sched.Cancel(rep.senderHandle)
		rep.senderActive = false
		rep.senderAligned = nil
	}
}

// fireShareTick builds and broadcasts the v1 share bundle for the current
// tail dts, processes the replica's own share locally (which may trigger a
// combine), and reschedules itself at the next dts boundary.
func (rep *Replica) fireShareTick(target CBState) {
	sv := StateVector{State: target, DTS: rep.curDTS}
	digest := Digest(sv)

	agg := rep.aggregatorFor(target)
	priv := rep.privShareFor(target)

	sig, err := rep.scheme.Sign(priv, digest)
	if err != nil {
		rep.log.Errorf("replica %d: signing share for dts=%d failed: %v", rep.params.ID, rep.curDTS, err)
	} else {
		bundle := Message{
			Header:  Header{Type: shareTypeFor(target), SenderID: rep.params.ID, DTS: rep.curDTS},
			Payload: sig,
		}
		if err := rep.net.Broadcast(bundle); err != nil {
			rep.log.Warnf("replica %d: broadcasting share failed: %v", rep.params.ID, err)
		}
		if err := agg.StoreShare(int(rep.params.ID), rep.curDTS, digest, sig); err != nil {
			rep.log.Debugf("replica %d: storing own share: %v", rep.params.ID, err)
		}
		rep.tryCombine(target, agg, digest)
		if rep.state != StateAttemptTrip && rep.state != StateAttemptClose {
			return // the combine left ATTEMPT_*; the signed resend now owns the sender slot
		}
	}

	rep.rescheduleSender(func() {
		rep.curDTS += rep.params.DTSStepMS()
		rep.fireShareTick(target)
	})
}

// fireRelayTick builds and unicasts a v2 RELAY_TRIP/RELAY_CLOSE to the
// breaker proxy, RSA-signed over the header, then reschedules at the next
// DTS_INTERVAL boundary.
func (rep *Replica) fireRelayTick(target CBState) {
	h := Header{Type: relayTypeFor(target), SenderID: rep.params.ID, DTS: rep.curDTS}
	sig, err := rep.rsa.Sign(HeaderDigest(h))
	if err != nil {
		rep.log.Errorf("replica %d: signing relay message failed: %v", rep.params.ID, err)
	} else if err := rep.net.SendToProxy(Message{Header: h, Payload: sig}); err != nil {
		rep.log.Warnf("replica %d: sending relay message failed: %v", rep.params.ID, err)
	}
	rep.rescheduleSender(func() {
		rep.curDTS += rep.params.DTSStepMS()
		rep.fireRelayTick(target)
	})
}

// fireSignedTick resends the v1 combined signature to the breaker proxy.
func (rep *Replica) fireSignedTick() {
	if rep.curSigned != nil {
		if err := rep.net.SendToProxy(*rep.curSigned); err != nil {
			rep.log.Warnf("replica %d: resending signed message failed: %v", rep.params.ID, err)
		}
	}
	rep.rescheduleSender(rep.fireSignedTick)
}

func (rep *Replica) rescheduleSender(fire func()) {
	if !rep.senderActive {
		return
	}
	deadline := rep.senderAligned.Next()
	rep.senderHandle = rep.sched.ScheduleAt(deadline, fire)
}

// tryCombine attempts to recombine a threshold signature for the freshest
// reachable dts and, on success, records it as cur_signed and drives the
// "own signed" column of the transition table.
func (rep *Replica) tryCombine(target CBState, agg *threshold.Aggregator, _ []byte) {
	for i := 0; i < rep.params.SharesPerMsg; i++ {
		dts := rep.curDTS - uint64(i)*rep.params.DTSStepMS()
		sig, err := agg.TryCombine(dts)
		if err != nil {
			continue
		}
		digest := Digest(StateVector{State: target, DTS: dts})
		if err := rep.scheme.VerifyRecovered(digest, sig); err != nil {
			rep.log.Warnf("replica %d: combined signature failed final verification at dts=%d: %v", rep.params.ID, dts, err)
			continue
		}
		rep.curSigned = &Message{
			Header:  Header{Type: signedTypeFor(target), SenderID: rep.params.ID, DTS: dts},
			Payload: sig,
		}
		rep.bench.RecordResolved(dts)
		rep.onOwnCombine(target)
		return
	}
}

// onOwnCombine implements the "own signed (v1)" column: ATTEMPT_TRIP ->
// TRIPPED (b<-self, start signed resend), ATTEMPT_CLOSE -> CLOSED.
func (rep *Replica) onOwnCombine(target CBState) {
	switch rep.state {
	case StateAttemptTrip:
		if target != CBTrip {
			return
		}
		rep.stopSender()
		rep.b = rep.r
		rep.transitionTo(StateTripped)
		rep.startSignedResend(CBTrip)
	case StateAttemptClose:
		if target != CBClose {
			return
		}
		rep.stopSender()
		rep.b = rep.r
		rep.transitionTo(StateClosed)
		rep.startSignedResend(CBClose)
	}
}

func (rep *Replica) aggregatorFor(target CBState) *threshold.Aggregator {
	if target == CBTrip {
		return rep.tripAgg
	}
	return rep.closeAgg
}

func (rep *Replica) privShareFor(target CBState) *threshold.PriShare {
	if target == CBTrip {
		return rep.ownTrip
	}
	return rep.ownClose
}

func shareTypeFor(target CBState) MessageType {
	if target == CBTrip {
		return MsgTripShare
	}
	return MsgCloseShare
}

func relayTypeFor(target CBState) MessageType {
	if target == CBTrip {
		return MsgRelayTrip
	}
	return MsgRelayClose
}

func signedTypeFor(target CBState) MessageType {
	if target == CBTrip {
		return MsgSignedTrip
	}
	return MsgSignedClose
}
