package tm

import (
	"fmt"

	"github.com/spire-resilient-systems/spire-sub004/tm/rsasig"
	"github.com/spire-resilient-systems/spire-sub004/tm/scheduler"
	"github.com/spire-resilient-systems/spire-sub004/tm/threshold"
	"github.com/spire-resilient-systems/spire-sub004/tmlog"
)

// Bench is the minimal stats surface Replica reports into; tm/bench.Stats
// satisfies it, and tests can supply a no-op stub.
type Bench interface {
	RecordLR()
	RecordFirstShare(dts uint64)
	RecordResolved(dts uint64)
}

type noopBench struct{}

func (noopBench) RecordLR()              {}
func (noopBench) RecordFirstShare(uint64) {}
func (noopBench) RecordResolved(uint64)  {}

// Replica is the seven-state TM automaton of §4.4, holding everything one
// process needs to run either protocol mode. All exported methods except
// constructors are meant to be invoked only from the event loop's single
// dispatch goroutine; Replica performs no internal locking, matching the
// run-to-completion concurrency model of §5.
type Replica struct {
	params Params
	log    tmlog.Logger
	clock  Clock
	net    Network
	sched  *scheduler.Queue
	bench  Bench

	scheme   *threshold.Scheme
	tripAgg  *threshold.Aggregator
	closeAgg *threshold.Aggregator
	ownTrip  *threshold.PriShare
	ownClose *threshold.PriShare

	rsa *rsasig.KeyStore

	state       TMState
	r           StateVector
	b           StateVector
	cbPrevState CBState
	curDTS      uint64

	curSigned *Message // v1: combined signed message pending resend

	senderActive  bool
	senderHandle  scheduler.Handle
	senderTarget  CBState
	senderAligned *scheduler.AlignedInterval
}

// NewReplica constructs a replica in RECOVERY state with zeroed r/b
// vectors, per §4.5. Callers in v1 mode must supply scheme/tripAgg/
// closeAgg/ownTrip/ownClose; v2-mode callers must supply rsa. bench may be
// nil, in which case a no-op recorder is used.
func NewReplica(params Params, log tmlog.Logger, clock Clock, net Network, sched *scheduler.Queue, bench Bench) *Replica {
	if bench == nil {
		bench = noopBench{}
	}
	return &Replica{
		params: params,
		log:    log,
		clock:  clock,
		net:    net,
		sched:  sched,
		bench:  bench,
		state:  StateRecovery,
	}
}

// WithThreshold attaches the v1 threshold-signing dependencies.
func (rep *Replica) WithThreshold(scheme *threshold.Scheme, tripAgg, closeAgg *threshold.Aggregator, ownTrip, ownClose *threshold.PriShare) *Replica {
	rep.scheme, rep.tripAgg, rep.closeAgg, rep.ownTrip, rep.ownClose = scheme, tripAgg, closeAgg, ownTrip, ownClose
	return rep
}

// WithRSA attaches the v2 relay-signature dependencies.
func (rep *Replica) WithRSA(ks *rsasig.KeyStore) *Replica {
	rep.rsa = ks
	return rep
}

// State returns the current tm_state, mainly for tests and diagnostics.
func (rep *Replica) State() TMState { return rep.state }

// Vectors returns the current r and b state vectors.
func (rep *Replica) Vectors() (r, b StateVector) { return rep.r, rep.b }

// EnterOperational is called once recovery (§4.5) has determined the
// replica's post-recovery state and vectors; it installs them and starts
// whatever sender I7 requires, then detaches recovery handling.
func (rep *Replica) EnterOperational(state TMState, r, b StateVector) error {
	if rep.state != StateRecovery {
		return NewError(fmt.Errorf("EnterOperational called outside RECOVERY"), "enter-operational", rep.params.ID, rep.state)
	}
	rep.r, rep.b = r, b
	rep.state = state
	rep.cbPrevState = b.State
	switch state {
	case StateAttemptTrip:
		rep.startSender(CBTrip)
	case StateAttemptClose:
		rep.startSender(CBClose)
	}
	rep.log.Infof("replica %d leaving recovery into %s (r=%+v b=%+v)", rep.params.ID, state, rep.r, rep.b)
	return nil
}

// HandleLR processes an LR_TRIP/LR_CLOSE event from the local relay proxy.
func (rep *Replica) HandleLR(newState CBState, dts uint64) error {
	if dts < rep.r.DTS {
		rep.log.Debugf("replica %d: dropping stale LR %s dts=%d (r.dts=%d)", rep.params.ID, newState, dts, rep.r.DTS)
		return nil
	}
	rep.bench.RecordLR()
	rep.r = StateVector{State: newState, DTS: dts}

	switch rep.state {
	case StateTripped:
		if newState == CBClose {
			rep.transitionTo(StateAttemptClose)
			rep.startSender(CBClose)
		}
	case StateClosed:
		if newState == CBTrip {
			rep.transitionTo(StateAttemptTrip)
			rep.startSender(CBTrip)
		}
	case StateAttemptTrip:
		if newState == CBClose {
			rep.stopSender()
			rep.transitionTo(StateClosed)
		}
	case StateAttemptClose:
		if newState == CBTrip {
			rep.stopSender()
			rep.transitionTo(StateTripped)
		}
	case StateWaitTrip:
		if newState == CBTrip {
			rep.transitionTo(StateTripped)
		} else {
			rep.transitionTo(StateAttemptClose)
			rep.startSender(CBClose)
		}
	case StateWaitClose:
		if newState == CBTrip {
			rep.transitionTo(StateAttemptTrip)
			rep.startSender(CBTrip)
		} else {
			rep.transitionTo(StateClosed)
		}
	default:
		return NewError(fmt.Errorf("LR event in unreachable state"), "handle-lr", rep.params.ID, rep.state)
	}
	return nil
}

// HandleAck processes a SIGNED_TRIP_ACK/SIGNED_CLOSE_ACK from the breaker
// proxy.
func (rep *Replica) HandleAck(ackState CBState, dts uint64) error {
	if dts < rep.b.DTS {
		rep.log.Debugf("replica %d: dropping stale ack %s dts=%d (b.dts=%d)", rep.params.ID, ackState, dts, rep.b.DTS)
		return nil
	}

	ahead := dts > rep.r.DTS // strictly greater; tie goes to ATTEMPT_*, not WAIT_*

	switch rep.state {
	case StateTripped:
		if ackState == CBClose {
			if ahead {
				rep.transitionTo(StateWaitClose)
			} else {
				rep.transitionTo(StateAttemptTrip)
				rep.startSender(CBTrip)
			}
		}
	case StateClosed:
		if ackState == CBTrip {
			if ahead {
				rep.transitionTo(StateWaitTrip)
			} else {
				rep.transitionTo(StateAttemptClose)
				rep.startSender(CBClose)
			}
		}
	case StateAttemptTrip:
		if ackState == CBTrip {
			rep.stopSender()
			rep.transitionTo(StateTripped)
		} else if ahead {
			rep.stopSender()
			rep.transitionTo(StateWaitClose)
		}
		// else: ack.dts <= r.dts, ignore (already pursuing trip)
	case StateAttemptClose:
		if ackState == CBClose {
			rep.stopSender()
			rep.transitionTo(StateClosed)
		} else if ahead {
			rep.stopSender()
			rep.transitionTo(StateWaitTrip)
		}
	case StateWaitTrip:
		if ackState == CBClose {
			rep.transitionTo(StateClosed)
		}
		// TRIP_ACK column is "—" for WAIT_TRIP
	case StateWaitClose:
		if ackState == CBTrip {
			rep.transitionTo(StateTripped)
		}
	default:
		return NewError(fmt.Errorf("ack event in unreachable state"), "handle-ack", rep.params.ID, rep.state)
	}

	rep.b = StateVector{State: ackState, DTS: dts}
	if ackState != rep.cbPrevState {
		rep.cbPrevState = ackState
		if err := rep.net.SendAck(ackState); err != nil {
			rep.log.Warnf("replica %d: forwarding ack to relay proxy failed: %v", rep.params.ID, err)
		}
	}
	return nil
}

func (rep *Replica) transitionTo(next TMState) {
	rep.log.Infof("replica %d: %s -> %s (r=%+v b=%+v)", rep.params.ID, rep.state, next, rep.r, rep.b)
	rep.state = next
}
