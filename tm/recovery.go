package tm

import (
	"github.com/spire-resilient-systems/spire-sub004/tm/scheduler"
)

// Recovery runs the two parallel collectors of §4.5 (relay collector,
// proxy collector) and drives a Replica out of RECOVERY once both have
// reported in. It is a separate type from Replica so the recovery-only
// handlers (HandleRelayEvent/HandleProxyAck) are detached once recovery
// completes, matching "the replica detaches recovery handlers and
// attaches the normal receive handlers" (§4.5).
type Recovery struct {
	rep   *Replica
	sched *scheduler.Queue

	gotR, gotB bool
	r, b       StateVector

	queryHandle  scheduler.Handle
	queryActive  bool
	queryAligned *scheduler.AlignedInterval

	sendQuery func() error
}

// NewRecovery builds a Recovery coordinator for rep. sendQuery unicasts a
// RECOVERY_QUERY to the breaker proxy; it is invoked immediately and then
// every RecoveryTimeout until a breaker ack arrives.
func NewRecovery(rep *Replica, sched *scheduler.Queue, sendQuery func() error) *Recovery {
	return &Recovery{rep: rep, sched: sched, sendQuery: sendQuery}
}

// Start begins the proxy collector's query retries. The relay collector
// needs no explicit start: it is just whatever delivers HandleRelayEvent
// calls from the IPC socket reader.
func (rc *Recovery) Start(nowUnixNano int64) {
	rc.queryActive = true
	rc.queryAligned = scheduler.NewAlignedInterval(nowUnixNano, rc.rep.params.RecoveryTimeout)
	rc.fireQuery()
}

func (rc *Recovery) fireQuery() {
	if !rc.queryActive {
		return
	}
	if err := rc.sendQuery(); err != nil {
		rc.rep.log.Warnf("replica %d: recovery query send failed: %v", rc.rep.params.ID, err)
	}
	deadline := rc.queryAligned.Next()
	rc.queryHandle = rc.sched.ScheduleAt(deadline, rc.fireQuery)
}

func (rc *Recovery) stopQuery() {
	if rc.queryActive {
		rc.sched.Cancel(rc.queryHandle)
		rc.queryActive = false
	}
}

// HandleRelayEvent is the relay collector: the first LR_* event sets r and
// marks got_r.
func (rc *Recovery) HandleRelayEvent(state CBState, dts uint64) error {
	if rc.gotR {
		return nil
	}
	rc.r = StateVector{State: state, DTS: dts}
	rc.gotR = true
	rc.rep.log.Infof("replica %d: recovery observed relay state %+v", rc.rep.params.ID, rc.r)
	return rc.maybeFinish()
}

// HandleProxyAck is the proxy collector: the first valid ack sets b and
// marks got_b, cancels the query timer, and forwards the ack to the local
// relay proxy (§4.5: "the ack is also forwarded") - but only if it changes
// the category the relay proxy was last told about, matching the
// edge-triggered forwarding HandleAck applies post-recovery. cbPrevState
// starts at its zero value (CBClose), so an ack confirming the assumed
// cold-start category (breaker closed) is not forwarded.
func (rc *Recovery) HandleProxyAck(state CBState, dts uint64) error {
	if rc.gotB {
		return nil
	}
	rc.b = StateVector{State: state, DTS: dts}
	rc.gotB = true
	rc.stopQuery()
	if state != rc.rep.cbPrevState {
		rc.rep.cbPrevState = state
		if err := rc.rep.net.SendAck(state); err != nil {
			rc.rep.log.Warnf("replica %d: forwarding recovery ack failed: %v", rc.rep.params.ID, err)
		}
	}
	rc.rep.log.Infof("replica %d: recovery observed proxy state %+v", rc.rep.params.ID, rc.b)
	return rc.maybeFinish()
}

// maybeFinish applies the deterministic post-recovery transition table of
// §4.5 once both r and b have been observed.
func (rc *Recovery) maybeFinish() error {
	if !rc.gotR || !rc.gotB {
		return nil
	}

	var next TMState
	switch {
	case rc.r.State == CBTrip && rc.b.State == CBTrip:
		next = StateTripped
	case rc.r.State == CBClose && rc.b.State == CBClose:
		next = StateClosed
	case rc.r.State == CBTrip && rc.b.State == CBClose:
		if rc.r.DTS >= rc.b.DTS {
			next = StateAttemptTrip
		} else {
			next = StateWaitClose
		}
	case rc.r.State == CBClose && rc.b.State == CBTrip:
		if rc.r.DTS >= rc.b.DTS {
			next = StateAttemptClose
		} else {
			next = StateWaitTrip
		}
	}

	// EnterOperational starts the appropriate sender for ATTEMPT_* states.
	return rc.rep.EnterOperational(next, rc.r, rc.b)
}
