package tm

// HandleShare processes an incoming TRIP_SHARE/CLOSE_SHARE frame from a
// peer, applying the §4.2 accept rule before handing it to the aggregator:
// a share is only live while this replica is itself pursuing the same
// target, and its dts must fall within the live window around cur_dts
// (this replica's own most recently published dts for that target) -
// neither stale nor far enough ahead that it cannot yet be reached by the
// ring. An invalid share never reaches StoreShare.
func (rep *Replica) HandleShare(senderID uint32, msgType MessageType, dts uint64, shareBytes []byte) error {
	if rep.scheme == nil {
		return nil // v2 deployment: no share aggregator to feed
	}

	target := msgType.CBStateOf()
	if !rep.senderActive || rep.senderTarget != target {
		rep.log.Debugf("replica %d: dropping share from replica %d: not pursuing %s", rep.params.ID, senderID, target)
		return nil
	}

	window := uint64(rep.params.SharesPerMsg) * rep.params.DTSStepMS()
	if dts < rep.curDTS {
		rep.log.Debugf("replica %d: dropping stale share from replica %d at dts=%d (cur_dts=%d)", rep.params.ID, senderID, dts, rep.curDTS)
		return nil
	}
	if dts-rep.curDTS >= window {
		rep.log.Debugf("replica %d: dropping far-future share from replica %d at dts=%d (cur_dts=%d)", rep.params.ID, senderID, dts, rep.curDTS)
		return nil
	}

	agg := rep.aggregatorFor(target)
	digest := Digest(StateVector{State: target, DTS: dts})

	if err := rep.scheme.VerifyPartial(digest, shareBytes); err != nil {
		rep.log.Debugf("replica %d: dropping invalid share from replica %d at dts=%d: %v", rep.params.ID, senderID, dts, err)
		return nil
	}
	if err := agg.StoreShare(int(senderID), dts, digest, shareBytes); err != nil {
		rep.log.Debugf("replica %d: storing share from replica %d at dts=%d: %v", rep.params.ID, senderID, dts, err)
		return nil
	}

	rep.tryCombine(target, agg, digest)
	return nil
}
