package scheduler

import "time"

// AlignedInterval produces successive absolute deadlines spaced period
// apart, starting from an initial deadline, without accumulating drift
// from the time spent executing each fired callback. Call Next once per
// firing to get the following deadline.
type AlignedInterval struct {
	period   time.Duration
	deadline int64 // unix nanos of the next scheduled firing
}

// NewAlignedInterval starts a drift-free interval whose first deadline is
// startUnixNano + period.
func NewAlignedInterval(startUnixNano int64, period time.Duration) *AlignedInterval {
	return &AlignedInterval{period: period, deadline: startUnixNano + int64(period)}
}

// Next returns the current deadline and advances to the next one.
func (a *AlignedInterval) Next() int64 {
	d := a.deadline
	a.deadline += int64(a.period)
	return d
}

// Reset re-anchors the interval to fire first at startUnixNano+period,
// discarding whatever deadline was previously pending. The replica's
// senders do not call it: each restart builds a fresh AlignedInterval.
func (a *AlignedInterval) Reset(startUnixNano int64, period time.Duration) {
	a.period = period
	a.deadline = startUnixNano + int64(period)
}
