package threshold

// Slot holds the shares collected for one dts value: the digest they must
// all sign over, which replica indices have contributed, and their raw
// share bytes. Zero value is an empty slot bound to no dts.
type Slot struct {
	bound   bool
	dts     uint64
	digest  []byte
	recvd   []bool
	shares  [][]byte
	count   int
}

func newSlot(n int) *Slot {
	return &Slot{recvd: make([]bool, n), shares: make([][]byte, n)}
}

// rebind resets the slot to a fresh dts/digest, discarding whatever shares
// it held for the dts it is displacing. This mirrors the ring eviction in
// the original share store: a slot is reused for a new dts once that dts
// enters the SharesPerMsg-wide live window.
func (s *Slot) rebind(dts uint64, digest []byte) {
	s.bound = true
	s.dts = dts
	s.digest = digest
	s.count = 0
	for i := range s.recvd {
		s.recvd[i] = false
		s.shares[i] = nil
	}
}

// Ring is the fixed-size, dts-indexed ring buffer of Slots used to collect
// threshold shares for one message category (trip or close), sized to
// SharesPerMsg live slots per §4.2 ("slots for the current and next
// SharesPerMsg-1 dts values").
type Ring struct {
	n      int // replica count, for recvd bitmap sizing
	period int // SharesPerMsg
	slots  []*Slot
}

// NewRing allocates a ring with period live slots over an n-replica
// membership.
func NewRing(n, period int) *Ring {
	r := &Ring{n: n, period: period, slots: make([]*Slot, period)}
	for i := range r.slots {
		r.slots[i] = newSlot(n)
	}
	return r
}

func (r *Ring) index(dts uint64) int {
	return int((dts / DTSIntervalMS) % uint64(r.period))
}

// DTSIntervalMS mirrors tm.DTSInterval without importing the parent package,
// keeping threshold free of a dependency cycle; both values must agree, and
// nothing checks this at run time.
const DTSIntervalMS = 100

// Bind returns the slot for dts, rebinding it to dts/digest if it currently
// holds a different dts (older or newer) or is unbound. It is a no-op, returning the
// existing slot unchanged, if the slot is already bound to dts — callers
// must pass the same digest every time for a given dts, which the
// aggregator's accept-rule enforces.
func (r *Ring) Bind(dts uint64, digest []byte) *Slot {
	s := r.slots[r.index(dts)]
	if !s.bound || s.dts != dts {
		s.rebind(dts, digest)
	}
	return s
}

// Lookup returns the slot currently occupying dts's ring position without
// binding it, or nil if no slot maps there. Use Slot.dts to confirm it
// actually holds dts rather than some other value sharing the same ring
// index.
func (r *Ring) Lookup(dts uint64) *Slot {
	return r.slots[r.index(dts)]
}
