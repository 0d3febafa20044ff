package tm

import (
	"fmt"
	"time"
)

// Default timing parameters (§5). These are design constants, centrally
// defined here exactly as §5 requires ("must be centrally defined").
const (
	DefaultSignedTimeout   = 5 * time.Second
	DefaultRecoveryTimeout = 5 * time.Second
	DefaultSharesPerMsg    = 2
)

// Params bundles the replica's static identity and protocol configuration,
// mirroring the teacher's tss.Parameters (tss/params.go): an immutable,
// validated bundle constructed once at startup and threaded through every
// component rather than read from scattered globals.
type Params struct {
	ID uint32 // replica identity, in [1, N]; breaker proxy uses N+1.
	N  int    // total replicas
	F  int    // Byzantine tolerance bound
	K  int    // extra tolerance parameter

	Mode Mode

	DTSInterval     time.Duration
	SignedTimeout   time.Duration
	RecoveryTimeout time.Duration
	SharesPerMsg    int
}

// NewParams validates N = 3F + 2K + 1 and the replica id range, then
// returns a Params with the §5 default timeouts. Validation failure here
// is the "misconfiguration" fatal-exit path of §6/§7.
func NewParams(id uint32, n, f, k int, mode Mode) (Params, error) {
	if n != 3*f+2*k+1 {
		return Params{}, fmt.Errorf("tm: invalid threshold design: N=%d must equal 3F+2K+1 (F=%d, K=%d gives %d)", n, f, k, 3*f+2*k+1)
	}
	if id < 1 || int(id) > n {
		return Params{}, fmt.Errorf("tm: replica id %d out of range [1, %d]", id, n)
	}
	return Params{
		ID:              id,
		N:               n,
		F:               f,
		K:               k,
		Mode:            mode,
		DTSInterval:     time.Duration(DTSInterval) * time.Millisecond,
		SignedTimeout:   DefaultSignedTimeout,
		RecoveryTimeout: DefaultRecoveryTimeout,
		SharesPerMsg:    DefaultSharesPerMsg,
	}, nil
}

// Quorum is the total number of shares required to combine a threshold
// signature: F+1 contributors, so F other shares plus the local one.
func (p Params) Quorum() int { return p.F + 1 }

// ProxyID is the breaker-side proxy's synthetic replica id, N+1 (§3).
func (p Params) ProxyID() uint32 { return uint32(p.N) + 1 }

// DTSStepMS is the dts grid step, in milliseconds, as a plain integer for
// arithmetic against StateVector.DTS/Header.DTS.
func (p Params) DTSStepMS() uint64 { return uint64(p.DTSInterval / time.Millisecond) }
