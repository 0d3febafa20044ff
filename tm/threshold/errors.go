package threshold

import "errors"

var (
	// ErrWrongDigest is returned by a bucket when a share for a known dts
	// arrives bearing a different state-vector digest than the one the
	// bucket already holds. The spec fixes a bucket's payload at creation
	// (first share wins); a mismatched later share cannot be folded in and
	// is rejected rather than silently dropped, so callers can log it as a
	// potential equivocation.
	ErrWrongDigest = errors.New("threshold: share digest does not match bucket")

	// ErrDuplicateIndex is returned when a second share from the same
	// contributor index arrives for a bucket that already has one. Only
	// the first is kept; duplicates are not an error condition for the
	// caller's control flow but are surfaced so it can be logged.
	ErrDuplicateIndex = errors.New("threshold: duplicate share index for this bucket")

	// ErrNoQuorum is returned by TryCombine when fewer than Quorum
	// shares are available, i.e. combination was attempted too
	// early.
	ErrNoQuorum = errors.New("threshold: insufficient shares for quorum")

	// ErrCombineFailed is returned by TryCombine when no quorum-sized
	// subset of the stored shares recombines into a signature that
	// verifies (bad shares slipped past partial verification, or an
	// internal interpolation error); the scheme's own error is not kept.
	ErrCombineFailed = errors.New("threshold: share recombination failed")
)
