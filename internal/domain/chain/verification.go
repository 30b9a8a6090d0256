package chain

// Outcome classifies a verification attempt against the indexer.
type Outcome string

const (
	// OutcomeVerified means the indexer confirmed the claim.
	OutcomeVerified Outcome = "verified"
	// OutcomeRejected means the indexer answered and disproved the claim.
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnverified means the indexer could not answer; the claim is allowed by policy.
	OutcomeUnverified Outcome = "unverified"
)

// Verification is a fail-open check result. Only Rejected blocks a caller.
type Verification struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

func Verified() Verification {
	return Verification{Outcome: OutcomeVerified}
}

func Rejected(reason string) Verification {
	return Verification{Outcome: OutcomeRejected, Reason: reason}
}

func Unverified(reason string) Verification {
	return Verification{Outcome: OutcomeUnverified, Reason: reason}
}

// Allowed reports whether the caller may proceed.
func (v Verification) Allowed() bool {
	return v.Outcome != OutcomeRejected
}

// HeightCheck is the block height known at check time. When Known is false the
// indexer was unreachable and height-bounded items are treated as still valid.
type HeightCheck struct {
	Height int64
	Known  bool
}

// Expired reports whether expiresAt has passed. Unknown heights never expire.
func (h HeightCheck) Expired(expiresAt int64) bool {
	if !h.Known {
		return false
	}
	return h.Height > expiresAt
}
