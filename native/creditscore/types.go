package creditscore

// Score bounds enforced by the engine. Every mutation clamps into this range.
const (
	MinScore uint16 = 0
	MaxScore uint16 = 1000
	// DefaultInitialScore seeds newly registered borrowers.
	DefaultInitialScore uint16 = 500
)

// DeltaReason identifies the repayment outcome driving a score adjustment.
type DeltaReason uint8

const (
	ReasonOnTimePayment DeltaReason = iota
	ReasonLateRecovered
	ReasonCompletion
	ReasonDefault
)

// Valid reports whether the reason is one of the supported outcomes.
func (r DeltaReason) Valid() bool {
	switch r {
	case ReasonOnTimePayment, ReasonLateRecovered, ReasonCompletion, ReasonDefault:
		return true
	default:
		return false
	}
}

func (r DeltaReason) String() string {
	switch r {
	case ReasonOnTimePayment:
		return "on_time_payment"
	case ReasonLateRecovered:
		return "late_recovered"
	case ReasonCompletion:
		return "completion"
	case ReasonDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Record tracks a borrower's bounded score plus the behaviour counters used
// for analytics and tier decisions.
type Record struct {
	Owner          [20]byte
	Score          uint16
	OnTimeCount    uint32
	LateCount      uint32
	DefaultCount   uint32
	CompletedCount uint32
	TotalContracts uint32
	CreatedAt      int64
	UpdatedAt      int64
}

// Clone returns a copy so callers can mutate freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Rules holds the configurable score deltas applied per repayment outcome.
// Penalties are expressed as negative values.
type Rules struct {
	OnTimeBonus        int16
	LateRecoveredDelta int16
	CompletionBonus    int16
	DefaultPenalty     int16
}

// DefaultRules returns the protocol defaults.
func DefaultRules() Rules {
	return Rules{
		OnTimeBonus:        5,
		LateRecoveredDelta: -20,
		CompletionBonus:    20,
		DefaultPenalty:     -50,
	}
}

// DeltaFor resolves the signed delta for the given outcome.
func (r Rules) DeltaFor(reason DeltaReason) int16 {
	switch reason {
	case ReasonOnTimePayment:
		return r.OnTimeBonus
	case ReasonLateRecovered:
		return r.LateRecoveredDelta
	case ReasonCompletion:
		return r.CompletionBonus
	case ReasonDefault:
		return r.DefaultPenalty
	default:
		return 0
	}
}
