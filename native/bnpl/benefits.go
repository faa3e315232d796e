package bnpl

// Snapshot is the benefit bundle resolved for a borrower at contract creation.
// Later tier changes never retroactively alter existing contracts: the manager
// copies the relevant fields onto the contract when it opens.
type Snapshot struct {
	Tier                string
	FeeBps              uint32
	FeeBps12            uint32
	LimitMultiplierBps  uint32
	CashbackBps         uint32
	MinScore            uint16
	AllowedInstallments []uint8
}

// FeeForCount returns the fee rate for the given schedule length. Long
// schedules (12 installments and up) carry their own rate.
func (s Snapshot) FeeForCount(count uint8) uint32 {
	if count >= 12 {
		return s.FeeBps12
	}
	return s.FeeBps
}

// AllowsCount reports whether the tier permits the schedule length.
func (s Snapshot) AllowsCount(count uint8) bool {
	for _, c := range s.AllowedInstallments {
		if c == count {
			return true
		}
	}
	return false
}

// BenefitsResolver maps a borrower and their current score to a benefit
// snapshot. The tier table itself is administered outside the core.
type BenefitsResolver interface {
	ResolveBenefits(owner [20]byte, score uint16) Snapshot
}

// StaticResolver resolves tiers purely from the score against a fixed table,
// ordered from highest minimum score to lowest.
type StaticResolver struct {
	tiers []Snapshot
}

// NewStaticResolver builds a resolver over the supplied tiers. Tiers must be
// sorted by descending MinScore; the last tier acts as the floor.
func NewStaticResolver(tiers []Snapshot) *StaticResolver {
	return &StaticResolver{tiers: tiers}
}

// DefaultResolver returns the protocol's card tier table.
func DefaultResolver() *StaticResolver {
	return NewStaticResolver([]Snapshot{
		{
			Tier: "platinum", FeeBps: 300, FeeBps12: 400,
			LimitMultiplierBps: 15_000, CashbackBps: 300, MinScore: 700,
			AllowedInstallments: []uint8{3, 4, 6, 12, 18, 24, 36},
		},
		{
			Tier: "gold", FeeBps: 350, FeeBps12: 500,
			LimitMultiplierBps: 12_500, CashbackBps: 200, MinScore: 550,
			AllowedInstallments: []uint8{3, 4, 6, 12, 18, 24},
		},
		{
			Tier: "silver", FeeBps: 400, FeeBps12: 600,
			LimitMultiplierBps: 10_000, CashbackBps: 100, MinScore: 400,
			AllowedInstallments: []uint8{3, 4, 6, 12},
		},
		{
			Tier: "standard", FeeBps: 700, FeeBps12: 900,
			LimitMultiplierBps: 10_000, CashbackBps: 0, MinScore: 0,
			AllowedInstallments: []uint8{3, 4, 6},
		},
	})
}

// ResolveBenefits picks the highest tier whose minimum score the borrower
// meets.
func (r *StaticResolver) ResolveBenefits(_ [20]byte, score uint16) Snapshot {
	for _, tier := range r.tiers {
		if score >= tier.MinScore {
			return tier
		}
	}
	if len(r.tiers) == 0 {
		return Snapshot{}
	}
	return r.tiers[len(r.tiers)-1]
}
