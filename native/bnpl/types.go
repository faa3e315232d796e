package bnpl

// ContractStatus tracks the lifecycle of a BNPL contract. Completed, Defaulted
// and Cancelled are terminal.
type ContractStatus uint8

const (
	ContractActive ContractStatus = iota
	ContractCompleted
	ContractDefaulted
	ContractCancelled
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractActive, ContractCompleted, ContractDefaulted, ContractCancelled:
		return true
	default:
		return false
	}
}

func (s ContractStatus) String() string {
	switch s {
	case ContractActive:
		return "active"
	case ContractCompleted:
		return "completed"
	case ContractDefaulted:
		return "defaulted"
	case ContractCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the contract can no longer change.
func (s ContractStatus) Terminal() bool {
	return s != ContractActive
}

// InstallmentStatus tracks the state machine of a single installment.
// Paid, Liquidated and Defaulted are settled states; once an installment
// leaves Pending it never changes again.
type InstallmentStatus uint8

const (
	InstallmentPending InstallmentStatus = iota
	InstallmentPaid
	InstallmentLiquidated
	InstallmentDefaulted
)

func (s InstallmentStatus) String() string {
	switch s {
	case InstallmentPending:
		return "pending"
	case InstallmentPaid:
		return "paid"
	case InstallmentLiquidated:
		return "liquidated"
	case InstallmentDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Settled reports whether the installment has reached a terminal state.
func (s InstallmentStatus) Settled() bool {
	return s != InstallmentPending
}

// Installment is a single scheduled payment. Amounts are minor units.
type Installment struct {
	Amount    uint64
	DueAt     int64
	Status    InstallmentStatus
	SettledAt int64
}

// Contract is an installment purchase backed by staked collateral. The fee,
// cashback rate and schedule are snapshotted at creation and never change.
type Contract struct {
	ID           [32]byte
	Owner        [20]byte
	Merchant     [20]byte
	Asset        string
	Principal    uint64
	FeeBps       uint32
	TotalDue     uint64
	CashbackBps  uint32
	IntervalDays uint32
	Installments []Installment
	PaidCount    uint32
	MissedCount  uint32
	Status       ContractStatus
	CreatedAt    int64
	UpdatedAt    int64
}

// Clone deep-copies the contract including its schedule.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Installments = make([]Installment, len(c.Installments))
	copy(clone.Installments, c.Installments)
	return &clone
}

// NextPending returns the index of the first unsettled installment, or -1 if
// every installment has settled.
func (c *Contract) NextPending() int {
	if c == nil {
		return -1
	}
	for i := range c.Installments {
		if !c.Installments[i].Status.Settled() {
			return i
		}
	}
	return -1
}

// SettledCount returns how many installments have left Pending.
func (c *Contract) SettledCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for i := range c.Installments {
		if c.Installments[i].Status.Settled() {
			n++
		}
	}
	return n
}
