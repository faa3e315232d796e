package bnpl

import (
	"bytes"
	"errors"

	"flexcore/native/common"
	"flexcore/native/creditscore"
	"flexcore/native/yieldsink"
)

var (
	// ErrGracePeriodNotExpired marks liquidation attempts inside the grace
	// window.
	ErrGracePeriodNotExpired = errors.New("bnpl repayment: grace period not expired")
	// ErrPaymentWindowClosed marks direct payments after due date plus grace;
	// past that point liquidation is mandatory.
	ErrPaymentWindowClosed = errors.New("bnpl repayment: payment window closed, awaiting liquidation")
)

// yieldRouter receives reward and penalty amounts. One-way sink.
type yieldRouter interface {
	CreditYield(owner [20]byte, asset string, amount uint64, source yieldsink.Source) error
}

// Processor advances contracts through their due dates. Direct payments settle
// an installment as on-time while inside the grace window; after grace expiry
// any caller may trigger liquidation against the owner's collateral.
type Processor struct {
	mgr   *Manager
	yield yieldRouter
}

// NewProcessor wraps the contract manager with the repayment state machine.
func NewProcessor(mgr *Manager) *Processor {
	return &Processor{mgr: mgr}
}

// SetYield wires the reward sink. Without one, cashback and penalty routing
// are skipped.
func (p *Processor) SetYield(y yieldRouter) { p.yield = y }

func (p *Processor) graceSeconds() int64 {
	return int64(p.mgr.params.GraceDays) * common.SecondsPerDay
}

// PayInstallment settles the next pending installment directly from the
// owner's funds. Payments on or before due date, or within the grace window,
// count as on-time. A payment that completes the schedule also earns the
// completion bonus through RecordPayment.
func (p *Processor) PayInstallment(caller [20]byte, id [32]byte) (*Contract, error) {
	if p == nil || p.mgr == nil {
		return nil, errNilState
	}
	m := p.mgr
	if m.state == nil || m.bank == nil || m.scores == nil {
		return nil, errNilState
	}
	if err := common.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := common.RequireAuthorized(m.auth, caller); err != nil {
		return nil, err
	}
	contract, ok, err := m.loadContract(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrContractNotFound
	}
	if !bytes.Equal(caller[:], contract.Owner[:]) {
		return nil, common.ErrUnauthorized
	}
	if contract.Status.Terminal() {
		return nil, ErrAlreadyCompleted
	}
	index := contract.NextPending()
	if index < 0 {
		return nil, ErrAlreadyCompleted
	}
	inst := contract.Installments[index]
	now := m.now()
	if now > inst.DueAt+p.graceSeconds() {
		return nil, ErrPaymentWindowClosed
	}

	if err := m.bank.Transfer(contract.Owner, m.treasury, contract.Asset, inst.Amount); err != nil {
		return nil, err
	}
	if err := m.recordSettlement(contract, index, settledPaid, now); err != nil {
		return nil, err
	}
	if _, err := m.scores.Apply(contract.Owner, creditscore.ReasonOnTimePayment); err != nil {
		return nil, err
	}
	if p.yield != nil && contract.CashbackBps > 0 {
		cashback, err := common.ApplyBps(inst.Amount, contract.CashbackBps)
		if err != nil {
			return nil, err
		}
		if err := p.yield.CreditYield(contract.Owner, contract.Asset, cashback, yieldsink.SourceCashback); err != nil {
			return nil, err
		}
	}
	m.emit(newInstallmentEvent(EventTypeInstallmentPaid, contract, index, inst.Amount))
	return contract.Clone(), nil
}

// CheckRepayment resolves an overdue installment by force. Permissionless:
// any caller may invoke it once due date plus grace has passed. The owed
// amount is the installment plus the protocol penalty; a full recovery marks
// the installment Liquidated and still counts toward completion, a shortfall
// marks the contract Defaulted. Settled installments and terminal contracts
// report existing state without re-applying effects.
func (p *Processor) CheckRepayment(id [32]byte) (*Contract, error) {
	if p == nil || p.mgr == nil {
		return nil, errNilState
	}
	m := p.mgr
	if m.state == nil || m.collateral == nil || m.scores == nil {
		return nil, errNilState
	}
	if err := common.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	contract, ok, err := m.loadContract(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrContractNotFound
	}
	if contract.Status.Terminal() {
		return contract.Clone(), nil
	}
	index := contract.NextPending()
	if index < 0 {
		return contract.Clone(), nil
	}
	inst := contract.Installments[index]
	now := m.now()
	if now <= inst.DueAt+p.graceSeconds() {
		return nil, ErrGracePeriodNotExpired
	}

	penalty, err := common.ApplyBps(inst.Amount, m.params.PenaltyBps)
	if err != nil {
		return nil, err
	}
	owed, err := common.CheckedAdd(inst.Amount, penalty)
	if err != nil {
		return nil, err
	}

	recovered, err := m.collateral.LiquidationDebit(contract.Owner, contract.Asset, owed)
	if err != nil {
		return nil, err
	}

	if recovered == owed {
		if err := m.recordSettlement(contract, index, settledLiquidated, now); err != nil {
			return nil, err
		}
		if _, err := m.scores.Apply(contract.Owner, creditscore.ReasonLateRecovered); err != nil {
			return nil, err
		}
		if p.yield != nil && penalty > 0 {
			if err := p.yield.CreditYield(m.treasury, contract.Asset, penalty, yieldsink.SourcePenalty); err != nil {
				return nil, err
			}
		}
		m.emit(newInstallmentEvent(EventTypeInstallmentLiquidated, contract, index, owed))
		return contract.Clone(), nil
	}

	// Collateral exhausted: whatever was recovered stays debited, the
	// contract is terminally defaulted and never retried.
	if err := m.recordSettlement(contract, index, settledDefaulted, now); err != nil {
		return nil, err
	}
	if _, err := m.scores.Apply(contract.Owner, creditscore.ReasonDefault); err != nil {
		return nil, err
	}
	m.emit(newInstallmentEvent(EventTypeInstallmentDefaulted, contract, index, recovered))
	return contract.Clone(), nil
}
