package bnpl

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"flexcore/core/events"
	"flexcore/core/types"
	"flexcore/native/common"
	"flexcore/native/creditscore"
)

var (
	errNilState = errors.New("bnpl engine: state not configured")

	// ErrInvalidInstallmentCount marks schedule lengths outside the allowed set.
	ErrInvalidInstallmentCount = errors.New("bnpl engine: installment count not allowed")
	// ErrInvalidInterval marks interval days outside the configured bounds.
	ErrInvalidInterval = errors.New("bnpl engine: interval days out of range")
	// ErrScoreTooLow marks borrowers below their tier's minimum score.
	ErrScoreTooLow = errors.New("bnpl engine: credit score below tier minimum")
	// ErrInsufficientCollateral marks purchases exceeding the backed limit.
	ErrInsufficientCollateral = errors.New("bnpl engine: insufficient collateral for principal")
	// ErrContractNotFound marks operations against an unknown contract id.
	ErrContractNotFound = errors.New("bnpl engine: contract not found")
	// ErrContractExists marks id reuse with a different contract definition.
	ErrContractExists = errors.New("bnpl engine: contract id already bound to different terms")
	// ErrAlreadyCompleted marks mutations against a terminal contract.
	ErrAlreadyCompleted = errors.New("bnpl engine: contract already settled")
	// ErrCancelNotAllowed marks cancellation after settlement has started.
	ErrCancelNotAllowed = errors.New("bnpl engine: contract has settled installments")
	// ErrZeroPrincipal marks purchases without an amount.
	ErrZeroPrincipal = errors.New("bnpl engine: principal must be positive")
)

const moduleName = "bnpl"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type bank interface {
	BalanceOf(addr [20]byte, asset string) (uint64, error)
	Transfer(from, to [20]byte, asset string, amount uint64) error
}

// collateralSource is the slice of the collateral ledger the contract manager
// and repayment processor rely on.
type collateralSource interface {
	Available(owner [20]byte, asset string) (uint64, error)
	LiquidationDebit(owner [20]byte, asset string, amount uint64) (uint64, error)
}

// scoreKeeper is the slice of the credit score engine consulted at creation
// and driven by repayment outcomes.
type scoreKeeper interface {
	Score(owner [20]byte) (uint16, bool, error)
	Apply(owner [20]byte, reason creditscore.DeltaReason) (*creditscore.Record, error)
	NoteContractOpened(owner [20]byte) error
}

// Params bounds contract creation and the repayment state machine.
type Params struct {
	// AllowedInstallments is the protocol-wide enumerated set of schedule
	// lengths; tiers further restrict it.
	AllowedInstallments []uint8
	MinIntervalDays     uint32
	MaxIntervalDays     uint32
	GraceDays           uint32
	// PenaltyBps is applied on top of the installment amount when collateral
	// is liquidated.
	PenaltyBps uint32
}

// DefaultParams returns the protocol defaults.
func DefaultParams() Params {
	return Params{
		AllowedInstallments: []uint8{3, 4, 6, 12, 18, 24, 36},
		MinIntervalDays:     15,
		MaxIntervalDays:     90,
		GraceDays:           15,
		PenaltyBps:          1_000,
	}
}

func (p Params) allowsCount(count uint8) bool {
	for _, c := range p.AllowedInstallments {
		if c == count {
			return true
		}
	}
	return false
}

// Manager owns the contract lifecycle: creation against collateral and score
// gates, settlement bookkeeping, cancellation and reads. Repayment transitions
// run through the Processor, which calls back into RecordPayment.
type Manager struct {
	state      engineState
	bank       bank
	collateral collateralSource
	scores     scoreKeeper
	benefits   BenefitsResolver
	treasury   [20]byte
	params     Params
	auth       common.Authorizer
	pauses     common.PauseView
	emitter    events.Emitter
	nowFn      func() int64
}

// NewManager constructs a contract manager funded from the treasury account.
func NewManager(treasury [20]byte, params Params) *Manager {
	return &Manager{
		treasury: treasury,
		params:   params,
		benefits: DefaultResolver(),
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

func (m *Manager) SetState(state engineState) { m.state = state }

func (m *Manager) SetBank(b bank) { m.bank = b }

// SetCollateral wires the collateral ledger consulted for eligibility and
// debited on liquidation.
func (m *Manager) SetCollateral(c collateralSource) { m.collateral = c }

// SetScores wires the credit score engine.
func (m *Manager) SetScores(s scoreKeeper) { m.scores = s }

// SetBenefits overrides the tier resolver. Passing nil restores the default
// table.
func (m *Manager) SetBenefits(r BenefitsResolver) {
	if r == nil {
		m.benefits = DefaultResolver()
		return
	}
	m.benefits = r
}

func (m *Manager) SetAuthorizer(a common.Authorizer) {
	if m == nil {
		return
	}
	m.auth = a
}

func (m *Manager) SetPauses(p common.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func (m *Manager) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

func (m *Manager) now() int64 {
	if m == nil || m.nowFn == nil {
		return time.Now().Unix()
	}
	return m.nowFn()
}

func (m *Manager) emit(evt *types.Event) {
	if m == nil || m.emitter == nil || evt == nil {
		return
	}
	m.emitter.Emit(contractEvent{evt: evt})
}

type contractEvent struct {
	evt *types.Event
}

func (c contractEvent) EventType() string {
	if c.evt == nil {
		return ""
	}
	return c.evt.Type
}

func (c contractEvent) Event() *types.Event { return c.evt }

// ContractID derives the deterministic contract id from the parties and a
// caller-supplied nonce.
func ContractID(owner, merchant [20]byte, nonce []byte) [32]byte {
	var id [32]byte
	payload := make([]byte, 0, 40+len(nonce))
	payload = append(payload, owner[:]...)
	payload = append(payload, merchant[:]...)
	payload = append(payload, nonce...)
	copy(id[:], ethcrypto.Keccak256(payload))
	return id
}

func contractKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("bnpl/contract/%x", id))
}

type storedInstallment struct {
	Amount    uint64
	DueAt     uint64
	Status    uint8
	SettledAt uint64
}

type storedContract struct {
	ID           [32]byte
	Owner        [20]byte
	Merchant     [20]byte
	Asset        string
	Principal    uint64
	FeeBps       uint32
	TotalDue     uint64
	CashbackBps  uint32
	IntervalDays uint32
	Installments []storedInstallment
	PaidCount    uint32
	MissedCount  uint32
	Status       uint8
	CreatedAt    uint64
	UpdatedAt    uint64
}

func (m *Manager) loadContract(id [32]byte) (*Contract, bool, error) {
	if m == nil || m.state == nil {
		return nil, false, errNilState
	}
	var stored storedContract
	ok, err := m.state.KVGet(contractKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	contract := &Contract{
		ID:           stored.ID,
		Owner:        stored.Owner,
		Merchant:     stored.Merchant,
		Asset:        stored.Asset,
		Principal:    stored.Principal,
		FeeBps:       stored.FeeBps,
		TotalDue:     stored.TotalDue,
		CashbackBps:  stored.CashbackBps,
		IntervalDays: stored.IntervalDays,
		PaidCount:    stored.PaidCount,
		MissedCount:  stored.MissedCount,
		Status:       ContractStatus(stored.Status),
		CreatedAt:    int64(stored.CreatedAt),
		UpdatedAt:    int64(stored.UpdatedAt),
	}
	contract.Installments = make([]Installment, len(stored.Installments))
	for i, inst := range stored.Installments {
		contract.Installments[i] = Installment{
			Amount:    inst.Amount,
			DueAt:     int64(inst.DueAt),
			Status:    InstallmentStatus(inst.Status),
			SettledAt: int64(inst.SettledAt),
		}
	}
	return contract, true, nil
}

func (m *Manager) storeContract(contract *Contract) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	stored := storedContract{
		ID:           contract.ID,
		Owner:        contract.Owner,
		Merchant:     contract.Merchant,
		Asset:        contract.Asset,
		Principal:    contract.Principal,
		FeeBps:       contract.FeeBps,
		TotalDue:     contract.TotalDue,
		CashbackBps:  contract.CashbackBps,
		IntervalDays: contract.IntervalDays,
		PaidCount:    contract.PaidCount,
		MissedCount:  contract.MissedCount,
		Status:       uint8(contract.Status),
		CreatedAt:    uint64(contract.CreatedAt),
		UpdatedAt:    uint64(contract.UpdatedAt),
	}
	stored.Installments = make([]storedInstallment, len(contract.Installments))
	for i, inst := range contract.Installments {
		stored.Installments[i] = storedInstallment{
			Amount:    inst.Amount,
			DueAt:     uint64(inst.DueAt),
			Status:    uint8(inst.Status),
			SettledAt: uint64(inst.SettledAt),
		}
	}
	return m.state.KVPut(contractKey(contract.ID), &stored)
}

func sameDefinition(a *Contract, owner, merchant [20]byte, asset string, principal uint64, count uint8, intervalDays uint32) bool {
	return a.Owner == owner &&
		a.Merchant == merchant &&
		a.Asset == asset &&
		a.Principal == principal &&
		len(a.Installments) == int(count) &&
		a.IntervalDays == intervalDays
}

// CreateContract opens an installment purchase. The benefit tier is resolved
// from the owner's current score and snapshotted onto the contract; the
// treasury fronts the full principal to the merchant immediately, repayment is
// owed to the protocol. Re-creating an existing id with identical terms
// returns the stored contract unchanged.
func (m *Manager) CreateContract(owner, merchant [20]byte, asset string, principal uint64, installmentCount uint8, intervalDays uint32, nonce []byte) (*Contract, error) {
	if m == nil || m.state == nil || m.bank == nil || m.collateral == nil || m.scores == nil {
		return nil, errNilState
	}
	if err := common.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := common.RequireAuthorized(m.auth, owner); err != nil {
		return nil, err
	}
	if principal == 0 {
		return nil, ErrZeroPrincipal
	}
	if !m.params.allowsCount(installmentCount) {
		return nil, ErrInvalidInstallmentCount
	}
	if intervalDays < m.params.MinIntervalDays || intervalDays > m.params.MaxIntervalDays {
		return nil, ErrInvalidInterval
	}

	id := ContractID(owner, merchant, nonce)
	if existing, ok, err := m.loadContract(id); err != nil {
		return nil, err
	} else if ok {
		if sameDefinition(existing, owner, merchant, asset, principal, installmentCount, intervalDays) {
			return existing.Clone(), nil
		}
		return nil, ErrContractExists
	}

	score, registered, err := m.scores.Score(owner)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, ErrScoreTooLow
	}
	tier := m.benefits.ResolveBenefits(owner, score)
	if score < tier.MinScore {
		return nil, ErrScoreTooLow
	}
	if !tier.AllowsCount(installmentCount) {
		return nil, ErrInvalidInstallmentCount
	}

	staked, err := m.collateral.Available(owner, asset)
	if err != nil {
		return nil, err
	}
	limit, err := common.ApplyBps(staked, tier.LimitMultiplierBps)
	if err != nil {
		return nil, err
	}
	if principal > limit {
		return nil, ErrInsufficientCollateral
	}

	feeBps := tier.FeeForCount(installmentCount)
	totalDue, err := TotalDue(principal, feeBps)
	if err != nil {
		return nil, err
	}
	amounts := SplitSchedule(totalDue, installmentCount)

	now := m.now()
	contract := &Contract{
		ID:           id,
		Owner:        owner,
		Merchant:     merchant,
		Asset:        asset,
		Principal:    principal,
		FeeBps:       feeBps,
		TotalDue:     totalDue,
		CashbackBps:  tier.CashbackBps,
		IntervalDays: intervalDays,
		Status:       ContractActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	contract.Installments = make([]Installment, installmentCount)
	for k := range contract.Installments {
		contract.Installments[k] = Installment{
			Amount: amounts[k],
			DueAt:  now + int64(k+1)*int64(intervalDays)*common.SecondsPerDay,
			Status: InstallmentPending,
		}
	}

	if err := m.bank.Transfer(m.treasury, merchant, asset, principal); err != nil {
		return nil, err
	}
	if err := m.storeContract(contract); err != nil {
		return nil, err
	}
	if err := m.scores.NoteContractOpened(owner); err != nil {
		return nil, err
	}
	m.emit(newContractEvent(EventTypeContractCreated, contract))
	return contract.Clone(), nil
}

// settlement describes how an installment left Pending.
type settlement uint8

const (
	settledPaid settlement = iota
	settledLiquidated
	settledDefaulted
)

// recordSettlement transitions an installment, updates counters and resolves
// contract completion. It assumes the caller has already verified the
// installment is unsettled; the final re-check before commit keeps repeated
// calls idempotent.
func (m *Manager) recordSettlement(contract *Contract, index int, how settlement, now int64) error {
	if index < 0 || index >= len(contract.Installments) {
		return ErrContractNotFound
	}
	inst := &contract.Installments[index]
	if inst.Status.Settled() {
		return nil
	}
	inst.SettledAt = now
	switch how {
	case settledPaid:
		inst.Status = InstallmentPaid
		contract.PaidCount++
	case settledLiquidated:
		inst.Status = InstallmentLiquidated
		contract.MissedCount++
	case settledDefaulted:
		inst.Status = InstallmentDefaulted
		contract.MissedCount++
		contract.Status = ContractDefaulted
	}
	contract.UpdatedAt = now

	if contract.Status == ContractActive && contract.SettledCount() == len(contract.Installments) {
		contract.Status = ContractCompleted
		if _, err := m.scores.Apply(contract.Owner, creditscore.ReasonCompletion); err != nil {
			return err
		}
		m.emit(newContractEvent(EventTypeContractCompleted, contract))
	}
	if contract.Status == ContractDefaulted {
		m.emit(newContractEvent(EventTypeContractDefaulted, contract))
	}
	return m.storeContract(contract)
}

// CancelContract voids a contract before any installment has settled. Only the
// owner may cancel; the merchant returns the fronted principal to the
// treasury. Cancelled is terminal.
func (m *Manager) CancelContract(caller [20]byte, id [32]byte) (*Contract, error) {
	if m == nil || m.state == nil || m.bank == nil {
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
	if !bytes.Equal(caller[:], contract.Owner[:]) {
		return nil, common.ErrUnauthorized
	}
	if contract.Status.Terminal() {
		if contract.Status == ContractCancelled {
			return contract.Clone(), nil
		}
		return nil, ErrAlreadyCompleted
	}
	if contract.SettledCount() > 0 {
		return nil, ErrCancelNotAllowed
	}

	if err := m.bank.Transfer(contract.Merchant, m.treasury, contract.Asset, contract.Principal); err != nil {
		return nil, err
	}
	contract.Status = ContractCancelled
	contract.UpdatedAt = m.now()
	if err := m.storeContract(contract); err != nil {
		return nil, err
	}
	m.emit(newContractEvent(EventTypeContractCancelled, contract))
	return contract.Clone(), nil
}

// Get returns a read-only snapshot of the contract.
func (m *Manager) Get(id [32]byte) (*Contract, bool, error) {
	contract, ok, err := m.loadContract(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return contract.Clone(), true, nil
}
