package collateral

import (
	"errors"
	"fmt"
	"time"

	"flexcore/core/events"
	"flexcore/core/types"
	"flexcore/native/common"
)

var (
	errNilState = errors.New("collateral engine: state not configured")

	// ErrBelowMinimumDeposit marks deposits under the protocol floor.
	ErrBelowMinimumDeposit = errors.New("collateral engine: deposit below protocol minimum")
	// ErrInvalidLockPeriod marks lock durations outside the configured bounds.
	ErrInvalidLockPeriod = errors.New("collateral engine: lock period out of range")
	// ErrStillLocked marks withdrawals attempted before the lock expires.
	ErrStillLocked = errors.New("collateral engine: position still locked")
	// ErrInsufficientBalance marks withdrawals exceeding the staked principal.
	ErrInsufficientBalance = errors.New("collateral engine: insufficient staked balance")
	// ErrPositionNotFound marks operations against a missing position.
	ErrPositionNotFound = errors.New("collateral engine: position not found")
)

const moduleName = "collateral"

// engineState abstracts the subset of state manager functionality required by
// the collateral ledger.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// bank moves custody balances between accounts. Implemented by the state
// manager; transfers never partially commit.
type bank interface {
	BalanceOf(addr [20]byte, asset string) (uint64, error)
	Transfer(from, to [20]byte, asset string, amount uint64) error
}

// Params groups the governance controlled limits for collateral custody.
type Params struct {
	// MinDeposit is the protocol floor for a single deposit, in minor units.
	MinDeposit uint64
	// MinLockDays and MaxLockDays bound the caller-supplied lock period.
	MinLockDays uint32
	MaxLockDays uint32
}

// Engine owns locked collateral balances per (owner, asset). Deposits move
// funds into the module vault; liquidation debits route to the treasury.
type Engine struct {
	state    engineState
	bank     bank
	vault    [20]byte
	treasury [20]byte
	params   Params
	auth     common.Authorizer
	pauses   common.PauseView
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine constructs a collateral engine configured with the custody vault
// and liquidation treasury addresses.
func NewEngine(vault, treasury [20]byte, params Params) *Engine {
	return &Engine{
		vault:    vault,
		treasury: treasury,
		params:   params,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank wires the custody balance mover.
func (e *Engine) SetBank(b bank) { e.bank = b }

// SetAuthorizer configures the external allow-list capability consulted on
// owner-initiated operations.
func (e *Engine) SetAuthorizer(a common.Authorizer) {
	if e == nil {
		return
	}
	e.auth = a
}

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. The host wires the
// shared ledger clock here so lock comparisons stay consistent across callers.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(collateralEvent{evt: evt})
}

type collateralEvent struct {
	evt *types.Event
}

func (c collateralEvent) EventType() string {
	if c.evt == nil {
		return ""
	}
	return c.evt.Type
}

func (c collateralEvent) Event() *types.Event { return c.evt }

func positionKey(owner [20]byte, asset string) []byte {
	return []byte(fmt.Sprintf("collateral/position/%x/%s", owner, asset))
}

type storedPosition struct {
	Owner       [20]byte
	Asset       string
	Principal   uint64
	LockedUntil uint64
	CreatedAt   uint64
	UpdatedAt   uint64
	Status      uint8
}

func (e *Engine) loadPosition(owner [20]byte, asset string) (*Position, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var stored storedPosition
	ok, err := e.state.KVGet(positionKey(owner, asset), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	pos := &Position{
		Owner:       stored.Owner,
		Asset:       stored.Asset,
		Principal:   stored.Principal,
		LockedUntil: int64(stored.LockedUntil),
		CreatedAt:   int64(stored.CreatedAt),
		UpdatedAt:   int64(stored.UpdatedAt),
		Status:      PositionStatus(stored.Status),
	}
	return pos, true, nil
}

func (e *Engine) storePosition(pos *Position) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	stored := storedPosition{
		Owner:       pos.Owner,
		Asset:       pos.Asset,
		Principal:   pos.Principal,
		LockedUntil: uint64(pos.LockedUntil),
		CreatedAt:   uint64(pos.CreatedAt),
		UpdatedAt:   uint64(pos.UpdatedAt),
		Status:      uint8(pos.Status),
	}
	return e.state.KVPut(positionKey(pos.Owner, pos.Asset), &stored)
}

// Deposit increases the staked principal and extends the lock. Re-staking may
// extend but never shorten the lock period, keeping locked_until monotonic for
// active positions. Funds move from the owner into the module vault.
func (e *Engine) Deposit(owner [20]byte, asset string, amount uint64, lockDays uint32) (*Position, error) {
	if e == nil || e.state == nil || e.bank == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := common.RequireAuthorized(e.auth, owner); err != nil {
		return nil, err
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if amount < e.params.MinDeposit {
		return nil, ErrBelowMinimumDeposit
	}
	if lockDays < e.params.MinLockDays || lockDays > e.params.MaxLockDays {
		return nil, ErrInvalidLockPeriod
	}

	now := e.now()
	lockedUntil := now + int64(lockDays)*common.SecondsPerDay

	pos, ok, err := e.loadPosition(owner, normalized)
	if err != nil {
		return nil, err
	}
	if !ok || pos.Status == PositionWithdrawn {
		pos = &Position{
			Owner:     owner,
			Asset:     normalized,
			CreatedAt: now,
			Status:    PositionActive,
		}
	}
	principal, err := common.CheckedAdd(pos.Principal, amount)
	if err != nil {
		return nil, err
	}

	if err := e.bank.Transfer(owner, e.vault, normalized, amount); err != nil {
		return nil, err
	}

	pos.Principal = principal
	if lockedUntil > pos.LockedUntil {
		pos.LockedUntil = lockedUntil
	}
	pos.UpdatedAt = now
	if err := e.storePosition(pos); err != nil {
		return nil, err
	}
	e.emit(newPositionEvent(EventTypeCollateralDeposited, pos, amount))
	return pos.Clone(), nil
}

// Withdraw releases staked funds back to the owner once the lock has elapsed.
// A withdrawal that drains the principal zeroes the position.
func (e *Engine) Withdraw(owner [20]byte, asset string, amount uint64) (*Position, error) {
	if e == nil || e.state == nil || e.bank == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := common.RequireAuthorized(e.auth, owner); err != nil {
		return nil, err
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	pos, ok, err := e.loadPosition(owner, normalized)
	if err != nil {
		return nil, err
	}
	if !ok || pos.Status != PositionActive {
		return nil, ErrPositionNotFound
	}
	now := e.now()
	if now < pos.LockedUntil {
		return nil, ErrStillLocked
	}
	if amount > pos.Principal {
		return nil, ErrInsufficientBalance
	}

	if err := e.bank.Transfer(e.vault, owner, normalized, amount); err != nil {
		return nil, err
	}

	pos.Principal -= amount
	pos.UpdatedAt = now
	if pos.Principal == 0 {
		pos.Status = PositionWithdrawn
		pos.LockedUntil = 0
	}
	if err := e.storePosition(pos); err != nil {
		return nil, err
	}
	e.emit(newPositionEvent(EventTypeCollateralWithdrawn, pos, amount))
	return pos.Clone(), nil
}

// LiquidationDebit forcibly reduces the staked principal to cover a missed
// installment, ignoring the lock. It returns the amount actually debited,
// min(amount, principal); a shortfall signals the caller that the position is
// exhausted. Privileged: only the repayment processor may invoke it, the RPC
// surface never exposes it directly.
func (e *Engine) LiquidationDebit(owner [20]byte, asset string, amount uint64) (uint64, error) {
	if e == nil || e.state == nil || e.bank == nil {
		return 0, errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return 0, err
	}
	pos, ok, err := e.loadPosition(owner, normalized)
	if err != nil {
		return 0, err
	}
	if !ok || pos.Status != PositionActive {
		return 0, nil
	}
	debited := amount
	if debited > pos.Principal {
		debited = pos.Principal
	}
	if debited == 0 {
		return 0, nil
	}

	if err := e.bank.Transfer(e.vault, e.treasury, normalized, debited); err != nil {
		return 0, err
	}

	pos.Principal -= debited
	pos.UpdatedAt = e.now()
	if err := e.storePosition(pos); err != nil {
		return 0, err
	}
	e.emit(newPositionEvent(EventTypeCollateralLiquidated, pos, debited))
	return debited, nil
}

// Get returns a read-only snapshot of the position for the (owner, asset) pair.
func (e *Engine) Get(owner [20]byte, asset string) (*Position, bool, error) {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, false, err
	}
	pos, ok, err := e.loadPosition(owner, normalized)
	if err != nil || !ok {
		return nil, ok, err
	}
	return pos.Clone(), true, nil
}

// Available reports the principal eligible to back new credit. Withdrawn
// positions contribute nothing.
func (e *Engine) Available(owner [20]byte, asset string) (uint64, error) {
	pos, ok, err := e.Get(owner, asset)
	if err != nil {
		return 0, err
	}
	if !ok || pos.Status != PositionActive {
		return 0, nil
	}
	return pos.Principal, nil
}
