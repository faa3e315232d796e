package bnpl

import (
	"errors"
	"testing"

	"flexcore/core/state"
	"flexcore/native/collateral"
	"flexcore/native/common"
	"flexcore/native/creditscore"
	"flexcore/native/yieldsink"
	"flexcore/storage"
)

var (
	testVault    = [20]byte{0x5A}
	testTreasury = [20]byte{0x7F}
	testOwner    = [20]byte{0x01}
	testMerchant = [20]byte{0x02}
)

type testEnv struct {
	manager    *state.Manager
	collateral *collateral.Engine
	scores     *creditscore.Engine
	yield      *yieldsink.Tracker
	contracts  *Manager
	processor  *Processor
	now        int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{now: 1_700_000_000}
	clock := func() int64 { return env.now }

	env.manager = state.NewManager(storage.NewMemDB())

	env.collateral = collateral.NewEngine(testVault, testTreasury, collateral.Params{
		MinDeposit:  10_000_000,
		MinLockDays: 7,
		MaxLockDays: 365,
	})
	env.collateral.SetState(env.manager)
	env.collateral.SetBank(env.manager)
	env.collateral.SetNowFunc(clock)

	env.scores = creditscore.NewEngine(creditscore.DefaultInitialScore, creditscore.DefaultRules())
	env.scores.SetState(env.manager)
	env.scores.SetNowFunc(clock)

	env.yield = yieldsink.NewTracker()
	env.yield.SetState(env.manager)
	env.yield.SetNowFunc(clock)

	env.contracts = NewManager(testTreasury, DefaultParams())
	env.contracts.SetState(env.manager)
	env.contracts.SetBank(env.manager)
	env.contracts.SetCollateral(env.collateral)
	env.contracts.SetScores(env.scores)
	env.contracts.SetNowFunc(clock)

	env.processor = NewProcessor(env.contracts)
	env.processor.SetYield(env.yield)

	// Treasury liquidity for fronting purchases.
	if err := env.manager.Credit(testTreasury, "USDC", 1_000_000_000); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	return env
}

// registerBorrower funds the owner, stakes collateral and initialises a score.
func (env *testEnv) registerBorrower(t *testing.T, funds, stake uint64) {
	t.Helper()
	if err := env.manager.Credit(testOwner, "USDC", funds); err != nil {
		t.Fatalf("fund owner: %v", err)
	}
	if _, err := env.collateral.Deposit(testOwner, "USDC", stake, 365); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := env.scores.Initialize(testOwner); err != nil {
		t.Fatalf("init score: %v", err)
	}
}

// standardOnly pins the fee table to the entry tier so fee math is explicit.
func standardOnly() *StaticResolver {
	return NewStaticResolver([]Snapshot{{
		Tier: "standard", FeeBps: 700, FeeBps12: 900,
		LimitMultiplierBps: 10_000, CashbackBps: 0, MinScore: 0,
		AllowedInstallments: []uint8{3, 4, 6, 12},
	}})
}

func TestCreateContractSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 100_000_000, 40_000_000)
	env.contracts.SetBenefits(standardOnly())

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if contract.TotalDue != 32_100_000 {
		t.Fatalf("total due %d", contract.TotalDue)
	}
	if len(contract.Installments) != 3 {
		t.Fatalf("installments %d", len(contract.Installments))
	}
	var sum uint64
	for k, inst := range contract.Installments {
		sum += inst.Amount
		if inst.Amount != 10_700_000 {
			t.Fatalf("installment %d amount %d", k, inst.Amount)
		}
		wantDue := env.now + int64(k+1)*30*common.SecondsPerDay
		if inst.DueAt != wantDue {
			t.Fatalf("installment %d due %d want %d", k, inst.DueAt, wantDue)
		}
		if inst.Status != InstallmentPending {
			t.Fatalf("installment %d status %v", k, inst.Status)
		}
	}
	if sum != contract.TotalDue {
		t.Fatalf("schedule sum %d != total due %d", sum, contract.TotalDue)
	}
	if contract.Status != ContractActive {
		t.Fatalf("status %v", contract.Status)
	}

	merchantBalance, err := env.manager.BalanceOf(testMerchant, "USDC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if merchantBalance != 30_000_000 {
		t.Fatalf("merchant fronted %d", merchantBalance)
	}

	rec, _, err := env.scores.Get(testOwner)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rec.TotalContracts != 1 {
		t.Fatalf("total contracts %d", rec.TotalContracts)
	}
}

func TestCreateContractValidation(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 100_000_000, 40_000_000)

	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 5, 30, []byte("n1")); !errors.Is(err, ErrInvalidInstallmentCount) {
		t.Fatalf("expected invalid count, got %v", err)
	}
	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 10, []byte("n1")); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected invalid interval, got %v", err)
	}
	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 0, 3, 30, []byte("n1")); !errors.Is(err, ErrZeroPrincipal) {
		t.Fatalf("expected zero principal, got %v", err)
	}
	// Score 500 resolves to silver (multiplier 1.0): limit is the staked 40.
	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 40_000_001, 3, 30, []byte("n1")); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}
	// Silver does not allow 18-installment schedules.
	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 18, 30, []byte("n1")); !errors.Is(err, ErrInvalidInstallmentCount) {
		t.Fatalf("expected tier count rejection, got %v", err)
	}
}

func TestCreateContractScoreGates(t *testing.T) {
	env := newTestEnv(t)
	// Staked but never registered with the score engine.
	if err := env.manager.Credit(testOwner, "USDC", 100_000_000); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := env.collateral.Deposit(testOwner, "USDC", 40_000_000, 365); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1")); !errors.Is(err, ErrScoreTooLow) {
		t.Fatalf("expected score gate for unregistered owner, got %v", err)
	}

	if _, err := env.scores.Initialize(testOwner); err != nil {
		t.Fatalf("init score: %v", err)
	}
	// A table whose only tier demands 700 rejects the fresh 500 score.
	env.contracts.SetBenefits(NewStaticResolver([]Snapshot{{
		Tier: "platinum", FeeBps: 300, FeeBps12: 400,
		LimitMultiplierBps: 15_000, MinScore: 700,
		AllowedInstallments: []uint8{3, 4, 6, 12, 18, 24, 36},
	}}))
	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1")); !errors.Is(err, ErrScoreTooLow) {
		t.Fatalf("expected score too low, got %v", err)
	}
}

func TestCreateContractIdempotentByID(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 100_000_000, 40_000_000)

	first, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if first.ID != second.ID || second.CreatedAt != first.CreatedAt {
		t.Fatalf("identical re-create should return stored contract")
	}
	// The merchant must not be fronted twice.
	merchantBalance, err := env.manager.BalanceOf(testMerchant, "USDC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if merchantBalance != 30_000_000 {
		t.Fatalf("merchant balance %d", merchantBalance)
	}

	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 20_000_000, 3, 30, []byte("n1")); !errors.Is(err, ErrContractExists) {
		t.Fatalf("expected id conflict, got %v", err)
	}
}

func TestLimitMultiplierExtendsCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 100_000_000, 40_000_000)
	// Boost the owner to platinum (multiplier 1.5).
	for i := 0; i < 40; i++ {
		if _, err := env.scores.Apply(testOwner, creditscore.ReasonOnTimePayment); err != nil {
			t.Fatalf("bump score: %v", err)
		}
	}
	score, _, err := env.scores.Score(testOwner)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 700 {
		t.Fatalf("score %d, want 700", score)
	}

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 60_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create at 1.5x limit: %v", err)
	}
	if contract.FeeBps != 300 {
		t.Fatalf("platinum fee %d", contract.FeeBps)
	}
	if _, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 60_000_001, 3, 30, []byte("n2")); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected limit rejection, got %v", err)
	}
}

func TestCancelContract(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 100_000_000, 40_000_000)

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.contracts.CancelContract(testMerchant, contract.ID); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	cancelled, err := env.contracts.CancelContract(testOwner, contract.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != ContractCancelled {
		t.Fatalf("status %v", cancelled.Status)
	}
	merchantBalance, err := env.manager.BalanceOf(testMerchant, "USDC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if merchantBalance != 0 {
		t.Fatalf("merchant kept fronted funds: %d", merchantBalance)
	}

	// Cancelling again is a no-op.
	again, err := env.contracts.CancelContract(testOwner, contract.ID)
	if err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	if again.Status != ContractCancelled {
		t.Fatalf("status %v", again.Status)
	}
	// Terminal: no payments accepted.
	if _, err := env.processor.PayInstallment(testOwner, contract.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected terminal rejection, got %v", err)
	}
}

func TestCancelBlockedAfterSettlement(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 200_000_000, 40_000_000)

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.processor.PayInstallment(testOwner, contract.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := env.contracts.CancelContract(testOwner, contract.ID); !errors.Is(err, ErrCancelNotAllowed) {
		t.Fatalf("expected cancel rejection, got %v", err)
	}
}

func TestGetUnknownContract(t *testing.T) {
	env := newTestEnv(t)
	_, ok, err := env.contracts.Get([32]byte{0xAA})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing contract")
	}
}
