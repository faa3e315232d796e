package bnpl

import (
	"errors"
	"testing"

	"flexcore/native/common"
)

func TestPayInstallmentsToCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 200_000_000, 40_000_000)
	env.contracts.SetBenefits(standardOnly())

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		env.now = contract.CreatedAt + int64(i+1)*30*common.SecondsPerDay
		updated, err := env.processor.PayInstallment(testOwner, contract.ID)
		if err != nil {
			t.Fatalf("pay %d: %v", i, err)
		}
		if updated.Installments[i].Status != InstallmentPaid {
			t.Fatalf("installment %d status %v", i, updated.Installments[i].Status)
		}
		contract = updated
	}

	if contract.Status != ContractCompleted {
		t.Fatalf("status %v", contract.Status)
	}
	if contract.PaidCount != 3 || contract.MissedCount != 0 {
		t.Fatalf("counters paid=%d missed=%d", contract.PaidCount, contract.MissedCount)
	}

	rec, _, err := env.scores.Get(testOwner)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rec.Score != 535 {
		t.Fatalf("score %d, want 535", rec.Score)
	}
	if rec.OnTimeCount != 3 || rec.CompletedCount != 1 {
		t.Fatalf("counters %+v", rec)
	}

	// Further payments against the completed contract are rejected.
	if _, err := env.processor.PayInstallment(testOwner, contract.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	// CheckRepayment no-ops and reports the terminal state.
	settled, err := env.processor.CheckRepayment(contract.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if settled.Status != ContractCompleted {
		t.Fatalf("status %v", settled.Status)
	}
}

func TestLatePaymentInsideGraceCountsOnTime(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 200_000_000, 40_000_000)
	env.contracts.SetBenefits(standardOnly())

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Ten days past due, inside the 15-day grace window.
	env.now = contract.Installments[0].DueAt + 10*common.SecondsPerDay
	updated, err := env.processor.PayInstallment(testOwner, contract.ID)
	if err != nil {
		t.Fatalf("pay in grace: %v", err)
	}
	if updated.Installments[0].Status != InstallmentPaid {
		t.Fatalf("status %v", updated.Installments[0].Status)
	}
	rec, _, err := env.scores.Get(testOwner)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rec.Score != 505 || rec.OnTimeCount != 1 {
		t.Fatalf("grace payment not treated as on-time: %+v", rec)
	}
}

func TestPaymentWindowClosesAfterGrace(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 200_000_000, 40_000_000)

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.now = contract.Installments[0].DueAt + 16*common.SecondsPerDay
	if _, err := env.processor.PayInstallment(testOwner, contract.ID); !errors.Is(err, ErrPaymentWindowClosed) {
		t.Fatalf("expected closed window, got %v", err)
	}
}

func TestCheckRepaymentRespectsGrace(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 200_000_000, 40_000_000)

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Past due but still inside grace.
	env.now = contract.Installments[0].DueAt + 14*common.SecondsPerDay
	if _, err := env.processor.CheckRepayment(contract.ID); !errors.Is(err, ErrGracePeriodNotExpired) {
		t.Fatalf("expected grace error, got %v", err)
	}
}

func TestCheckRepaymentLiquidatesWithPenalty(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 200_000_000, 100_000_000)
	env.contracts.SetBenefits(standardOnly())

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 40_000_000, 4, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	installment := contract.Installments[1].Amount

	// Settle installment 1 on time, miss installment 2 past grace.
	env.now = contract.Installments[0].DueAt
	if _, err := env.processor.PayInstallment(testOwner, contract.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}
	env.now = contract.Installments[1].DueAt + 16*common.SecondsPerDay

	before, err := env.collateral.Available(testOwner, "USDC")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	updated, err := env.processor.CheckRepayment(contract.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if updated.Installments[1].Status != InstallmentLiquidated {
		t.Fatalf("status %v", updated.Installments[1].Status)
	}
	if updated.Status != ContractActive {
		t.Fatalf("contract should stay active, got %v", updated.Status)
	}
	if updated.MissedCount != 1 || updated.PaidCount != 1 {
		t.Fatalf("counters %+v", updated)
	}

	owed := installment + installment/10
	after, err := env.collateral.Available(testOwner, "USDC")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if before-after != owed {
		t.Fatalf("debited %d, want %d", before-after, owed)
	}

	rec, _, err := env.scores.Get(testOwner)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// +5 for the on-time payment, -20 for the liquidation recovery.
	if rec.Score != 485 {
		t.Fatalf("score %d, want 485", rec.Score)
	}
	if rec.LateCount != 1 {
		t.Fatalf("late count %d", rec.LateCount)
	}

	// The next installment is not yet past grace; a repeated check cannot
	// re-apply the liquidation.
	if _, err := env.processor.CheckRepayment(contract.ID); !errors.Is(err, ErrGracePeriodNotExpired) {
		t.Fatalf("expected grace error, got %v", err)
	}
}

func TestCheckRepaymentShortfallDefaults(t *testing.T) {
	env := newTestEnv(t)
	// Stake exactly the minimum; the penalty on each missed installment makes
	// the stake run out before the schedule does.
	env.registerBorrower(t, 100_000_000, 10_000_000)
	env.contracts.SetBenefits(standardOnly())

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 10_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The first two liquidations are fully covered.
	for i := 0; i < 2; i++ {
		env.now = contract.Installments[i].DueAt + 16*common.SecondsPerDay
		updated, err := env.processor.CheckRepayment(contract.ID)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if updated.Installments[i].Status != InstallmentLiquidated {
			t.Fatalf("installment %d status %v", i, updated.Installments[i].Status)
		}
	}

	// The third demand exceeds the remaining stake.
	env.now = contract.Installments[2].DueAt + 16*common.SecondsPerDay
	updated, err := env.processor.CheckRepayment(contract.ID)
	if err != nil {
		t.Fatalf("final check: %v", err)
	}
	if updated.Installments[2].Status != InstallmentDefaulted {
		t.Fatalf("status %v", updated.Installments[2].Status)
	}
	if updated.Status != ContractDefaulted {
		t.Fatalf("contract status %v", updated.Status)
	}
	if updated.MissedCount != 3 || updated.PaidCount != 0 {
		t.Fatalf("counters %+v", updated)
	}

	// The partial recovery stays debited: the position is exhausted.
	remaining, err := env.collateral.Available(testOwner, "USDC")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining collateral %d", remaining)
	}

	rec, _, err := env.scores.Get(testOwner)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rec.DefaultCount != 1 || rec.LateCount != 2 {
		t.Fatalf("counters %+v", rec)
	}
	// 500 - 20 - 20 (recoveries) - 50 (default).
	if rec.Score != 410 {
		t.Fatalf("score %d, want 410", rec.Score)
	}

	// Terminal: further checks no-op, further payments are rejected.
	again, err := env.processor.CheckRepayment(contract.ID)
	if err != nil {
		t.Fatalf("check 3: %v", err)
	}
	if again.Status != ContractDefaulted || again.MissedCount != updated.MissedCount {
		t.Fatalf("default state mutated on repeat check")
	}
	if _, err := env.processor.PayInstallment(testOwner, contract.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected terminal rejection, got %v", err)
	}
}

func TestCashbackRoutedToYieldSink(t *testing.T) {
	env := newTestEnv(t)
	env.registerBorrower(t, 200_000_000, 40_000_000)
	// Default table resolves score 500 to silver: 1% cashback.

	contract, err := env.contracts.CreateContract(testOwner, testMerchant, "USDC", 30_000_000, 3, 30, []byte("n1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if contract.CashbackBps != 100 {
		t.Fatalf("cashback bps %d", contract.CashbackBps)
	}
	if _, err := env.processor.PayInstallment(testOwner, contract.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}

	summary, ok, err := env.yield.Get(testOwner, "USDC")
	if err != nil || !ok {
		t.Fatalf("yield: ok=%v err=%v", ok, err)
	}
	want := contract.Installments[0].Amount / 100
	if summary.Total != want {
		t.Fatalf("yield total %d, want %d", summary.Total, want)
	}
}
