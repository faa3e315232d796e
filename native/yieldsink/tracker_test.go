package yieldsink

import (
	"testing"

	"flexcore/core/state"
	"flexcore/storage"
)

func TestCreditYieldAccumulates(t *testing.T) {
	tracker := NewTracker()
	tracker.SetState(state.NewManager(storage.NewMemDB()))
	tracker.SetNowFunc(func() int64 { return 1_700_000_000 })
	owner := [20]byte{0x01}

	if err := tracker.CreditYield(owner, "USDC", 1_000, SourceCashback); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := tracker.CreditYield(owner, "USDC", 500, SourceCashback); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := tracker.CreditYield(owner, "USDC", 250, SourcePenalty); err != nil {
		t.Fatalf("credit: %v", err)
	}

	summary, ok, err := tracker.Get(owner, "USDC")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if summary.Total != 1_750 {
		t.Fatalf("total %d", summary.Total)
	}
	if summary.BySource[SourceCashback] != 1_500 || summary.BySource[SourcePenalty] != 250 {
		t.Fatalf("breakdown %+v", summary.BySource)
	}
}

func TestUnknownSourceRejected(t *testing.T) {
	tracker := NewTracker()
	tracker.SetState(state.NewManager(storage.NewMemDB()))
	if err := tracker.CreditYield([20]byte{0x02}, "USDC", 10, Source("airdrop")); err == nil {
		t.Fatalf("expected unknown source error")
	}
}

func TestMissingOwnerReadsEmpty(t *testing.T) {
	tracker := NewTracker()
	tracker.SetState(state.NewManager(storage.NewMemDB()))
	_, ok, err := tracker.Get([20]byte{0x03}, "USDC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected no summary")
	}
}
