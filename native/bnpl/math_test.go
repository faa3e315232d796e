package bnpl

import (
	"errors"
	"testing"

	"flexcore/native/common"
)

func TestTotalDueAppliesFee(t *testing.T) {
	total, err := TotalDue(30_000_000, 700)
	if err != nil {
		t.Fatalf("total due: %v", err)
	}
	if total != 32_100_000 {
		t.Fatalf("total %d, want 32100000", total)
	}
}

func TestTotalDueOverflowFailsClosed(t *testing.T) {
	if _, err := TotalDue(^uint64(0), 700); !errors.Is(err, common.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestSplitScheduleSumsExactly(t *testing.T) {
	cases := []struct {
		total uint64
		count uint8
	}{
		{32_100_000, 3},
		{100, 3},
		{1, 36},
		{999_999_999, 7},
	}
	for _, tc := range cases {
		amounts := SplitSchedule(tc.total, tc.count)
		if len(amounts) != int(tc.count) {
			t.Fatalf("len %d, want %d", len(amounts), tc.count)
		}
		var sum uint64
		for _, a := range amounts {
			sum += a
		}
		if sum != tc.total {
			t.Fatalf("sum %d, want %d", sum, tc.total)
		}
		// Remainder lands on the final installment only.
		for i := 0; i < len(amounts)-1; i++ {
			if amounts[i] != amounts[0] {
				t.Fatalf("non-final installments differ: %v", amounts)
			}
		}
	}
}

func TestSplitScheduleRemainder(t *testing.T) {
	amounts := SplitSchedule(100, 3)
	if amounts[0] != 33 || amounts[1] != 33 || amounts[2] != 34 {
		t.Fatalf("unexpected split %v", amounts)
	}
}
