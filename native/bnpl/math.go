package bnpl

import "flexcore/native/common"

// TotalDue computes principal plus the snapshot fee, failing closed on
// overflow.
func TotalDue(principal uint64, feeBps uint32) (uint64, error) {
	fee, err := common.ApplyBps(principal, feeBps)
	if err != nil {
		return 0, err
	}
	return common.CheckedAdd(principal, fee)
}

// SplitSchedule divides totalDue into count equal installments using floor
// division, folding the remainder into the final installment so the amounts
// sum exactly to totalDue.
func SplitSchedule(totalDue uint64, count uint8) []uint64 {
	if count == 0 {
		return nil
	}
	n := uint64(count)
	base := totalDue / n
	amounts := make([]uint64, count)
	for i := range amounts {
		amounts[i] = base
	}
	amounts[count-1] += totalDue % n
	return amounts
}
