package collateral

import (
	"fmt"
	"strings"
)

// PositionStatus represents the lifecycle states of a collateral position.
type PositionStatus uint8

const (
	PositionActive PositionStatus = iota
	PositionWithdrawn
)

// Valid reports whether the status value is within the supported range.
func (s PositionStatus) Valid() bool {
	switch s {
	case PositionActive, PositionWithdrawn:
		return true
	default:
		return false
	}
}

// Position captures the custody record of locked funds backing credit for a
// single (owner, asset) pair. Amounts are uint64 minor units (6 decimals).
type Position struct {
	Owner       [20]byte
	Asset       string
	Principal   uint64
	LockedUntil int64
	CreatedAt   int64
	UpdatedAt   int64
	Status      PositionStatus
}

// Clone returns a copy of the position so callers can safely mutate it without
// affecting the stored instance.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Unlocked reports whether the lock period has elapsed at the supplied time.
func (p *Position) Unlocked(now int64) bool {
	if p == nil {
		return false
	}
	return now >= p.LockedUntil
}

// NormalizeAsset canonicalises an asset symbol to its uppercase form.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("collateral: asset symbol required")
	}
	return trimmed, nil
}
