package collateral

import (
	"encoding/hex"
	"strconv"

	"flexcore/core/types"
)

const (
	EventTypeCollateralDeposited  = "collateral.deposited"
	EventTypeCollateralWithdrawn  = "collateral.withdrawn"
	EventTypeCollateralLiquidated = "collateral.liquidationDebited"
)

func newPositionEvent(eventType string, pos *Position, amount uint64) *types.Event {
	attrs := make(map[string]string)
	if pos == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["owner"] = hex.EncodeToString(pos.Owner[:])
	attrs["asset"] = pos.Asset
	attrs["amount"] = strconv.FormatUint(amount, 10)
	attrs["principal"] = strconv.FormatUint(pos.Principal, 10)
	attrs["lockedUntil"] = strconv.FormatInt(pos.LockedUntil, 10)
	attrs["status"] = strconv.FormatUint(uint64(pos.Status), 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
