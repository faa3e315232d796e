package bnpl

import (
	"encoding/hex"
	"strconv"

	"flexcore/core/types"
)

const (
	EventTypeContractCreated       = "bnpl.contract.created"
	EventTypeContractCompleted     = "bnpl.contract.completed"
	EventTypeContractDefaulted     = "bnpl.contract.defaulted"
	EventTypeContractCancelled     = "bnpl.contract.cancelled"
	EventTypeInstallmentPaid       = "bnpl.installment.paid"
	EventTypeInstallmentLiquidated = "bnpl.installment.liquidated"
	EventTypeInstallmentDefaulted  = "bnpl.installment.defaulted"
)

func newContractEvent(eventType string, contract *Contract) *types.Event {
	attrs := make(map[string]string)
	if contract == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["contractId"] = hex.EncodeToString(contract.ID[:])
	attrs["owner"] = hex.EncodeToString(contract.Owner[:])
	attrs["merchant"] = hex.EncodeToString(contract.Merchant[:])
	attrs["asset"] = contract.Asset
	attrs["principal"] = strconv.FormatUint(contract.Principal, 10)
	attrs["totalDue"] = strconv.FormatUint(contract.TotalDue, 10)
	attrs["status"] = contract.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newInstallmentEvent(eventType string, contract *Contract, index int, amount uint64) *types.Event {
	evt := newContractEvent(eventType, contract)
	evt.Attributes["installment"] = strconv.Itoa(index)
	evt.Attributes["amount"] = strconv.FormatUint(amount, 10)
	return evt
}
