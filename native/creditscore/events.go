package creditscore

import (
	"encoding/hex"
	"strconv"

	"flexcore/core/types"
)

const (
	EventTypeScoreInitialized = "creditscore.initialized"
	EventTypeScoreAdjusted    = "creditscore.adjusted"
)

func newScoreEvent(eventType string, rec *Record, delta int16, reason DeltaReason) *types.Event {
	attrs := make(map[string]string)
	if rec == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["owner"] = hex.EncodeToString(rec.Owner[:])
	attrs["score"] = strconv.FormatUint(uint64(rec.Score), 10)
	if eventType == EventTypeScoreAdjusted {
		attrs["delta"] = strconv.FormatInt(int64(delta), 10)
		attrs["reason"] = reason.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
