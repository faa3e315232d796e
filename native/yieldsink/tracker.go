package yieldsink

import (
	"errors"
	"fmt"
	"time"
)

var errNilState = errors.New("yieldsink tracker: state not configured")

// Source labels where routed yield came from.
type Source string

const (
	SourceCashback Source = "cashback"
	SourcePenalty  Source = "penalty"
)

type trackerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Tracker accumulates yield routed to borrowers, keeping per-owner totals and
// a per-source breakdown. Amounts are minor units; it never moves funds itself.
type Tracker struct {
	state trackerState
	nowFn func() int64
}

// Summary is the read model returned for an owner.
type Summary struct {
	Owner     [20]byte
	Asset     string
	Total     uint64
	BySource  map[Source]uint64
	UpdatedAt int64
}

func NewTracker() *Tracker {
	return &Tracker{nowFn: func() int64 { return time.Now().Unix() }}
}

func (t *Tracker) SetState(state trackerState) { t.state = state }

func (t *Tracker) SetNowFunc(now func() int64) {
	if now == nil {
		t.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	t.nowFn = now
}

func trackerKey(owner [20]byte, asset string) []byte {
	return []byte(fmt.Sprintf("yieldsink/tracker/%x/%s", owner, asset))
}

type storedTracker struct {
	Total     uint64
	Cashback  uint64
	Penalty   uint64
	UpdatedAt uint64
}

// CreditYield records amount routed to the owner from the given source.
func (t *Tracker) CreditYield(owner [20]byte, asset string, amount uint64, source Source) error {
	if t == nil || t.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	var stored storedTracker
	if _, err := t.state.KVGet(trackerKey(owner, asset), &stored); err != nil {
		return err
	}
	stored.Total += amount
	switch source {
	case SourceCashback:
		stored.Cashback += amount
	case SourcePenalty:
		stored.Penalty += amount
	default:
		return fmt.Errorf("yieldsink tracker: unknown source %q", source)
	}
	stored.UpdatedAt = uint64(t.nowFn())
	return t.state.KVPut(trackerKey(owner, asset), &stored)
}

// Get returns the accumulated yield summary for the owner and asset.
func (t *Tracker) Get(owner [20]byte, asset string) (*Summary, bool, error) {
	if t == nil || t.state == nil {
		return nil, false, errNilState
	}
	var stored storedTracker
	ok, err := t.state.KVGet(trackerKey(owner, asset), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &Summary{
		Owner: owner,
		Asset: asset,
		Total: stored.Total,
		BySource: map[Source]uint64{
			SourceCashback: stored.Cashback,
			SourcePenalty:  stored.Penalty,
		},
		UpdatedAt: int64(stored.UpdatedAt),
	}, true, nil
}
