package creditscore

import (
	"errors"
	"fmt"
	"time"

	"flexcore/core/events"
	"flexcore/core/types"
	"flexcore/native/common"
)

var (
	errNilState = errors.New("creditscore engine: state not configured")

	// ErrAlreadyInitialized marks duplicate registration for the same owner.
	ErrAlreadyInitialized = errors.New("creditscore engine: record already initialized")
	// ErrRecordNotFound marks score operations against an unregistered owner.
	ErrRecordNotFound = errors.New("creditscore engine: record not found")
	// ErrInvalidReason marks deltas with an unrecognised outcome.
	ErrInvalidReason = errors.New("creditscore engine: invalid delta reason")
)

const moduleName = "creditscore"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine maintains bounded borrower scores. Scores only move through
// ApplyDelta with a declared reason, which also advances the matching
// behaviour counter, so score and counters cannot drift apart.
type Engine struct {
	state   engineState
	rules   Rules
	initial uint16
	pauses  common.PauseView
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a score engine seeded with the supplied initial score
// and delta rules.
func NewEngine(initial uint16, rules Rules) *Engine {
	if initial > MaxScore {
		initial = MaxScore
	}
	return &Engine{
		rules:   rules,
		initial: initial,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(scoreEvent{evt: evt})
}

type scoreEvent struct {
	evt *types.Event
}

func (s scoreEvent) EventType() string {
	if s.evt == nil {
		return ""
	}
	return s.evt.Type
}

func (s scoreEvent) Event() *types.Event { return s.evt }

func recordKey(owner [20]byte) []byte {
	return []byte(fmt.Sprintf("creditscore/record/%x", owner))
}

type storedRecord struct {
	Owner          [20]byte
	Score          uint16
	OnTimeCount    uint32
	LateCount      uint32
	DefaultCount   uint32
	CompletedCount uint32
	TotalContracts uint32
	CreatedAt      uint64
	UpdatedAt      uint64
}

func (e *Engine) loadRecord(owner [20]byte) (*Record, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var stored storedRecord
	ok, err := e.state.KVGet(recordKey(owner), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	rec := &Record{
		Owner:          stored.Owner,
		Score:          stored.Score,
		OnTimeCount:    stored.OnTimeCount,
		LateCount:      stored.LateCount,
		DefaultCount:   stored.DefaultCount,
		CompletedCount: stored.CompletedCount,
		TotalContracts: stored.TotalContracts,
		CreatedAt:      int64(stored.CreatedAt),
		UpdatedAt:      int64(stored.UpdatedAt),
	}
	return rec, true, nil
}

func (e *Engine) storeRecord(rec *Record) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	stored := storedRecord{
		Owner:          rec.Owner,
		Score:          rec.Score,
		OnTimeCount:    rec.OnTimeCount,
		LateCount:      rec.LateCount,
		DefaultCount:   rec.DefaultCount,
		CompletedCount: rec.CompletedCount,
		TotalContracts: rec.TotalContracts,
		CreatedAt:      uint64(rec.CreatedAt),
		UpdatedAt:      uint64(rec.UpdatedAt),
	}
	return e.state.KVPut(recordKey(rec.Owner), &stored)
}

// Initialize registers a new borrower at the configured initial score. A
// second call for the same owner fails rather than resetting history.
func (e *Engine) Initialize(owner [20]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	_, ok, err := e.loadRecord(owner)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyInitialized
	}
	now := e.now()
	rec := &Record{
		Owner:     owner,
		Score:     e.initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.storeRecord(rec); err != nil {
		return nil, err
	}
	e.emit(newScoreEvent(EventTypeScoreInitialized, rec, 0, ReasonOnTimePayment))
	return rec.Clone(), nil
}

// Apply adjusts the score by the configured delta for the declared outcome.
// This is the path used by the repayment flow; the rules carry the protocol
// policy constants.
func (e *Engine) Apply(owner [20]byte, reason DeltaReason) (*Record, error) {
	if e == nil {
		return nil, errNilState
	}
	return e.ApplyDelta(owner, e.rules.DeltaFor(reason), reason)
}

// ApplyDelta adds the signed delta to the score, clamping into
// [MinScore, MaxScore], and bumps the counter matching the reason. Deltas are
// never applied partially.
func (e *Engine) ApplyDelta(owner [20]byte, delta int16, reason DeltaReason) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !reason.Valid() {
		return nil, ErrInvalidReason
	}
	rec, ok, err := e.loadRecord(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordNotFound
	}

	rec.Score = clampScore(int32(rec.Score) + int32(delta))
	switch reason {
	case ReasonOnTimePayment:
		rec.OnTimeCount++
	case ReasonLateRecovered:
		rec.LateCount++
	case ReasonCompletion:
		rec.CompletedCount++
	case ReasonDefault:
		rec.DefaultCount++
	}
	rec.UpdatedAt = e.now()
	if err := e.storeRecord(rec); err != nil {
		return nil, err
	}
	e.emit(newScoreEvent(EventTypeScoreAdjusted, rec, delta, reason))
	return rec.Clone(), nil
}

// NoteContractOpened bumps the lifetime contract counter for the owner.
func (e *Engine) NoteContractOpened(owner [20]byte) error {
	rec, ok, err := e.loadRecord(owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecordNotFound
	}
	rec.TotalContracts++
	rec.UpdatedAt = e.now()
	return e.storeRecord(rec)
}

// Get returns a read-only snapshot of the record for the owner.
func (e *Engine) Get(owner [20]byte) (*Record, bool, error) {
	rec, ok, err := e.loadRecord(owner)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.Clone(), true, nil
}

// Score returns the current score, or the zero value when the owner is not
// registered.
func (e *Engine) Score(owner [20]byte) (uint16, bool, error) {
	rec, ok, err := e.loadRecord(owner)
	if err != nil || !ok {
		return 0, ok, err
	}
	return rec.Score, true, nil
}

func clampScore(v int32) uint16 {
	if v < int32(MinScore) {
		return MinScore
	}
	if v > int32(MaxScore) {
		return MaxScore
	}
	return uint16(v)
}
