package rpc

import (
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"

	"flexcore/native/bnpl"
	"flexcore/native/collateral"
	"flexcore/native/creditscore"
	"flexcore/native/yieldsink"
)

type positionResponse struct {
	Owner       string `json:"owner"`
	Asset       string `json:"asset"`
	Principal   uint64 `json:"principal"`
	LockedUntil int64  `json:"lockedUntil"`
	Status      string `json:"status"`
	UpdatedAt   int64  `json:"updatedAt"`
}

func newPositionResponse(pos *collateral.Position) positionResponse {
	status := "active"
	if pos.Status == collateral.PositionWithdrawn {
		status = "withdrawn"
	}
	return positionResponse{
		Owner:       "0x" + hex.EncodeToString(pos.Owner[:]),
		Asset:       pos.Asset,
		Principal:   pos.Principal,
		LockedUntil: pos.LockedUntil,
		Status:      status,
		UpdatedAt:   pos.UpdatedAt,
	}
}

type installmentResponse struct {
	Amount    uint64 `json:"amount"`
	DueAt     int64  `json:"dueAt"`
	Status    string `json:"status"`
	SettledAt int64  `json:"settledAt,omitempty"`
}

type contractResponse struct {
	ID           string                `json:"contractId"`
	Owner        string                `json:"owner"`
	Merchant     string                `json:"merchant"`
	Asset        string                `json:"asset"`
	Principal    uint64                `json:"principal"`
	FeeBps       uint32                `json:"feeBps"`
	TotalDue     uint64                `json:"totalDue"`
	CashbackBps  uint32                `json:"cashbackBps"`
	IntervalDays uint32                `json:"intervalDays"`
	Status       string                `json:"status"`
	PaidCount    uint32                `json:"paidCount"`
	MissedCount  uint32                `json:"missedCount"`
	CreatedAt    int64                 `json:"createdAt"`
	Installments []installmentResponse `json:"installments"`
}

func newContractResponse(contract *bnpl.Contract) contractResponse {
	resp := contractResponse{
		ID:           "0x" + hex.EncodeToString(contract.ID[:]),
		Owner:        "0x" + hex.EncodeToString(contract.Owner[:]),
		Merchant:     "0x" + hex.EncodeToString(contract.Merchant[:]),
		Asset:        contract.Asset,
		Principal:    contract.Principal,
		FeeBps:       contract.FeeBps,
		TotalDue:     contract.TotalDue,
		CashbackBps:  contract.CashbackBps,
		IntervalDays: contract.IntervalDays,
		Status:       contract.Status.String(),
		PaidCount:    contract.PaidCount,
		MissedCount:  contract.MissedCount,
		CreatedAt:    contract.CreatedAt,
	}
	resp.Installments = make([]installmentResponse, len(contract.Installments))
	for i, inst := range contract.Installments {
		resp.Installments[i] = installmentResponse{
			Amount:    inst.Amount,
			DueAt:     inst.DueAt,
			Status:    inst.Status.String(),
			SettledAt: inst.SettledAt,
		}
	}
	return resp
}

type scoreResponse struct {
	Owner          string `json:"owner"`
	Score          uint16 `json:"score"`
	OnTimeCount    uint32 `json:"onTimeCount"`
	LateCount      uint32 `json:"lateCount"`
	DefaultCount   uint32 `json:"defaultCount"`
	CompletedCount uint32 `json:"completedCount"`
	TotalContracts uint32 `json:"totalContracts"`
	UpdatedAt      int64  `json:"updatedAt"`
}

func newScoreResponse(rec *creditscore.Record) scoreResponse {
	return scoreResponse{
		Owner:          "0x" + hex.EncodeToString(rec.Owner[:]),
		Score:          rec.Score,
		OnTimeCount:    rec.OnTimeCount,
		LateCount:      rec.LateCount,
		DefaultCount:   rec.DefaultCount,
		CompletedCount: rec.CompletedCount,
		TotalContracts: rec.TotalContracts,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func (s *Server) handleCollateralDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner    string `json:"owner"`
		Asset    string `json:"asset"`
		Amount   uint64 `json:"amount"`
		LockDays uint32 `json:"lockDays"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	pos, err := s.collateral.Deposit(owner, s.assetOrDefault(params.Asset), params.Amount, params.LockDays)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newPositionResponse(pos))
}

func (s *Server) handleCollateralWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner  string `json:"owner"`
		Asset  string `json:"asset"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	pos, err := s.collateral.Withdraw(owner, s.assetOrDefault(params.Asset), params.Amount)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newPositionResponse(pos))
}

func (s *Server) handleCollateralGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner string `json:"owner"`
		Asset string `json:"asset"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	pos, ok, err := s.collateral.Get(owner, s.assetOrDefault(params.Asset))
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "position not found", nil)
		return
	}
	writeResult(w, req.ID, newPositionResponse(pos))
}

func (s *Server) handleCreateContract(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner            string `json:"owner"`
		Merchant         string `json:"merchant"`
		Asset            string `json:"asset"`
		Principal        uint64 `json:"principal"`
		InstallmentCount uint8  `json:"installmentCount"`
		IntervalDays     uint32 `json:"intervalDays"`
		Nonce            string `json:"nonce"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	merchant, err := parseAddress(params.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "merchant: "+err.Error(), nil)
		return
	}
	// A caller-supplied nonce makes retries idempotent; otherwise one is
	// minted per request.
	nonce := []byte(params.Nonce)
	if len(nonce) == 0 {
		id := uuid.New()
		nonce = id[:]
	}
	contract, err := s.contracts.CreateContract(owner, merchant, s.assetOrDefault(params.Asset), params.Principal, params.InstallmentCount, params.IntervalDays, nonce)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newContractResponse(contract))
}

func (s *Server) handlePayInstallment(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller     string `json:"caller"`
		ContractID string `json:"contractId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller: "+err.Error(), nil)
		return
	}
	id, err := parseContractID(params.ContractID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "contractId: "+err.Error(), nil)
		return
	}
	contract, err := s.processor.PayInstallment(caller, id)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newContractResponse(contract))
}

func (s *Server) handleCheckRepayment(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		ContractID string `json:"contractId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseContractID(params.ContractID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "contractId: "+err.Error(), nil)
		return
	}
	contract, err := s.processor.CheckRepayment(id)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newContractResponse(contract))
}

func (s *Server) handleCancelContract(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller     string `json:"caller"`
		ContractID string `json:"contractId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller: "+err.Error(), nil)
		return
	}
	id, err := parseContractID(params.ContractID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "contractId: "+err.Error(), nil)
		return
	}
	contract, err := s.contracts.CancelContract(caller, id)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newContractResponse(contract))
}

func (s *Server) handleGetContract(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		ContractID string `json:"contractId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseContractID(params.ContractID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "contractId: "+err.Error(), nil)
		return
	}
	contract, ok, err := s.contracts.Get(id)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "contract not found", nil)
		return
	}
	writeResult(w, req.ID, newContractResponse(contract))
}

func (s *Server) handleScoreInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	rec, err := s.scores.Initialize(owner)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newScoreResponse(rec))
}

func (s *Server) handleScoreApplyDelta(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner  string `json:"owner"`
		Delta  int16  `json:"delta"`
		Reason string `json:"reason"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	reason, ok := parseDeltaReason(params.Reason)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown reason "+params.Reason, nil)
		return
	}
	rec, err := s.scores.ApplyDelta(owner, params.Delta, reason)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newScoreResponse(rec))
}

func parseDeltaReason(value string) (creditscore.DeltaReason, bool) {
	switch value {
	case "on_time_payment":
		return creditscore.ReasonOnTimePayment, true
	case "late_recovered":
		return creditscore.ReasonLateRecovered, true
	case "completion":
		return creditscore.ReasonCompletion, true
	case "default":
		return creditscore.ReasonDefault, true
	default:
		return 0, false
	}
}

func (s *Server) handleScoreGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	rec, ok, err := s.scores.Get(owner)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "score record not found", nil)
		return
	}
	writeResult(w, req.ID, newScoreResponse(rec))
}

func (s *Server) handleYieldGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner string `json:"owner"`
		Asset string `json:"asset"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	summary, ok, err := s.yield.Get(owner, s.assetOrDefault(params.Asset))
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		summary = &yieldsink.Summary{Owner: owner, Asset: s.assetOrDefault(params.Asset), BySource: map[yieldsink.Source]uint64{}}
	}
	writeResult(w, req.ID, yieldResponse{
		Owner:    "0x" + hex.EncodeToString(summary.Owner[:]),
		Asset:    summary.Asset,
		Total:    summary.Total,
		Cashback: summary.BySource[yieldsink.SourceCashback],
		Penalty:  summary.BySource[yieldsink.SourcePenalty],
	})
}

type yieldResponse struct {
	Owner    string `json:"owner"`
	Asset    string `json:"asset"`
	Total    uint64 `json:"total"`
	Cashback uint64 `json:"cashback"`
	Penalty  uint64 `json:"penalty"`
}
