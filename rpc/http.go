package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"flexcore/native/bnpl"
	"flexcore/native/collateral"
	"flexcore/native/common"
	"flexcore/native/creditscore"
	"flexcore/native/yieldsink"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeServerError    = -32000
)

// Server exposes the ledger engines over a JSON-RPC 2.0 endpoint.
type Server struct {
	collateral *collateral.Engine
	contracts  *bnpl.Manager
	processor  *bnpl.Processor
	scores     *creditscore.Engine
	yield      *yieldsink.Tracker

	asset     string
	authToken string
	logger    *slog.Logger
}

// ServerConfig wires the engines and transport policy into the RPC server.
type ServerConfig struct {
	Collateral *collateral.Engine
	Contracts  *bnpl.Manager
	Processor  *bnpl.Processor
	Scores     *creditscore.Engine
	Yield      *yieldsink.Tracker

	// DefaultAsset is used when a request omits the asset symbol.
	DefaultAsset string
	// AuthToken guards privileged methods; empty disables them.
	AuthToken string
	Logger    *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		collateral: cfg.Collateral,
		contracts:  cfg.Contracts,
		processor:  cfg.Processor,
		scores:     cfg.Scores,
		yield:      cfg.Yield,
		asset:      cfg.DefaultAsset,
		authToken:  strings.TrimSpace(cfg.AuthToken),
		logger:     logger,
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint, health and
// metrics.
func (s *Server) Router(obs *Observability, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	if obs != nil {
		r.With(obs.Middleware("rpc")).Post("/", s.handle)
		r.Handle("/metrics", obs.MetricsHandler())
	} else {
		r.Post("/", s.handle)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// requestID tags every request with a correlation id for log stitching.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	req := &RPCRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "collateral_deposit":
		s.handleCollateralDeposit(w, req)
	case "collateral_withdraw":
		s.handleCollateralWithdraw(w, req)
	case "collateral_get":
		s.handleCollateralGet(w, req)
	case "bnpl_createContract":
		s.handleCreateContract(w, req)
	case "bnpl_payInstallment":
		s.handlePayInstallment(w, req)
	case "bnpl_checkRepayment":
		s.handleCheckRepayment(w, req)
	case "bnpl_cancelContract":
		s.handleCancelContract(w, req)
	case "bnpl_getContract":
		s.handleGetContract(w, req)
	case "score_initialize":
		s.handleScoreInitialize(w, req)
	case "score_applyDelta":
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token", nil)
			return
		}
		s.handleScoreApplyDelta(w, req)
	case "score_get":
		s.handleScoreGet(w, req)
	case "yield_getTracker":
		s.handleYieldGet(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "unknown method "+req.Method, nil)
	}
}

// authorized validates the bearer token for privileged methods. An unset
// server token disables those methods entirely.
func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix)) == s.authToken
}

// decodeParams unmarshals the single object parameter every method accepts.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	raw := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, err
	}
	if len(decoded) != 20 {
		return addr, errors.New("address must be 20 bytes")
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseContractID(value string) ([32]byte, error) {
	var id [32]byte
	raw := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return id, err
	}
	if len(decoded) != 32 {
		return id, errors.New("contract id must be 32 bytes")
	}
	copy(id[:], decoded)
	return id, nil
}

func (s *Server) assetOrDefault(asset string) string {
	if strings.TrimSpace(asset) == "" {
		return s.asset
	}
	return asset
}

// writeEngineError maps domain sentinels onto JSON-RPC error codes.
func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, common.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, collateral.ErrPositionNotFound),
		errors.Is(err, bnpl.ErrContractNotFound),
		errors.Is(err, creditscore.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, collateral.ErrBelowMinimumDeposit),
		errors.Is(err, collateral.ErrInvalidLockPeriod),
		errors.Is(err, collateral.ErrStillLocked),
		errors.Is(err, collateral.ErrInsufficientBalance),
		errors.Is(err, bnpl.ErrInvalidInstallmentCount),
		errors.Is(err, bnpl.ErrInvalidInterval),
		errors.Is(err, bnpl.ErrScoreTooLow),
		errors.Is(err, bnpl.ErrInsufficientCollateral),
		errors.Is(err, bnpl.ErrContractExists),
		errors.Is(err, bnpl.ErrAlreadyCompleted),
		errors.Is(err, bnpl.ErrCancelNotAllowed),
		errors.Is(err, bnpl.ErrZeroPrincipal),
		errors.Is(err, bnpl.ErrGracePeriodNotExpired),
		errors.Is(err, bnpl.ErrPaymentWindowClosed),
		errors.Is(err, creditscore.ErrAlreadyInitialized),
		errors.Is(err, creditscore.ErrInvalidReason),
		errors.Is(err, common.ErrArithmeticOverflow),
		errors.Is(err, common.ErrModulePaused):
		writeError(w, http.StatusBadRequest, id, codeServerError, err.Error(), nil)
	default:
		s.logger.Error("rpc handler failure", "err", err)
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
	}
}
