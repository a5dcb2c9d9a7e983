// Package api exposes the vault's user, operator and admin entry points over
// HTTP. Every route sits behind a bearer token; the daemon holds the admin
// and operator capabilities and acts with them on behalf of the caller.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"YieldVault/internal/fund"
	"YieldVault/internal/model"
	"YieldVault/internal/vault"
)

const maxBodyBytes = 1 << 20

// Response is the envelope of every reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Server serves the vault API.
type Server struct {
	fund  *fund.Manager
	admin *vault.AdminCap
	op    *vault.OperatorCap
	token string
	log   *zap.Logger

	// custody handed out by the current operation, held until it is
	// returned or the operation is aborted.
	mu      sync.Mutex
	custody *vault.Custody
}

// New creates a server acting with the given capabilities. Requests must
// carry token as a bearer credential.
func New(fm *fund.Manager, admin *vault.AdminCap, op *vault.OperatorCap, token string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{fund: fm, admin: admin, op: op, token: token, log: log}
}

// Register mounts the API under /v1 on router.
func (s *Server) Register(router *mux.Router) {
	r := router.PathPrefix("/v1").Subrouter()
	r.Use(s.authenticate)

	r.HandleFunc("/summary", s.handleSummary).Methods("GET")
	r.HandleFunc("/deposits", s.handleSubmitDeposit).Methods("POST")
	r.HandleFunc("/deposits/{id}/cancel", s.handleCancelDeposit).Methods("POST")
	r.HandleFunc("/deposits/{id}/execute", s.handleExecuteDeposit).Methods("POST")
	r.HandleFunc("/withdrawals", s.handleSubmitWithdraw).Methods("POST")
	r.HandleFunc("/withdrawals/{id}/cancel", s.handleCancelWithdraw).Methods("POST")
	r.HandleFunc("/withdrawals/{id}/execute", s.handleExecuteWithdraw).Methods("POST")
	r.HandleFunc("/receipts/{id}/transfer", s.handleTransferReceipt).Methods("POST")

	r.HandleFunc("/items", s.handleAddItem).Methods("POST")
	r.HandleFunc("/values/{key}/update", s.handleUpdateValue).Methods("POST")
	r.HandleFunc("/operations", s.handleBeginOperation).Methods("POST")
	r.HandleFunc("/operations/current/end-custody", s.handleEndCustody).Methods("POST")
	r.HandleFunc("/operations/current/enable-valuation", s.handleEnableValuation).Methods("POST")
	r.HandleFunc("/operations/current/complete", s.handleCompleteOperation).Methods("POST")
	r.HandleFunc("/fees/retrieve", s.handleRetrieveFees).Methods("POST")
	r.HandleFunc("/reward-rates", s.handleSetRewardRate).Methods("POST")

	r.HandleFunc("/admin/pools/{id}", s.handleSetPool).Methods("PUT")
	r.HandleFunc("/admin/items/{key}", s.handleRemoveItem).Methods("DELETE")
	r.HandleFunc("/admin/operators/{id}/freeze", s.handleFreezeOperator).Methods("POST")
	r.HandleFunc("/admin/enabled", s.handleSetEnabled).Methods("POST")
	r.HandleFunc("/admin/loss-tolerance", s.handleSetLossTolerance).Methods("POST")
	r.HandleFunc("/admin/fees", s.handleSetFees).Methods("POST")
	r.HandleFunc("/admin/operations/current/abort", s.handleAbortOperation).Methods("POST")
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || s.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, Response{Error: "missing or invalid bearer token", Kind: "authorization"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch model.ErrorKind(err) {
	case "ok":
		return http.StatusOK
	case "authorization":
		return http.StatusForbidden
	case "invalid_argument":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "state", "slippage", "valuation_incomplete":
		return http.StatusConflict
	case "staleness":
		return http.StatusServiceUnavailable
	case "invariant", "zero_price":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := model.ErrorKind(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("kind", kind),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("api call failed", fields...)
	} else {
		s.log.Warn("api call rejected", fields...)
	}
	writeJSON(w, status, Response{Error: err.Error(), Kind: kind})
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	s.writeError(w, r, errorsmod.Wrapf(model.ErrInvalidArgument, format, args...))
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func requestID(r *http.Request) (uint64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("request id %q is not a number", raw)
	}
	return id, nil
}

// orZero lets optional amounts be omitted from a request body.
func orZero(x math.Int) math.Int {
	if x.IsNil() {
		return math.ZeroInt()
	}
	return x
}
