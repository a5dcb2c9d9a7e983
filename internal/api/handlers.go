package api

import (
	"net/http"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/model"
	"YieldVault/internal/registry"
	"YieldVault/internal/vault"
)

type submitDepositRequest struct {
	Sender         string   `json:"sender"`
	ReceiptID      string   `json:"receipt_id"`
	Amount         math.Int `json:"amount"`
	ExpectedShares math.Int `json:"expected_shares"`
}

type submitWithdrawRequest struct {
	Sender         string   `json:"sender"`
	ReceiptID      string   `json:"receipt_id"`
	Shares         math.Int `json:"shares"`
	ExpectedAmount math.Int `json:"expected_amount"`
	Recipient      string   `json:"recipient"`
}

type senderRequest struct {
	Sender string `json:"sender"`
}

type transferRequest struct {
	Sender string `json:"sender"`
	To     string `json:"to"`
}

type executeDepositRequest struct {
	MaxShares math.Int `json:"max_shares"`
}

type executeWithdrawRequest struct {
	MaxAmountOut math.Int `json:"max_amount_out"`
}

type addItemRequest struct {
	Key       string   `json:"key"`
	Kind      string   `json:"kind"`
	Asset     string   `json:"asset,omitempty"`
	Amount    math.Int `json:"amount"`
	PoolID    string   `json:"pool_id,omitempty"`
	Liquidity math.Int `json:"liquidity"`
}

type beginOperationRequest struct {
	Keys      []string `json:"keys"`
	Principal math.Int `json:"principal"`
}

type lendingUpdate struct {
	Supplied map[string]math.Int `json:"supplied"`
	Borrowed map[string]math.Int `json:"borrowed"`
}

// endCustodyRequest reports what the operator brings back. Items not named
// come back unchanged.
type endCustodyRequest struct {
	Principal math.Int                 `json:"principal"`
	Balances  map[string]math.Int      `json:"balances"`
	Liquidity map[string]math.Int      `json:"liquidity"`
	Lending   map[string]lendingUpdate `json:"lending,omitempty"`
}

type completeOperationRequest struct {
	ExpectedTotalShares math.Int `json:"expected_total_shares"`
}

type amountRequest struct {
	Amount math.Int `json:"amount"`
}

type rewardRateRequest struct {
	Asset     string   `json:"asset"`
	RatePerMs math.Int `json:"rate_per_ms"`
}

type setPoolRequest struct {
	Kind           string              `json:"kind"`
	CoinA          string              `json:"coin_a,omitempty"`
	CoinB          string              `json:"coin_b,omitempty"`
	ReserveA       math.Int            `json:"reserve_a"`
	ReserveB       math.Int            `json:"reserve_b"`
	TotalLiquidity math.Int            `json:"total_liquidity"`
	SupplyIndex    map[string]math.Int `json:"supply_index"`
	BorrowIndex    map[string]math.Int `json:"borrow_index"`
}

type freezeRequest struct {
	Frozen bool `json:"frozen"`
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

type lossToleranceRequest struct {
	Bps uint64 `json:"bps"`
}

type feesRequest struct {
	DepositBps  uint64 `json:"deposit_bps"`
	WithdrawBps uint64 `json:"withdraw_bps"`
}

// OperationView is the reply to BeginOperation.
type OperationView struct {
	OperationID uint64   `json:"operation_id"`
	Keys        []string `json:"keys"`
	Principal   math.Int `json:"principal"`
}

// OperationResultView is the reply to a completed or aborted operation.
type OperationResultView struct {
	OperationID uint64   `json:"operation_id"`
	ValueBefore math.Int `json:"value_before"`
	ValueAfter  math.Int `json:"value_after"`
	Loss        math.Int `json:"loss"`
	EpochLoss   math.Int `json:"epoch_loss"`
	WrittenOff  []string `json:"written_off,omitempty"`
}

func resultView(res vault.OperationResult) OperationResultView {
	return OperationResultView{
		OperationID: res.OperationID,
		ValueBefore: res.ValueBefore,
		ValueAfter:  res.ValueAfter,
		Loss:        res.Loss,
		EpochLoss:   res.EpochLoss,
		WrittenOff:  res.WrittenOff,
	}
}

func parseReceiptID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, s.fund.Summary(r.Context()))
}

func (s *Server) handleSubmitDeposit(w http.ResponseWriter, r *http.Request) {
	var req submitDepositRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	rid, err := parseReceiptID(req.ReceiptID)
	if err != nil {
		s.badRequest(w, r, "receipt_id: %v", err)
		return
	}
	id, rid, err := s.fund.SubmitDeposit(r.Context(), req.Sender, rid, req.Amount, orZero(req.ExpectedShares))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"request_id": id, "receipt_id": rid})
}

func (s *Server) handleCancelDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		s.badRequest(w, r, "%v", err)
		return
	}
	var req senderRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	refund, err := s.fund.CancelDeposit(r.Context(), req.Sender, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"refund": refund})
}

func (s *Server) handleExecuteDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		s.badRequest(w, r, "%v", err)
		return
	}
	var req executeDepositRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	res, err := s.fund.ExecuteDeposit(r.Context(), s.op, id, req.MaxShares)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, res)
}

func (s *Server) handleSubmitWithdraw(w http.ResponseWriter, r *http.Request) {
	var req submitWithdrawRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	rid, err := uuid.Parse(req.ReceiptID)
	if err != nil {
		s.badRequest(w, r, "receipt_id: %v", err)
		return
	}
	id, err := s.fund.SubmitWithdraw(r.Context(), req.Sender, rid, req.Shares, orZero(req.ExpectedAmount), req.Recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"request_id": id})
}

func (s *Server) handleCancelWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		s.badRequest(w, r, "%v", err)
		return
	}
	var req senderRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	shares, err := s.fund.CancelWithdraw(r.Context(), req.Sender, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"shares": shares})
}

func (s *Server) handleExecuteWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		s.badRequest(w, r, "%v", err)
		return
	}
	var req executeWithdrawRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	p, err := s.fund.ExecuteWithdraw(r.Context(), s.op, id, req.MaxAmountOut)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, p)
}

func (s *Server) handleTransferReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.badRequest(w, r, "receipt id: %v", err)
		return
	}
	var req transferRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	if err := s.fund.TransferReceipt(r.Context(), req.Sender, id, req.To); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"receipt_id": id, "owner": req.To})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	var item registry.Item
	switch req.Kind {
	case adaptor.KindBalance:
		item = adaptor.NewBalance(req.Asset, orZero(req.Amount))
	case adaptor.KindLending:
		item = adaptor.NewLendingAccount(req.PoolID)
	case adaptor.KindLiquidity:
		item = adaptor.NewLiquidityPosition(req.PoolID, orZero(req.Liquidity))
	default:
		s.badRequest(w, r, "unknown item kind %q", req.Kind)
		return
	}
	if err := s.fund.AddItem(r.Context(), s.op, req.Key, item); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"key": req.Key, "kind": item.Kind(), "item_id": item.ID()})
}

func (s *Server) handleUpdateValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	val, err := s.fund.UpdateValue(r.Context(), s.op, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"key": key, "value": val})
}

func (s *Server) handleBeginOperation(w http.ResponseWriter, r *http.Request) {
	var req beginOperationRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	custody, err := s.fund.BeginOperation(r.Context(), s.op, req.Keys, orZero(req.Principal))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.custody = custody
	keys := make([]string, 0, len(custody.Items))
	for key := range custody.Items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	writeSuccess(w, OperationView{OperationID: custody.OperationID, Keys: keys, Principal: custody.Principal})
}

func (s *Server) handleEndCustody(w http.ResponseWriter, r *http.Request) {
	var req endCustodyRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.custody == nil {
		s.writeError(w, r, errorsmod.Wrap(model.ErrInvalidStatus, "no custody is held"))
		return
	}
	if err := applyReturns(s.custody, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	returned := &vault.Custody{
		OperationID: s.custody.OperationID,
		Items:       s.custody.Items,
		Principal:   req.Principal,
	}
	if err := s.fund.EndCustody(r.Context(), s.op, returned); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.custody = nil
	writeSuccess(w, map[string]any{"operation_id": returned.OperationID})
}

// applyReturns writes the reported balances onto the held items. It checks
// every update before touching any item.
func applyReturns(c *vault.Custody, req endCustodyRequest) error {
	for key, amount := range req.Balances {
		if _, err := heldAs[*adaptor.Balance](c, key); err != nil {
			return err
		}
		if amount.IsNil() || amount.IsNegative() {
			return errorsmod.Wrapf(model.ErrInvalidArgument, "balance of %s must not be negative", key)
		}
	}
	for key, liq := range req.Liquidity {
		if _, err := heldAs[*adaptor.LiquidityPosition](c, key); err != nil {
			return err
		}
		if liq.IsNil() || liq.IsNegative() {
			return errorsmod.Wrapf(model.ErrInvalidArgument, "liquidity of %s must not be negative", key)
		}
	}
	for key := range req.Lending {
		if _, err := heldAs[*adaptor.LendingAccount](c, key); err != nil {
			return err
		}
	}

	for key, amount := range req.Balances {
		b, _ := heldAs[*adaptor.Balance](c, key)
		b.Amount = amount
	}
	for key, liq := range req.Liquidity {
		p, _ := heldAs[*adaptor.LiquidityPosition](c, key)
		p.Liquidity = liq
	}
	for key, upd := range req.Lending {
		a, _ := heldAs[*adaptor.LendingAccount](c, key)
		if upd.Supplied != nil {
			a.Supplied = upd.Supplied
		}
		if upd.Borrowed != nil {
			a.Borrowed = upd.Borrowed
		}
	}
	return nil
}

func heldAs[T registry.Item](c *vault.Custody, key string) (T, error) {
	var zero T
	item, ok := c.Items[key]
	if !ok {
		return zero, errorsmod.Wrapf(model.ErrNotFound, "item %s is not in custody", key)
	}
	v, ok := item.(T)
	if !ok {
		return zero, errorsmod.Wrapf(model.ErrInvalidArgument, "item %s is a %s item", key, item.Kind())
	}
	return v, nil
}

func (s *Server) handleEnableValuation(w http.ResponseWriter, r *http.Request) {
	if err := s.fund.EnableValuation(r.Context(), s.op); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleCompleteOperation(w http.ResponseWriter, r *http.Request) {
	var req completeOperationRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	res, err := s.fund.CompleteOperation(r.Context(), s.op, req.ExpectedTotalShares)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, resultView(res))
}

func (s *Server) handleRetrieveFees(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	out, err := s.fund.RetrieveFees(r.Context(), s.op, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"amount": out})
}

func (s *Server) handleSetRewardRate(w http.ResponseWriter, r *http.Request) {
	var req rewardRateRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	if err := s.fund.SetRewardRate(r.Context(), s.op, req.Asset, orZero(req.RatePerMs)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleSetPool(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req setPoolRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	var pool adaptor.Pool
	switch req.Kind {
	case adaptor.KindLiquidity:
		pool = &adaptor.LiquidityPool{
			ID:             id,
			CoinA:          req.CoinA,
			CoinB:          req.CoinB,
			ReserveA:       orZero(req.ReserveA),
			ReserveB:       orZero(req.ReserveB),
			TotalLiquidity: orZero(req.TotalLiquidity),
		}
	case adaptor.KindLending:
		pool = &adaptor.LendingMarket{ID: id, SupplyIndex: req.SupplyIndex, BorrowIndex: req.BorrowIndex}
	default:
		s.badRequest(w, r, "unknown pool kind %q", req.Kind)
		return
	}
	if err := s.fund.SetPool(r.Context(), s.admin, pool); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"pool_id": id})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	item, err := s.fund.RemoveItem(r.Context(), s.admin, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"key": key, "item_id": item.ID()})
}

func (s *Server) handleFreezeOperator(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.badRequest(w, r, "operator id: %v", err)
		return
	}
	var req freezeRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	if err := s.fund.SetOperatorFrozen(r.Context(), s.admin, id, req.Frozen); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"operator": id, "frozen": req.Frozen})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	if err := s.fund.SetEnabled(r.Context(), s.admin, req.Enabled); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"enabled": req.Enabled})
}

func (s *Server) handleSetLossTolerance(w http.ResponseWriter, r *http.Request) {
	var req lossToleranceRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	if err := s.fund.SetLossTolerance(r.Context(), s.admin, req.Bps); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"loss_tolerance_bps": req.Bps})
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body: %v", err)
		return
	}
	if err := s.fund.SetFees(r.Context(), s.admin, req.DepositBps, req.WithdrawBps); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleAbortOperation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.fund.AbortOperation(r.Context(), s.admin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.custody = nil
	writeSuccess(w, resultView(res))
}
