package vault

import (
	"context"
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
)

// SubmitDeposit escrows amount of principal for sender. A nil receiptID opens
// a new receipt owned by sender.
func (v *Vault) SubmitDeposit(ctx context.Context, sender string, receiptID uuid.UUID, amount, expectedShares math.Int) (uint64, uuid.UUID, error) {
	if err := v.requireStatus(model.StatusNormal); err != nil {
		return 0, uuid.Nil, err
	}
	if sender == "" {
		return 0, uuid.Nil, errorsmod.Wrap(model.ErrInvalidArgument, "sender required")
	}
	if err := positive(amount, "deposit amount"); err != nil {
		return 0, uuid.Nil, err
	}
	if err := nonNegative(expectedShares, "expected shares"); err != nil {
		return 0, uuid.Nil, err
	}
	escrowed, err := calculator.Add(v.escrowed, amount)
	if err != nil {
		return 0, uuid.Nil, err
	}

	var rcpt *model.Receipt
	if receiptID == uuid.Nil {
		rcpt = &model.Receipt{
			ID:                    uuid.New(),
			VaultID:               v.id,
			Owner:                 sender,
			Shares:                math.ZeroInt(),
			PendingDeposit:        math.ZeroInt(),
			PendingWithdrawShares: math.ZeroInt(),
		}
	} else {
		if rcpt, err = v.ownedReceipt(receiptID, sender); err != nil {
			return 0, uuid.Nil, err
		}
		if rcpt.Status != model.ReceiptNormal {
			return 0, uuid.Nil, errorsmod.Wrapf(model.ErrInvalidStatus, "receipt %s already has a %s request", rcpt.ID, rcpt.Status)
		}
	}

	now := v.now(ctx)
	id := v.nextRequestID
	v.nextRequestID++
	v.escrowed = escrowed
	v.receipts[rcpt.ID] = rcpt
	rcpt.Status = model.ReceiptPendingDeposit
	rcpt.PendingDeposit = amount
	v.deposits[id] = &model.DepositRequest{
		ID:             id,
		VaultID:        v.id,
		ReceiptID:      rcpt.ID,
		Requester:      sender,
		Amount:         amount,
		ExpectedShares: expectedShares,
		SubmittedAt:    now.UnixMilli(),
	}
	v.log.Info("deposit submitted", zap.Uint64("request_id", id), zap.String("receipt", rcpt.ID.String()), zap.String("amount", amount.String()))
	return id, rcpt.ID, nil
}

// ExecuteDeposit folds an escrowed deposit into the principal and mints
// shares at the pre-deposit share ratio. The minted amount must lie within
// [ExpectedShares, maxShares].
func (v *Vault) ExecuteDeposit(ctx context.Context, op *OperatorCap, id uint64, maxShares math.Int) (model.DepositResult, error) {
	if err := v.auth.CheckOperator(op); err != nil {
		return model.DepositResult{}, err
	}
	if err := v.requireStatus(model.StatusNormal); err != nil {
		return model.DepositResult{}, err
	}
	req, ok := v.deposits[id]
	if !ok {
		return model.DepositResult{}, errorsmod.Wrapf(model.ErrNotFound, "deposit request %d", id)
	}
	rcpt, err := v.receiptFor(req.ReceiptID)
	if err != nil {
		return model.DepositResult{}, err
	}
	if err := nonNegative(maxShares, "max shares"); err != nil {
		return model.DepositResult{}, err
	}

	now := v.now(ctx)
	price, err := v.oracle.Read(v.principalAsset, now)
	if err != nil {
		return model.DepositResult{}, err
	}
	if price.IsZero() {
		return model.DepositResult{}, errorsmod.Wrapf(model.ErrZeroPrice, "principal %s is priced at zero", v.principalAsset)
	}

	before, err := v.oracle.Value(v.principalAsset, v.freePrincipal, now)
	if err != nil {
		return model.DepositResult{}, err
	}
	totalBefore, err := v.aggregate(now, map[string]math.Int{model.PrincipalKey: before})
	if err != nil {
		return model.DepositResult{}, err
	}
	ratio, err := v.ratioFor(totalBefore)
	if err != nil {
		return model.DepositResult{}, err
	}

	fee, err := calculator.BpsOf(req.Amount, v.params.DepositFeeBps)
	if err != nil {
		return model.DepositResult{}, err
	}
	net, err := calculator.Sub(req.Amount, fee)
	if err != nil {
		return model.DepositResult{}, err
	}
	newFree, err := calculator.Add(v.freePrincipal, net)
	if err != nil {
		return model.DepositResult{}, err
	}
	after, err := v.oracle.Value(v.principalAsset, newFree, now)
	if err != nil {
		return model.DepositResult{}, err
	}
	delta, err := calculator.Sub(after, before)
	if err != nil {
		return model.DepositResult{}, err
	}
	shares, err := calculator.MulDiv(delta, calculator.One, ratio)
	if err != nil {
		return model.DepositResult{}, err
	}
	if shares.IsZero() {
		return model.DepositResult{}, errorsmod.Wrapf(model.ErrInvalidArgument, "deposit %d mints no shares", id)
	}
	if shares.LT(req.ExpectedShares) || shares.GT(maxShares) {
		return model.DepositResult{}, errorsmod.Wrapf(model.ErrSlippage, "deposit %d mints %s shares, bounds [%s, %s]", id, shares, req.ExpectedShares, maxShares)
	}
	totalShares, err := calculator.Add(v.totalShares, shares)
	if err != nil {
		return model.DepositResult{}, err
	}
	rcptShares, err := calculator.Add(rcpt.Shares, shares)
	if err != nil {
		return model.DepositResult{}, err
	}
	fees, err := calculator.Add(v.claimableFees, fee)
	if err != nil {
		return model.DepositResult{}, err
	}
	escrowed, err := calculator.Sub(v.escrowed, req.Amount)
	if err != nil {
		return model.DepositResult{}, err
	}

	v.freePrincipal = newFree
	v.escrowed = escrowed
	v.claimableFees = fees
	v.totalShares = totalShares
	v.setValue(model.PrincipalKey, after, now)
	rcpt.Shares = rcptShares
	rcpt.PendingDeposit = math.ZeroInt()
	rcpt.Status = model.ReceiptNormal
	rcpt.LastDepositAt = now.UnixMilli()
	delete(v.deposits, id)

	v.log.Info("deposit executed",
		zap.Uint64("request_id", id),
		zap.String("operator", op.ID().String()),
		zap.String("shares", shares.String()),
		zap.String("fee", fee.String()))
	return model.DepositResult{RequestID: id, ReceiptID: rcpt.ID, Amount: req.Amount, Fee: fee, Shares: shares}, nil
}

// CancelDeposit refunds exactly the escrowed amount to the requester.
func (v *Vault) CancelDeposit(ctx context.Context, sender string, id uint64) (math.Int, error) {
	if err := v.requireNotDuringOperation(); err != nil {
		return math.Int{}, err
	}
	req, ok := v.deposits[id]
	if !ok {
		return math.Int{}, errorsmod.Wrapf(model.ErrNotFound, "deposit request %d", id)
	}
	if req.Requester != sender {
		return math.Int{}, errorsmod.Wrapf(model.ErrUnauthorized, "deposit %d belongs to %s", id, req.Requester)
	}
	if err := v.checkCancelDwell(ctx, req.SubmittedAt); err != nil {
		return math.Int{}, err
	}
	rcpt, err := v.receiptFor(req.ReceiptID)
	if err != nil {
		return math.Int{}, err
	}
	escrowed, err := calculator.Sub(v.escrowed, req.Amount)
	if err != nil {
		return math.Int{}, err
	}

	v.escrowed = escrowed
	rcpt.PendingDeposit = math.ZeroInt()
	rcpt.Status = model.ReceiptNormal
	delete(v.deposits, id)
	v.log.Info("deposit cancelled", zap.Uint64("request_id", id), zap.String("refund", req.Amount.String()))
	return req.Amount, nil
}

// SubmitWithdraw commits shares of a receipt to be burned for principal paid
// to recipient, or to sender when recipient is empty.
func (v *Vault) SubmitWithdraw(ctx context.Context, sender string, receiptID uuid.UUID, shares, expectedAmount math.Int, recipient string) (uint64, error) {
	if err := v.requireStatus(model.StatusNormal); err != nil {
		return 0, err
	}
	if err := positive(shares, "withdraw shares"); err != nil {
		return 0, err
	}
	if err := nonNegative(expectedAmount, "expected amount"); err != nil {
		return 0, err
	}
	rcpt, err := v.ownedReceipt(receiptID, sender)
	if err != nil {
		return 0, err
	}
	if rcpt.Status != model.ReceiptNormal {
		return 0, errorsmod.Wrapf(model.ErrInvalidStatus, "receipt %s already has a %s request", rcpt.ID, rcpt.Status)
	}
	if shares.GT(rcpt.Shares) {
		return 0, errorsmod.Wrapf(model.ErrInvalidArgument, "receipt %s holds %s shares, asked %s", rcpt.ID, rcpt.Shares, shares)
	}
	now := v.now(ctx)
	unlock := time.UnixMilli(rcpt.LastDepositAt).Add(v.params.LockingTimeForWithdraw)
	if now.Before(unlock) {
		return 0, errorsmod.Wrapf(model.ErrInvalidStatus, "receipt %s is locked for withdraw until %s", rcpt.ID, unlock.UTC().Format(time.RFC3339))
	}
	if recipient == "" {
		recipient = sender
	}

	id := v.nextRequestID
	v.nextRequestID++
	rcpt.Status = model.ReceiptPendingWithdraw
	rcpt.PendingWithdrawShares = shares
	v.withdrawals[id] = &model.WithdrawRequest{
		ID:             id,
		VaultID:        v.id,
		ReceiptID:      rcpt.ID,
		Requester:      sender,
		Recipient:      recipient,
		Shares:         shares,
		ExpectedAmount: expectedAmount,
		SubmittedAt:    now.UnixMilli(),
	}
	v.log.Info("withdraw submitted", zap.Uint64("request_id", id), zap.String("receipt", rcpt.ID.String()), zap.String("shares", shares.String()))
	return id, nil
}

// ExecuteWithdraw burns the request's shares and pays out principal worth
// their value at the current share ratio. The payout must lie within
// [ExpectedAmount, maxAmountOut].
func (v *Vault) ExecuteWithdraw(ctx context.Context, op *OperatorCap, id uint64, maxAmountOut math.Int) (model.Payout, error) {
	if err := v.auth.CheckOperator(op); err != nil {
		return model.Payout{}, err
	}
	if err := v.requireStatus(model.StatusNormal); err != nil {
		return model.Payout{}, err
	}
	req, ok := v.withdrawals[id]
	if !ok {
		return model.Payout{}, errorsmod.Wrapf(model.ErrNotFound, "withdraw request %d", id)
	}
	rcpt, err := v.receiptFor(req.ReceiptID)
	if err != nil {
		return model.Payout{}, err
	}
	if err := nonNegative(maxAmountOut, "max amount out"); err != nil {
		return model.Payout{}, err
	}

	now := v.now(ctx)
	price, err := v.oracle.Read(v.principalAsset, now)
	if err != nil {
		return model.Payout{}, err
	}
	if price.IsZero() {
		return model.Payout{}, errorsmod.Wrapf(model.ErrZeroPrice, "principal %s is priced at zero", v.principalAsset)
	}
	decimals, err := v.oracle.At(now).Decimals(v.principalAsset)
	if err != nil {
		return model.Payout{}, err
	}

	before, err := v.oracle.Value(v.principalAsset, v.freePrincipal, now)
	if err != nil {
		return model.Payout{}, err
	}
	total, err := v.aggregate(now, map[string]math.Int{model.PrincipalKey: before})
	if err != nil {
		return model.Payout{}, err
	}
	ratio, err := v.ratioFor(total)
	if err != nil {
		return model.Payout{}, err
	}
	usd, err := calculator.MulD(req.Shares, ratio)
	if err != nil {
		return model.Payout{}, err
	}
	gross, err := calculator.AmountFor(usd, price, decimals)
	if err != nil {
		return model.Payout{}, err
	}
	if gross.IsZero() {
		return model.Payout{}, errorsmod.Wrapf(model.ErrInvalidArgument, "withdraw %d pays nothing", id)
	}
	if gross.GT(v.freePrincipal) {
		return model.Payout{}, errorsmod.Wrapf(model.ErrInvalidStatus, "withdraw %d needs %s principal, %s free", id, gross, v.freePrincipal)
	}
	fee, err := calculator.BpsOf(gross, v.params.WithdrawFeeBps)
	if err != nil {
		return model.Payout{}, err
	}
	amount, err := calculator.Sub(gross, fee)
	if err != nil {
		return model.Payout{}, err
	}
	if amount.LT(req.ExpectedAmount) || amount.GT(maxAmountOut) {
		return model.Payout{}, errorsmod.Wrapf(model.ErrSlippage, "withdraw %d pays %s, bounds [%s, %s]", id, amount, req.ExpectedAmount, maxAmountOut)
	}
	newFree, err := calculator.Sub(v.freePrincipal, gross)
	if err != nil {
		return model.Payout{}, err
	}
	totalShares, err := calculator.Sub(v.totalShares, req.Shares)
	if err != nil {
		return model.Payout{}, err
	}
	rcptShares, err := calculator.Sub(rcpt.Shares, req.Shares)
	if err != nil {
		return model.Payout{}, err
	}
	fees, err := calculator.Add(v.claimableFees, fee)
	if err != nil {
		return model.Payout{}, err
	}
	after, err := v.oracle.Value(v.principalAsset, newFree, now)
	if err != nil {
		return model.Payout{}, err
	}

	v.freePrincipal = newFree
	v.claimableFees = fees
	v.totalShares = totalShares
	v.setValue(model.PrincipalKey, after, now)
	rcpt.Shares = rcptShares
	rcpt.PendingWithdrawShares = math.ZeroInt()
	rcpt.Status = model.ReceiptNormal
	delete(v.withdrawals, id)

	v.log.Info("withdraw executed",
		zap.Uint64("request_id", id),
		zap.String("operator", op.ID().String()),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()))
	return model.Payout{RequestID: id, ReceiptID: rcpt.ID, Recipient: req.Recipient, Shares: req.Shares, Amount: amount, Fee: fee}, nil
}

// CancelWithdraw releases the committed shares back to the receipt.
func (v *Vault) CancelWithdraw(ctx context.Context, sender string, id uint64) (math.Int, error) {
	if err := v.requireNotDuringOperation(); err != nil {
		return math.Int{}, err
	}
	req, ok := v.withdrawals[id]
	if !ok {
		return math.Int{}, errorsmod.Wrapf(model.ErrNotFound, "withdraw request %d", id)
	}
	if req.Requester != sender {
		return math.Int{}, errorsmod.Wrapf(model.ErrUnauthorized, "withdraw %d belongs to %s", id, req.Requester)
	}
	if err := v.checkCancelDwell(ctx, req.SubmittedAt); err != nil {
		return math.Int{}, err
	}
	rcpt, err := v.receiptFor(req.ReceiptID)
	if err != nil {
		return math.Int{}, err
	}

	rcpt.PendingWithdrawShares = math.ZeroInt()
	rcpt.Status = model.ReceiptNormal
	delete(v.withdrawals, id)
	v.log.Info("withdraw cancelled", zap.Uint64("request_id", id))
	return req.Shares, nil
}

func (v *Vault) checkCancelDwell(ctx context.Context, submittedAt int64) error {
	ready := time.UnixMilli(submittedAt).Add(v.params.LockingTimeForCancel)
	if v.now(ctx).Before(ready) {
		return errorsmod.Wrapf(model.ErrInvalidStatus, "request cancellable from %s", ready.UTC().Format(time.RFC3339))
	}
	return nil
}

// DepositRequest returns a copy of a pending deposit.
func (v *Vault) DepositRequest(id uint64) (model.DepositRequest, bool) {
	r, ok := v.deposits[id]
	if !ok {
		return model.DepositRequest{}, false
	}
	return *r, true
}

// WithdrawRequest returns a copy of a pending withdraw.
func (v *Vault) WithdrawRequest(id uint64) (model.WithdrawRequest, bool) {
	r, ok := v.withdrawals[id]
	if !ok {
		return model.WithdrawRequest{}, false
	}
	return *r, true
}

// PendingDeposits lists pending deposits in submit order.
func (v *Vault) PendingDeposits() []model.DepositRequest {
	out := make([]model.DepositRequest, 0, len(v.deposits))
	for _, r := range v.deposits {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingWithdrawals lists pending withdrawals in submit order.
func (v *Vault) PendingWithdrawals() []model.WithdrawRequest {
	out := make([]model.WithdrawRequest, 0, len(v.withdrawals))
	for _, r := range v.withdrawals {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
