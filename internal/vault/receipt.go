package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"YieldVault/internal/model"
)

func (v *Vault) receiptFor(id uuid.UUID) (*model.Receipt, error) {
	r, ok := v.receipts[id]
	if !ok {
		return nil, errorsmod.Wrapf(model.ErrNotFound, "receipt %s", id)
	}
	if r.VaultID != v.id {
		return nil, errorsmod.Wrapf(model.ErrInvalidArgument, "receipt %s belongs to vault %s", id, r.VaultID)
	}
	return r, nil
}

func (v *Vault) ownedReceipt(id uuid.UUID, sender string) (*model.Receipt, error) {
	r, err := v.receiptFor(id)
	if err != nil {
		return nil, err
	}
	if r.Owner != sender {
		return nil, errorsmod.Wrapf(model.ErrUnauthorized, "receipt %s is held by %s", id, r.Owner)
	}
	return r, nil
}

// Receipt returns a copy of a receipt.
func (v *Vault) Receipt(id uuid.UUID) (model.Receipt, error) {
	r, err := v.receiptFor(id)
	if err != nil {
		return model.Receipt{}, err
	}
	return *r, nil
}

// TransferReceipt hands a receipt to a new holder. A receipt with a pending
// request is locked to its requester until the request is executed or
// cancelled.
func (v *Vault) TransferReceipt(_ context.Context, sender string, id uuid.UUID, to string) error {
	if to == "" {
		return errorsmod.Wrap(model.ErrInvalidArgument, "recipient required")
	}
	r, err := v.ownedReceipt(id, sender)
	if err != nil {
		return err
	}
	if r.TransferLocked() {
		return errorsmod.Wrapf(model.ErrInvalidStatus, "receipt %s has a %s request", id, r.Status)
	}
	r.Owner = to
	v.log.Info("receipt transferred", zap.String("receipt", id.String()), zap.String("to", to))
	return nil
}
