// Package vault implements the custodial yield vault: status machine, request
// queue, receipts, valuation and the multi-call operation lifecycle.
//
// A Vault is not safe for concurrent use. Each exported method is one
// top-level call: it validates everything first and mutates only when it is
// about to succeed, so a returned error means no state changed. fund.Manager
// serialises calls.
package vault

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/auth"
	"YieldVault/internal/model"
	"YieldVault/internal/oracle"
	"YieldVault/internal/registry"
)

// Capabilities are issued by the vault's auth.Authority.
type (
	AdminCap    = auth.AdminCap
	OperatorCap = auth.OperatorCap
)

type evalTimeKey struct{}

// WithEvalTime pins the evaluation instant of every vault call made with ctx.
// Calls that share an instant see the same prices and the same freshness.
func WithEvalTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, evalTimeKey{}, t)
}

// EvalTime returns the instant pinned in ctx, if any.
func EvalTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(evalTimeKey{}).(time.Time)
	return t, ok
}

// valueEntry is the last USD value of one constituent and when it was taken,
// in unix milliseconds.
type valueEntry struct {
	value     math.Int
	updatedAt int64
}

type epoch struct {
	start     int64
	loss      math.Int
	baseValue math.Int
}

// Config wires a vault to its collaborators.
type Config struct {
	ID             uuid.UUID
	PrincipalAsset string
	Params         Params
	Authority      *auth.Authority
	Oracle         *oracle.Cache
	Adaptors       *adaptor.Set
	Clock          func() time.Time
	Logger         *zap.Logger
}

// Vault is the custodial yield vault.
type Vault struct {
	id             uuid.UUID
	principalAsset string
	params         Params

	status        model.Status
	freePrincipal math.Int
	escrowed      math.Int
	claimableFees math.Int
	totalShares   math.Int
	values        map[string]valueEntry
	epoch         epoch
	rewardRates   map[string]math.Int

	registry *registry.Registry
	pools    map[string]adaptor.Pool
	op       *operation
	nextOpID uint64

	nextRequestID uint64
	deposits      map[uint64]*model.DepositRequest
	withdrawals   map[uint64]*model.WithdrawRequest
	receipts      map[uuid.UUID]*model.Receipt

	auth     *auth.Authority
	oracle   *oracle.Cache
	adaptors *adaptor.Set
	clock    func() time.Time
	log      *zap.Logger
}

// New creates a NORMAL vault with no principal and no shares.
func New(cfg Config) (*Vault, error) {
	if cfg.Authority == nil || cfg.Oracle == nil {
		return nil, errorsmod.Wrap(model.ErrInvalidArgument, "authority and oracle are required")
	}
	if _, ok := cfg.Oracle.Entry(cfg.PrincipalAsset); !ok {
		return nil, errorsmod.Wrapf(model.ErrNotFound, "principal asset %q is not in the oracle", cfg.PrincipalAsset)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.Adaptors == nil {
		cfg.Adaptors = adaptor.NewSet()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Vault{
		id:             cfg.ID,
		principalAsset: cfg.PrincipalAsset,
		params:         cfg.Params,
		status:         model.StatusNormal,
		freePrincipal:  math.ZeroInt(),
		escrowed:       math.ZeroInt(),
		claimableFees:  math.ZeroInt(),
		totalShares:    math.ZeroInt(),
		values:         make(map[string]valueEntry),
		epoch:          epoch{loss: math.ZeroInt(), baseValue: math.ZeroInt()},
		rewardRates:    make(map[string]math.Int),
		registry:       registry.New(),
		pools:          make(map[string]adaptor.Pool),
		nextRequestID:  1,
		nextOpID:       1,
		deposits:       make(map[uint64]*model.DepositRequest),
		withdrawals:    make(map[uint64]*model.WithdrawRequest),
		receipts:       make(map[uuid.UUID]*model.Receipt),
		auth:           cfg.Authority,
		oracle:         cfg.Oracle,
		adaptors:       cfg.Adaptors,
		clock:          cfg.Clock,
		log:            cfg.Logger.With(zap.String("vault_id", cfg.ID.String())),
	}, nil
}

// ID identifies the vault.
func (v *Vault) ID() uuid.UUID { return v.id }

// PrincipalAsset is the oracle key of the principal coin.
func (v *Vault) PrincipalAsset() string { return v.principalAsset }

// Params returns the current parameters.
func (v *Vault) Params() Params { return v.params }

// Authority returns the operator authority guarding the vault.
func (v *Vault) Authority() *auth.Authority { return v.auth }

func (v *Vault) now(ctx context.Context) time.Time {
	if t, ok := EvalTime(ctx); ok {
		return t
	}
	return v.clock()
}

func (v *Vault) requireStatus(want model.Status) error {
	if v.status != want {
		return errorsmod.Wrapf(model.ErrInvalidStatus, "vault is %s, want %s", v.status, want)
	}
	return nil
}

func (v *Vault) requireNotDuringOperation() error {
	if v.status == model.StatusDuringOperation {
		return errorsmod.Wrap(model.ErrInvalidStatus, "vault is DURING_OPERATION")
	}
	return nil
}

func positive(x math.Int, what string) error {
	if x.IsNil() || !x.IsPositive() {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "%s must be positive", what)
	}
	return nil
}

func nonNegative(x math.Int, what string) error {
	if x.IsNil() || x.IsNegative() {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "%s must not be negative", what)
	}
	return nil
}
