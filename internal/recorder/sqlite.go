package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"cosmossdk.io/math"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"YieldVault/internal/model"
)

// SQLiteRecorder persists the vault's history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			operation_id INTEGER NOT NULL,
			operator     TEXT,
			action       TEXT NOT NULL,
			asset_keys   TEXT,
			principal    TEXT,
			value_before TEXT,
			value_after  TEXT,
			loss         TEXT,
			epoch_loss   TEXT,
			written_off  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_op ON operations(operation_id)`,

		`CREATE TABLE IF NOT EXISTS requests (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			request_id INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			action     TEXT NOT NULL,
			receipt_id TEXT,
			account    TEXT,
			amount     TEXT,
			shares     TEXT,
			fee        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_req ON requests(kind, request_id)`,

		`CREATE TABLE IF NOT EXISTS value_snapshots (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp           INTEGER NOT NULL,
			status              TEXT,
			fresh               INTEGER,
			total_value         TEXT,
			total_shares        TEXT,
			share_ratio         TEXT,
			free_principal      TEXT,
			claimable_fees      TEXT,
			epoch_loss          TEXT,
			pending_deposits    INTEGER,
			pending_withdrawals INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON value_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordOperation(evt *OperationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO operations
		(timestamp, operation_id, operator, action, asset_keys, principal,
		 value_before, value_after, loss, epoch_loss, written_off)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		evt.At.UnixMilli(), evt.OperationID, evt.Operator, evt.Action,
		strings.Join(evt.Keys, ","), intText(evt.Principal),
		intText(evt.ValueBefore), intText(evt.ValueAfter),
		intText(evt.Loss), intText(evt.EpochLoss),
		strings.Join(evt.WrittenOff, ","),
	)
	return err
}

func (r *SQLiteRecorder) RecordRequest(evt *RequestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO requests
		(timestamp, request_id, kind, action, receipt_id, account, amount, shares, fee)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.At.UnixMilli(), evt.RequestID, evt.Kind, evt.Action,
		evt.ReceiptID, evt.Account,
		intText(evt.Amount), intText(evt.Shares), intText(evt.Fee),
	)
	return err
}

func (r *SQLiteRecorder) RecordSnapshot(s *model.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO value_snapshots
		(timestamp, status, fresh, total_value, total_shares, share_ratio,
		 free_principal, claimable_fees, epoch_loss, pending_deposits, pending_withdrawals)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.EvaluatedAt.UnixMilli(), s.Status, s.Fresh,
		intText(s.LastKnownValue), intText(s.TotalShares), intText(s.ShareRatio),
		intText(s.FreePrincipal), intText(s.ClaimableFees), intText(s.EpochLoss),
		s.PendingDeposits, s.PendingWithdrawals,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}

// intText stores amounts as decimal text; unset amounts become NULL.
func intText(x math.Int) sql.NullString {
	if x.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: x.String(), Valid: true}
}
