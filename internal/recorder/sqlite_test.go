package recorder

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldVault/internal/model"
)

func openRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_Operations(t *testing.T) {
	r := openRecorder(t)
	at := time.UnixMilli(1_700_000_000_123)

	require.NoError(t, r.RecordOperation(&OperationEvent{
		At: at, OperationID: 7, Operator: "op-1", Action: "BEGIN",
		Keys: []string{"lend", "pool"}, Principal: math.NewInt(500),
		ValueBefore: math.NewInt(1_000),
	}))
	require.NoError(t, r.RecordOperation(&OperationEvent{
		At: at.Add(time.Minute), OperationID: 7, Operator: "op-1", Action: "COMPLETE",
		ValueBefore: math.NewInt(1_000), ValueAfter: math.NewInt(999),
		Loss: math.NewInt(1), EpochLoss: math.NewInt(1),
	}))

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM operations WHERE operation_id = 7`).Scan(&n))
	assert.Equal(t, 2, n)

	var ts int64
	var keys string
	var after sql.NullString
	require.NoError(t, r.db.QueryRow(
		`SELECT timestamp, asset_keys, value_after FROM operations WHERE action = 'BEGIN'`,
	).Scan(&ts, &keys, &after))
	assert.Equal(t, at.UnixMilli(), ts)
	assert.Equal(t, "lend,pool", keys)
	assert.False(t, after.Valid)

	var loss string
	require.NoError(t, r.db.QueryRow(`SELECT loss FROM operations WHERE action = 'COMPLETE'`).Scan(&loss))
	assert.Equal(t, "1", loss)
}

func TestSQLiteRecorder_RequestsAndSnapshots(t *testing.T) {
	r := openRecorder(t)
	at := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, r.RecordRequest(&RequestEvent{
		At: at, RequestID: 1, Kind: "DEPOSIT", Action: "EXECUTE",
		ReceiptID: "r-1", Account: "alice",
		Amount: math.NewInt(1_000_000_000), Shares: math.NewInt(1_000_000_000_000), Fee: math.ZeroInt(),
	}))
	var shares string
	require.NoError(t, r.db.QueryRow(`SELECT shares FROM requests WHERE request_id = 1`).Scan(&shares))
	assert.Equal(t, "1000000000000", shares)

	require.NoError(t, r.RecordSnapshot(&model.Summary{
		Status: "NORMAL", Fresh: true, EvaluatedAt: at,
		LastKnownValue: math.NewInt(1_000_000_000_000), TotalShares: math.NewInt(1_000_000_000_000),
		ShareRatio: math.NewIntWithDecimal(1, 18), PendingDeposits: 2,
	}))
	var status, ratio string
	var pending int
	require.NoError(t, r.db.QueryRow(
		`SELECT status, share_ratio, pending_deposits FROM value_snapshots`,
	).Scan(&status, &ratio, &pending))
	assert.Equal(t, "NORMAL", status)
	assert.Equal(t, "1000000000000000000", ratio)
	assert.Equal(t, 2, pending)
}

func TestSQLiteRecorder_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	r, err := NewSQLiteRecorder(path, nil)
	require.NoError(t, err)
	require.NoError(t, r.RecordRequest(&RequestEvent{At: time.Now(), RequestID: 3, Kind: "WITHDRAW", Action: "SUBMIT"}))
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path, nil)
	require.NoError(t, err)
	defer r.Close()
	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM requests`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordOperation(&OperationEvent{}))
	assert.NoError(t, r.RecordRequest(&RequestEvent{}))
	assert.NoError(t, r.RecordSnapshot(&model.Summary{}))
	assert.NoError(t, r.Close())
}
