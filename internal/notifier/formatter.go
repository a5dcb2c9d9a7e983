package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"YieldVault/internal/calculator"
	"YieldVault/internal/fund"
	"YieldVault/internal/model"
	"YieldVault/internal/vault"
)

// USD renders a ValueDecimals-scaled amount as dollars.
func USD(x math.Int) string {
	if x.IsNil() {
		return "n/a"
	}
	return "$" + decimal.NewFromBigInt(x.BigInt(), -calculator.ValueDecimals).StringFixed(2)
}

// Ratio renders a Decimals-scaled ratio.
func Ratio(x math.Int) string {
	if x.IsNil() {
		return "n/a"
	}
	return decimal.NewFromBigInt(x.BigInt(), -calculator.Decimals).StringFixed(6)
}

// Shares renders a share amount.
func Shares(x math.Int) string {
	if x.IsNil() {
		return "n/a"
	}
	return decimal.NewFromBigInt(x.BigInt(), -calculator.ValueDecimals).StringFixed(4)
}

// FormatSummary formats the vault status for /status.
func FormatSummary(s model.Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏦 <b>Vault %s</b>\n\n", shortID(s.VaultID)))
	b.WriteString(fmt.Sprintf("Status: %s\n", s.Status))
	b.WriteString(fmt.Sprintf("Total value: %s", USD(s.LastKnownValue)))
	if !s.Fresh {
		b.WriteString(" (last known)")
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Shares: %s | ratio %s\n", Shares(s.TotalShares), Ratio(s.ShareRatio)))
	b.WriteString(fmt.Sprintf("Free principal: %s\n", s.FreePrincipal))
	b.WriteString(fmt.Sprintf("Claimable fees: %s\n", s.ClaimableFees))
	b.WriteString(fmt.Sprintf("Epoch loss: %s of %s base (tolerance %d bps)\n",
		USD(s.EpochLoss), USD(s.EpochBaseValue), s.LossToleranceBps))
	b.WriteString(fmt.Sprintf("Pending: %d deposits, %d withdrawals\n", s.PendingDeposits, s.PendingWithdrawals))
	if op := s.Operation; op != nil {
		b.WriteString(fmt.Sprintf("\n⚙️ Operation #%d %s since %s\n", op.ID, op.Phase, op.StartedAt.UTC().Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("Borrowed: %s\n", strings.Join(op.BorrowedKeys, ", ")))
	}
	return b.String()
}

// FormatValueAges formats how old each constituent's value is for /value.
func FormatValueAges(ages map[string]time.Duration) string {
	keys := make([]string, 0, len(ages))
	for k := range ages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("⏱ <b>Value ages</b>\n\n")
	for _, k := range keys {
		if ages[k] < 0 {
			b.WriteString(fmt.Sprintf("%s: never valued\n", k))
			continue
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", k, ages[k].Truncate(time.Second)))
	}
	return b.String()
}

// FormatDailyReport formats the daily value report.
func FormatDailyReport(s model.Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Daily report</b> | %s\n\n", s.EvaluatedAt.UTC().Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Total value: %s\n", USD(s.LastKnownValue)))
	b.WriteString(fmt.Sprintf("Share ratio: %s\n", Ratio(s.ShareRatio)))
	b.WriteString(fmt.Sprintf("Epoch loss: %s\n", USD(s.EpochLoss)))
	if !s.Fresh {
		b.WriteString("\n⚠️ Some constituents could not be valued at report time\n")
	}
	return b.String()
}

// FormatOperationAlert formats a stuck-operation warning.
func FormatOperationAlert(a *fund.OperationAlert) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ <b>Operation #%d stuck</b>\n\n", a.Operation.ID))
	b.WriteString(fmt.Sprintf("Phase: %s\n", a.Operation.Phase))
	b.WriteString(fmt.Sprintf("Running for: %s\n", a.Running.Truncate(time.Second)))
	b.WriteString(fmt.Sprintf("Operator: %s\n", a.Operation.Operator))
	b.WriteString(fmt.Sprintf("Borrowed: %s\n", strings.Join(a.Operation.BorrowedKeys, ", ")))
	if a.EscapeHatchOpen {
		b.WriteString("\n🚪 Escape hatch is open: admin may abort the operation")
	}
	return b.String()
}

// FormatOperationResult formats a completed or aborted operation.
func FormatOperationResult(res vault.OperationResult, aborted bool) string {
	var b strings.Builder
	if aborted {
		b.WriteString(fmt.Sprintf("🛑 <b>Operation #%d aborted</b>\n\n", res.OperationID))
		b.WriteString(fmt.Sprintf("Written off: %s\n", strings.Join(res.WrittenOff, ", ")))
	} else {
		b.WriteString(fmt.Sprintf("✅ <b>Operation #%d complete</b>\n\n", res.OperationID))
		b.WriteString(fmt.Sprintf("Value: %s → %s\n", USD(res.ValueBefore), USD(res.ValueAfter)))
	}
	b.WriteString(fmt.Sprintf("Loss: %s | epoch loss %s\n", USD(res.Loss), USD(res.EpochLoss)))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
