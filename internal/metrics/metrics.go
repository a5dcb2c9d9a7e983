package metrics

import (
	"net/http"
	"time"

	"cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
)

const namespace = "yield_vault"

var (
	// Registry holds the vault's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	vaultStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "status",
			Help:      "1 for the vault's current status, 0 otherwise.",
		},
		[]string{"status"},
	)

	totalValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_value_usd",
			Help:      "Last known aggregate USD value of the vault.",
		},
	)

	totalShares = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_shares",
			Help:      "Outstanding shares.",
		},
	)

	shareRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "share_ratio",
			Help:      "USD value per share.",
		},
	)

	epochLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "epoch_loss_usd",
			Help:      "Loss accumulated in the current epoch.",
		},
	)

	valueFresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "value_fresh",
			Help:      "1 when every constituent was valued at the last evaluation instant.",
		},
	)

	pendingRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "pending",
			Help:      "Pending requests by kind.",
		},
		[]string{"kind"},
	)

	operationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "running_seconds",
			Help:      "How long the operation in flight has been running, 0 when idle.",
		},
	)

	calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "total",
			Help:      "Vault calls by method and error kind.",
		},
		[]string{"method", "result"},
	)

	oracleUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "updates_total",
			Help:      "Oracle cache updates by asset and result.",
		},
		[]string{"asset", "result"},
	)

	oraclePrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "price_usd",
			Help:      "Last cached price per asset.",
		},
		[]string{"asset"},
	)
)

func init() {
	Registry.MustRegister(
		vaultStatus,
		totalValue,
		totalShares,
		shareRatio,
		epochLoss,
		valueFresh,
		pendingRequests,
		operationSeconds,
		calls,
		oracleUpdates,
		oraclePrice,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveSummary publishes the gauges derived from a vault summary.
func ObserveSummary(s model.Summary, now time.Time) {
	for _, st := range []model.Status{model.StatusNormal, model.StatusDuringOperation, model.StatusDisabled} {
		v := 0.0
		if st.String() == s.Status {
			v = 1
		}
		vaultStatus.WithLabelValues(st.String()).Set(v)
	}
	totalValue.Set(Float(s.LastKnownValue, calculator.ValueDecimals))
	totalShares.Set(Float(s.TotalShares, calculator.ValueDecimals))
	shareRatio.Set(Float(s.ShareRatio, calculator.Decimals))
	epochLoss.Set(Float(s.EpochLoss, calculator.ValueDecimals))
	if s.Fresh {
		valueFresh.Set(1)
	} else {
		valueFresh.Set(0)
	}
	pendingRequests.WithLabelValues("deposit").Set(float64(s.PendingDeposits))
	pendingRequests.WithLabelValues("withdraw").Set(float64(s.PendingWithdrawals))
	if s.Operation != nil {
		operationSeconds.Set(now.Sub(s.Operation.StartedAt).Seconds())
	} else {
		operationSeconds.Set(0)
	}
}

// ObserveCall counts one vault call labelled by its error kind.
func ObserveCall(method string, err error) {
	calls.WithLabelValues(method, model.ErrorKind(err)).Inc()
}

// ObserveOracleUpdate counts one cache update and, on success, records the
// canonical price.
func ObserveOracleUpdate(asset string, price math.Int, err error) {
	oracleUpdates.WithLabelValues(asset, model.ErrorKind(err)).Inc()
	if err == nil {
		oraclePrice.WithLabelValues(asset).Set(Float(price, calculator.Decimals))
	}
}

// Float converts a fixed-point integer with the given decimals for display.
func Float(x math.Int, decimals uint8) float64 {
	if x.IsNil() {
		return 0
	}
	return decimal.NewFromBigInt(x.BigInt(), -int32(decimals)).InexactFloat64()
}
