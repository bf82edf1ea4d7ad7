package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stream"

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "transfers_total",
		Help:      "Ledger records written by transfer type and resulting status.",
	}, []string{"type", "status"})

	escrowClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escrow",
		Name:      "claims_total",
		Help:      "Escrow claim attempts by result.",
	}, []string{"result"})

	sliceRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "slices",
		Name:      "runs_total",
		Help:      "Daily slice distribution runs by outcome.",
	}, []string{"status"})
	sliceTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "slices",
		Name:      "transfers_total",
		Help:      "Slice transfers attempted in distribution runs.",
	}, []string{"status"})

	reconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "records_total",
		Help:      "Pending records examined by the reconcile sweep by outcome.",
	}, []string{"outcome"})

	chainRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "operations_total",
		Help:      "Count of chain RPC operations.",
	}, []string{"operation", "status"})
	chainRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "operation_duration_seconds",
		Help:      "Duration of chain RPC operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveTransfer 记录一次账本写入
func ObserveTransfer(txType, txStatus string) {
	transfersTotal.WithLabelValues(txType, txStatus).Inc()
}

// ObserveEscrowClaim result: claimed, rejected, locked, failed, review
func ObserveEscrowClaim(result string) {
	escrowClaimsTotal.WithLabelValues(result).Inc()
}

// ObserveSliceRun 记录一次分发及其中成功/失败的转账数
func ObserveSliceRun(err error, succeeded, failed int) {
	sliceRunsTotal.WithLabelValues(status(err)).Inc()
	sliceTransfersTotal.WithLabelValues("success").Add(float64(succeeded))
	sliceTransfersTotal.WithLabelValues("error").Add(float64(failed))
}

// ObserveReconcile outcome: resolved, failed, abandoned, waiting, error
func ObserveReconcile(outcome string) {
	reconciledTotal.WithLabelValues(outcome).Inc()
}

// ObserveChain 记录一次链上调用
func ObserveChain(operation string, err error, started time.Time) {
	s := status(err)
	chainRequestsTotal.WithLabelValues(operation, s).Inc()
	chainRequestDuration.WithLabelValues(operation, s).Observe(time.Since(started).Seconds())
}
