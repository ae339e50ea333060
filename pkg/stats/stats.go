package stats

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
	TERABYTE

	namespace = "btcledger"
)

// Metrics collects the ledger's prometheus metrics. All methods are safe to
// call on a nil *Metrics, in which case they are no-ops.
type Metrics struct {
	registry *prometheus.Registry

	blocksProcessed prometheus.Counter
	utxosCreated    prometheus.Counter
	utxosRemoved    prometheus.Counter
	processedHeight prometheus.Gauge
	feeRate         prometheus.Gauge
	withdrawals     *prometheus.CounterVec
}

// NewMetrics returns a new set of metrics registered in a dedicated registry
// along with the go runtime collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		blocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Number of blocks reconciled.",
		}),
		utxosCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utxos_created_total",
			Help:      "Number of tracked utxos added by block reconciliation.",
		}),
		utxosRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utxos_removed_total",
			Help:      "Number of tracked utxos removed by block reconciliation.",
		}),
		processedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processed_block_height",
			Help:      "Height of the last reconciled block.",
		}),
		feeRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fee_rate_sats_per_vbyte",
			Help:      "Latest fee rate estimate.",
		}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Number of withdrawals by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.blocksProcessed,
		m.utxosCreated,
		m.utxosRemoved,
		m.processedHeight,
		m.feeRate,
		m.withdrawals,
	)
	return m
}

// BlockProcessed records the outcome of the reconciliation of a block.
func (m *Metrics) BlockProcessed(height uint32, created, removed int) {
	if m == nil {
		return
	}
	m.blocksProcessed.Inc()
	m.utxosCreated.Add(float64(created))
	m.utxosRemoved.Add(float64(removed))
	m.processedHeight.Set(float64(height))
}

// FeeRateUpdated records the latest fee rate.
func (m *Metrics) FeeRateUpdated(satsPerVByte uint64) {
	if m == nil {
		return
	}
	m.feeRate.Set(float64(satsPerVByte))
}

// Withdrawal records a withdrawal with the given outcome, ie. broadcasted,
// noop or failed.
func (m *Metrics) Withdrawal(outcome string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(outcome).Inc()
}

// Registry returns the registry of the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the http handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EnableMemoryStatistics enables go routine that periodically prints memory
// usage of the go process.
func EnableMemoryStatistics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// toGigabytes returns given memory in bytes to gigabytes.
func toGigabytes(bytes uint64) float64 {
	return float64(bytes) / GIGABYTE
}

// PrintMemoryStatistics logs memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Debugf(
		"Total allocated: %.3fGB, Heap allocated: %.3fGB, "+
			"Allocated objects count: %v, Freed objects count: %v, "+
			"Num of go routines: %v",
		toGigabytes(memStats.TotalAlloc),
		toGigabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
		runtime.NumGoroutine(),
	)
}
