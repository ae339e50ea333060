package stats_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcledger/pkg/stats"
)

func TestMetrics(t *testing.T) {
	m := stats.NewMetrics()

	m.BlockProcessed(100, 2, 1)
	m.BlockProcessed(101, 1, 0)
	m.FeeRateUpdated(7)
	m.Withdrawal("broadcasted")

	expected := `
# HELP btcledger_processed_block_height Height of the last reconciled block.
# TYPE btcledger_processed_block_height gauge
btcledger_processed_block_height 101
# HELP btcledger_utxos_created_total Number of tracked utxos added by block reconciliation.
# TYPE btcledger_utxos_created_total counter
btcledger_utxos_created_total 3
`
	require.NoError(t, testutil.GatherAndCompare(
		m.Registry(), strings.NewReader(expected),
		"btcledger_processed_block_height", "btcledger_utxos_created_total",
	))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "btcledger_fee_rate_sats_per_vbyte 7")
	require.Contains(t, rec.Body.String(), `btcledger_withdrawals_total{outcome="broadcasted"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *stats.Metrics
	require.NotPanics(t, func() {
		m.BlockProcessed(1, 1, 1)
		m.FeeRateUpdated(1)
		m.Withdrawal("noop")
	})
}
