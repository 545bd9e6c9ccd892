package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveHelpersRecordAfterInit(t *testing.T) {
	Init(nil, nil)

	before := testutil.ToFloat64(reportExportTotal.WithLabelValues("ddex", ResultSuccess))
	ObserveReportExport("ddex", ResultSuccess, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(reportExportTotal.WithLabelValues("ddex", ResultSuccess)))

	beforeFallback := testutil.ToFloat64(fxFallbackTotal.WithLabelValues("GHS_USD"))
	IncFXFallback("GHS", "USD")
	assert.Equal(t, beforeFallback+1, testutil.ToFloat64(fxFallbackTotal.WithLabelValues("GHS_USD")))

	ObserveBatch(ResultSuccess, time.Second, 3, 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(batchPlays.WithLabelValues("failed")), float64(1))
}

func TestObserveConsumerLagClampsNegative(t *testing.T) {
	Init(nil, nil)
	ObserveConsumerLag("royalty.remittance", -time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(consumerLag.WithLabelValues("royalty.remittance")))
}
