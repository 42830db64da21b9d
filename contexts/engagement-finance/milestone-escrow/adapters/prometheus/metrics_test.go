package prometheusadapter

import (
	"errors"
	"testing"
	"time"

	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsLabelsByResult(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveFundsOperation("transfer", nil)
	metrics.ObserveFundsOperation("transfer", domainerrors.Upstream("transfer", errors.New("boom")))
	metrics.ObserveCommit("release_payment", domainerrors.ErrConcurrentModification)
	metrics.ObserveVerification("auto-approved", 2*time.Second)

	if got := testutil.ToFloat64(metrics.fundsOperations.WithLabelValues("transfer", "ok")); got != 1 {
		t.Fatalf("expected one ok transfer, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.fundsOperations.WithLabelValues("transfer", "upstream")); got != 1 {
		t.Fatalf("expected one upstream transfer failure, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.commits.WithLabelValues("release_payment", "conflict")); got != 1 {
		t.Fatalf("expected one conflicting commit, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.verificationOutcomes.WithLabelValues("auto-approved")); got != 1 {
		t.Fatalf("expected one auto-approved verification, got %v", got)
	}
}
