package application

import (
	"log/slog"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

const ModuleName = "engagement-finance/milestone-escrow"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func ResolveMetrics(metrics ports.Metrics) ports.Metrics {
	if metrics != nil {
		return metrics
	}
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) ObserveVerification(string, time.Duration) {}
func (nopMetrics) ObserveFundsOperation(string, error)       {}
func (nopMetrics) ObserveCommit(string, error)               {}
