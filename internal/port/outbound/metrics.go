package outbound

import "time"

// MetricsPort records ledger and gateway metrics.
type MetricsPort interface {
	RecordAuthorization(result string)
	RecordSettlement(result string, deficit int64)
	RecordGrant(status string, credits int64)
	RecordGatewayCall(provider, model, status string, tokens int64, duration time.Duration)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordAuthorization(string) {}
func (NopMetrics) RecordSettlement(string, int64) {}
func (NopMetrics) RecordGrant(string, int64) {}
func (NopMetrics) RecordGatewayCall(string, string, string, int64, time.Duration) {}

var _ MetricsPort = NopMetrics{}
