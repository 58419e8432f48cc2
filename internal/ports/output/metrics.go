package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncIngest counts one capability ingestion per service type.
	IncIngest(serviceType string, success bool)

	// ObserveIngestDuration records how long a full fetch+parse+upsert took.
	ObserveIngestDuration(serviceType string, duration time.Duration)

	// IncResolve counts one parameter resolution per request kind.
	IncResolve(kind string, success bool)

	// IncExecute counts one upstream preview execution per request kind.
	IncExecute(kind string, success bool)

	// ObserveUpstreamDuration records upstream round-trip time.
	ObserveUpstreamDuration(operation string, duration time.Duration)

	// SetLayersRegistered sets the current registry size.
	SetLayersRegistered(count int)

	// SetServicesRegistered sets the number of registered service scopes.
	SetServicesRegistered(count int)

	// IncStorageOperations counts artifact storage operations.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records artifact storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncIngest implements MetricsCollector.
func (n *NoOpMetrics) IncIngest(_ string, _ bool) {}

// ObserveIngestDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveIngestDuration(_ string, _ time.Duration) {}

// IncResolve implements MetricsCollector.
func (n *NoOpMetrics) IncResolve(_ string, _ bool) {}

// IncExecute implements MetricsCollector.
func (n *NoOpMetrics) IncExecute(_ string, _ bool) {}

// ObserveUpstreamDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveUpstreamDuration(_ string, _ time.Duration) {}

// SetLayersRegistered implements MetricsCollector.
func (n *NoOpMetrics) SetLayersRegistered(_ int) {}

// SetServicesRegistered implements MetricsCollector.
func (n *NoOpMetrics) SetServicesRegistered(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
