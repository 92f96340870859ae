package infra

import (
	"sync/atomic"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ticksProcessed   atomic.Uint64
	ticksSkipped     atomic.Uint64
	ordersPlaced     atomic.Uint64
	ordersSettled    atomic.Uint64
	clampHits        atomic.Uint64
	paymentRollbacks atomic.Uint64
	errorsTotal      atomic.Uint64

	// Gauges
	activeStreams atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTick records one completed price tick.
func (m *Metrics) RecordTick() {
	m.ticksProcessed.Add(1)
}

// RecordTickSkipped records a tick skipped by the recover path.
func (m *Metrics) RecordTickSkipped() {
	m.ticksSkipped.Add(1)
}

// RecordOrderPlaced records an accepted buy/sell.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// RecordOrderSettled records a matured order settlement.
func (m *Metrics) RecordOrderSettled() {
	m.ordersSettled.Add(1)
}

// RecordClampHit records a tick whose raw price breached a day/week bound.
func (m *Metrics) RecordClampHit() {
	m.clampHits.Add(1)
}

// RecordPaymentRollback records a compensating rollback of a payment leg.
func (m *Metrics) RecordPaymentRollback() {
	m.paymentRollbacks.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementStreams increments connected stream clients by 1.
func (m *Metrics) IncrementStreams() {
	m.activeStreams.Add(1)
}

// DecrementStreams decrements connected stream clients by 1.
func (m *Metrics) DecrementStreams() {
	m.activeStreams.Add(-1)
}

// Snapshot returns current counter values for logging/inspection.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"ticks_processed":   m.ticksProcessed.Load(),
		"ticks_skipped":     m.ticksSkipped.Load(),
		"orders_placed":     m.ordersPlaced.Load(),
		"orders_settled":    m.ordersSettled.Load(),
		"clamp_hits":        m.clampHits.Load(),
		"payment_rollbacks": m.paymentRollbacks.Load(),
		"errors_total":      m.errorsTotal.Load(),
	}
}
