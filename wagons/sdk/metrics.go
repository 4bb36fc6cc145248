// Copyright 2025 The blobwagon Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as metric labels
const (
	OpGet    = "get"
	OpPut    = "put"
	OpExists = "exists"
	OpStat   = "stat"
	OpList   = "list"
)

var operations = []string{OpGet, OpPut, OpExists, OpStat, OpList}

// TransferMetrics tracks counters and latencies for one wagon
type TransferMetrics struct {
	wagonType string

	bytesDownloaded  int64
	bytesUploaded    int64
	connectsTotal    int64
	disconnectsTotal int64
	connected        int32

	ops map[string]*opMetrics
}

type opMetrics struct {
	total     int64
	errors    int64
	latencies *LatencyHistogram
}

// NewTransferMetrics creates a metrics recorder for a wagon type
func NewTransferMetrics(wagonType string) *TransferMetrics {
	m := &TransferMetrics{
		wagonType: wagonType,
		ops:       make(map[string]*opMetrics, len(operations)),
	}
	for _, op := range operations {
		m.ops[op] = &opMetrics{latencies: NewLatencyHistogram()}
	}
	return m
}

// RecordOperation records one store operation
func (m *TransferMetrics) RecordOperation(op string, duration time.Duration, err error) {
	om, ok := m.ops[op]
	if !ok {
		return
	}
	atomic.AddInt64(&om.total, 1)
	if err != nil {
		atomic.AddInt64(&om.errors, 1)
	}
	om.latencies.Record(duration)
}

// RecordBytes adds to the downloaded or uploaded byte counters
func (m *TransferMetrics) RecordBytes(op string, n int64) {
	switch op {
	case OpGet:
		atomic.AddInt64(&m.bytesDownloaded, n)
	case OpPut:
		atomic.AddInt64(&m.bytesUploaded, n)
	}
}

// RecordConnect records a connect operation
func (m *TransferMetrics) RecordConnect() {
	atomic.AddInt64(&m.connectsTotal, 1)
	atomic.StoreInt32(&m.connected, 1)
}

// RecordDisconnect records a disconnect operation
func (m *TransferMetrics) RecordDisconnect() {
	atomic.AddInt64(&m.disconnectsTotal, 1)
	atomic.StoreInt32(&m.connected, 0)
}

// OperationSnapshot holds the counters of one operation
type OperationSnapshot struct {
	Total      int64         `json:"total"`
	Errors     int64         `json:"errors"`
	LatencyP50 time.Duration `json:"latency_p50"`
	LatencyP95 time.Duration `json:"latency_p95"`
	LatencyP99 time.Duration `json:"latency_p99"`
}

// MetricsSnapshot is a point-in-time copy of TransferMetrics
type MetricsSnapshot struct {
	WagonType        string                       `json:"wagon_type"`
	BytesDownloaded  int64                        `json:"bytes_downloaded"`
	BytesUploaded    int64                        `json:"bytes_uploaded"`
	ConnectsTotal    int64                        `json:"connects_total"`
	DisconnectsTotal int64                        `json:"disconnects_total"`
	Connected        bool                         `json:"connected"`
	Operations       map[string]OperationSnapshot `json:"operations"`
}

// ErrorsTotal sums errors over all operations
func (s *MetricsSnapshot) ErrorsTotal() int64 {
	var n int64
	for _, op := range s.Operations {
		n += op.Errors
	}
	return n
}

// Snapshot returns current metrics
func (m *TransferMetrics) Snapshot() *MetricsSnapshot {
	snap := &MetricsSnapshot{
		WagonType:        m.wagonType,
		BytesDownloaded:  atomic.LoadInt64(&m.bytesDownloaded),
		BytesUploaded:    atomic.LoadInt64(&m.bytesUploaded),
		ConnectsTotal:    atomic.LoadInt64(&m.connectsTotal),
		DisconnectsTotal: atomic.LoadInt64(&m.disconnectsTotal),
		Connected:        atomic.LoadInt32(&m.connected) == 1,
		Operations:       make(map[string]OperationSnapshot, len(m.ops)),
	}
	for name, om := range m.ops {
		snap.Operations[name] = OperationSnapshot{
			Total:      atomic.LoadInt64(&om.total),
			Errors:     atomic.LoadInt64(&om.errors),
			LatencyP50: om.latencies.Percentile(0.5),
			LatencyP95: om.latencies.Percentile(0.95),
			LatencyP99: om.latencies.Percentile(0.99),
		}
	}
	return snap
}

// Reset zeroes all counters
func (m *TransferMetrics) Reset() {
	atomic.StoreInt64(&m.bytesDownloaded, 0)
	atomic.StoreInt64(&m.bytesUploaded, 0)
	atomic.StoreInt64(&m.connectsTotal, 0)
	atomic.StoreInt64(&m.disconnectsTotal, 0)
	for _, om := range m.ops {
		atomic.StoreInt64(&om.total, 0)
		atomic.StoreInt64(&om.errors, 0)
		om.latencies.Reset()
	}
}

// LatencyHistogram keeps a bounded window of samples for percentiles
type LatencyHistogram struct {
	samples []time.Duration
	maxSize int
	mu      sync.Mutex
}

// NewLatencyHistogram creates a new latency histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		samples: make([]time.Duration, 0, 64),
		maxSize: 10000,
	}
}

// Record adds a latency sample
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[len(h.samples)/2:]
	}
	h.samples = append(h.samples, d)
}

// Percentile calculates the given percentile
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(h.samples))
	copy(sorted, h.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Sum returns the total of all samples
func (h *LatencyHistogram) Sum() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	var sum time.Duration
	for _, s := range h.samples {
		sum += s
	}
	return sum
}

// Reset clears all samples
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
}

// Count returns the number of samples
func (h *LatencyHistogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// Collector exports the metrics of registered wagons to Prometheus
type Collector struct {
	wagons map[string]*TransferMetrics
	mu     sync.RWMutex

	operationsDesc *prometheus.Desc
	errorsDesc     *prometheus.Desc
	latencyDesc    *prometheus.Desc
	bytesDesc      *prometheus.Desc
	connectsDesc   *prometheus.Desc
	connectedDesc  *prometheus.Desc
}

// NewCollector creates a collector with metric names prefixed by namespace
func NewCollector(namespace string) *Collector {
	labels := []string{"wagon", "type"}
	return &Collector{
		wagons: make(map[string]*TransferMetrics),
		operationsDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "operations_total"),
			"Total number of store operations", append(labels, "operation"), nil),
		errorsDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "operation_errors_total"),
			"Total number of failed store operations", append(labels, "operation"), nil),
		latencyDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "operation_latency_seconds"),
			"Store operation latency", append(labels, "operation"), nil),
		bytesDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "transferred_bytes_total"),
			"Bytes moved by transfers", append(labels, "direction"), nil),
		connectsDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "connects_total"),
			"Total number of successful connects", labels, nil),
		connectedDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "connected"),
			"Whether the wagon is connected", labels, nil),
	}
}

// Register adds a wagon's metrics under name
func (c *Collector) Register(name string, m *TransferMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wagons[name] = m
}

// Unregister removes a wagon's metrics
func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.wagons, name)
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.operationsDesc
	ch <- c.errorsDesc
	ch <- c.latencyDesc
	ch <- c.bytesDesc
	ch <- c.connectsDesc
	ch <- c.connectedDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, m := range c.wagons {
		snap := m.Snapshot()
		for _, op := range operations {
			opSnap := snap.Operations[op]
			ch <- prometheus.MustNewConstMetric(c.operationsDesc, prometheus.CounterValue, float64(opSnap.Total), name, snap.WagonType, op)
			ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(opSnap.Errors), name, snap.WagonType, op)

			h := m.ops[op].latencies
			ch <- prometheus.MustNewConstSummary(c.latencyDesc, uint64(opSnap.Total), h.Sum().Seconds(),
				map[float64]float64{
					0.5:  opSnap.LatencyP50.Seconds(),
					0.95: opSnap.LatencyP95.Seconds(),
					0.99: opSnap.LatencyP99.Seconds(),
				}, name, snap.WagonType, op)
		}

		ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.CounterValue, float64(snap.BytesDownloaded), name, snap.WagonType, "download")
		ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.CounterValue, float64(snap.BytesUploaded), name, snap.WagonType, "upload")
		ch <- prometheus.MustNewConstMetric(c.connectsDesc, prometheus.CounterValue, float64(snap.ConnectsTotal), name, snap.WagonType)

		connected := 0.0
		if snap.Connected {
			connected = 1
		}
		ch <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, connected, name, snap.WagonType)
	}
}

var _ prometheus.Collector = (*Collector)(nil)

// OperationTimer provides convenient timing for operations
type OperationTimer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *OperationTimer {
	return &OperationTimer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was started
func (t *OperationTimer) Duration() time.Duration {
	return time.Since(t.start)
}
