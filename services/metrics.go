package services

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/logging"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// MetricsService handles Prometheus metrics collection and exposition.
// All recording methods are no-ops on a nil receiver.
type MetricsService struct {
	// Prometheus metrics
	transactionsTotal   *prometheus.CounterVec
	historyChunksTotal  *prometheus.CounterVec
	historyScanDuration *prometheus.HistogramVec
	cacheLookupsTotal   *prometheus.CounterVec

	// running totals for GetMetricsSummary
	operations map[string]map[string]int
	cacheHits  int
	cacheMiss  int

	mu       sync.RWMutex
	logger   zerolog.Logger
	registry *prometheus.Registry
}

// NewMetricsService creates a new metrics service
func NewMetricsService(logger zerolog.Logger) *MetricsService {
	registry := prometheus.NewRegistry()

	transactionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transactions_total",
			Help: "Total number of state-changing operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	historyChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_history_chunks_total",
			Help: "Total number of history block ranges scanned per chain and outcome",
		},
		[]string{"chain_id", "chain_name", "outcome"},
	)

	historyScanDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_history_scan_duration_seconds",
			Help:    "Duration of full history scans per chain",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"chain_id", "chain_name"},
	)

	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_read_cache_lookups_total",
			Help: "Total number of read cache lookups by result",
		},
		[]string{"result"},
	)

	// Register metrics
	registry.MustRegister(transactionsTotal)
	registry.MustRegister(historyChunksTotal)
	registry.MustRegister(historyScanDuration)
	registry.MustRegister(cacheLookupsTotal)

	return &MetricsService{
		transactionsTotal:   transactionsTotal,
		historyChunksTotal:  historyChunksTotal,
		historyScanDuration: historyScanDuration,
		cacheLookupsTotal:   cacheLookupsTotal,
		operations:          make(map[string]map[string]int),
		logger:              logger.With().Str(logging.FieldModule, "metrics").Logger(),
		registry:            registry,
	}
}

// RecordTransaction counts a finished state-changing operation
func (m *MetricsService) RecordTransaction(operation string, success bool) {
	if m == nil {
		return
	}

	outcome := outcomeSuccess
	if !success {
		outcome = outcomeFailure
	}

	m.transactionsTotal.WithLabelValues(operation, outcome).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.operations[operation] == nil {
		m.operations[operation] = make(map[string]int)
	}
	m.operations[operation][outcome]++
}

// RecordHistoryChunk counts a scanned block range
func (m *MetricsService) RecordHistoryChunk(chainID uint64, success bool) {
	if m == nil {
		return
	}

	outcome := outcomeSuccess
	if !success {
		outcome = outcomeFailure
	}

	m.historyChunksTotal.WithLabelValues(chainIDLabel(chainID), config.ChainName(chainID), outcome).Inc()
}

// ObserveHistoryScan records the duration of a complete history scan
func (m *MetricsService) ObserveHistoryScan(chainID uint64, d time.Duration) {
	if m == nil {
		return
	}

	m.historyScanDuration.WithLabelValues(chainIDLabel(chainID), config.ChainName(chainID)).Observe(d.Seconds())
}

// RecordCacheLookup counts a read cache hit or miss
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	m.cacheLookupsTotal.WithLabelValues(result).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	if hit {
		m.cacheHits++
	} else {
		m.cacheMiss++
	}
}

// GetHandler returns the Prometheus metrics HTTP handler
func (m *MetricsService) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// GetMetricsSummary returns a summary of all metrics for debugging
func (m *MetricsService) GetMetricsSummary() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	operations := make(map[string]interface{}, len(m.operations))
	for name, outcomes := range m.operations {
		operations[name] = map[string]interface{}{
			outcomeSuccess: outcomes[outcomeSuccess],
			outcomeFailure: outcomes[outcomeFailure],
		}
	}

	return map[string]interface{}{
		"operations": operations,
		"cache": map[string]interface{}{
			"hits":   m.cacheHits,
			"misses": m.cacheMiss,
		},
		"timestamp": time.Now(),
	}
}

func chainIDLabel(chainID uint64) string {
	return fmt.Sprintf("%d", chainID)
}
