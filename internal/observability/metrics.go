package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/memoir-studio-backend/internal/platform/envutil"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	generationStarted  *CounterVec
	generationFinished *CounterVec
	generationReaped   *CounterVec
	rateLimited        *CounterVec

	populateOutcomes *CounterVec
	populateNodes    *CounterVec
	populateLatency  *HistogramVec

	mediaCache *CounterVec

	dbStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered metrics set. Init should be used by the service.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("ms_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"ms_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("ms_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("ms_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec(
			"ms_llm_request_duration_seconds",
			"LLM request latency in seconds by model/endpoint/status.",
			[]string{"model", "endpoint", "status"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		llmTokens:    NewCounterVec("ms_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		aggregateOps: NewCounterVec("ms_aggregate_operations_total", "Aggregate write operations by name/status.", []string{"aggregate_op", "status"}),
		aggregateLatency: NewHistogramVec(
			"ms_aggregate_operation_duration_seconds",
			"Aggregate write latency in seconds by name/status.",
			[]string{"aggregate_op", "status"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		),
		aggregateConflicts: NewCounterVec("ms_aggregate_conflicts_total", "Aggregate write conflicts by name.", []string{"aggregate_op"}),
		aggregateRetries:   NewCounterVec("ms_aggregate_retries_total", "Aggregate retryable failures by name.", []string{"aggregate_op"}),
		generationStarted:  NewCounterVec("ms_generation_started_total", "Generations admitted or rejected by kind/outcome.", []string{"kind", "outcome"}),
		generationFinished: NewCounterVec("ms_generation_finished_total", "Generations finalized by kind/status.", []string{"kind", "status"}),
		generationReaped:   NewCounterVec("ms_generation_reaped_total", "Generating rows expired by the reaper by kind.", []string{"kind"}),
		rateLimited:        NewCounterVec("ms_rate_limited_total", "Requests rejected by the rate limiter by scope.", []string{"scope"}),
		populateOutcomes:   NewCounterVec("ms_populate_total", "Population runs by outcome.", []string{"outcome"}),
		populateNodes:      NewCounterVec("ms_populate_nodes_total", "Canvas nodes touched by population by action.", []string{"action"}),
		populateLatency: NewHistogramVec(
			"ms_populate_duration_seconds",
			"Population latency in seconds by outcome.",
			[]string{"outcome"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		mediaCache: NewCounterVec("ms_media_cache_total", "Media cache lookups by provider/result.", []string{"provider", "result"}),
		dbStats:    NewGaugeVec("ms_db_stats", "Database connection stats.", []string{"metric"}),
		redisUp:    NewGauge("ms_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing:  NewGauge("ms_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	families := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.generationStarted, m.generationFinished, m.generationReaped, m.rateLimited,
		m.populateOutcomes, m.populateNodes, m.populateLatency,
		m.mediaCache,
		m.dbStats, m.redisUp, m.redisPing,
	}
	for _, f := range families {
		if err := f.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	endpoint = orUnknown(endpoint)
	if status = strings.TrimSpace(status); status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	name, status = orUnknown(name), orUnknown(status)
	m.aggregateOps.Inc(name, status)
	m.aggregateLatency.Observe(dur.Seconds(), name, status)
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(orUnknown(name))
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(orUnknown(name))
}

func (m *Metrics) IncGenerationStarted(kind, outcome string) {
	if m == nil {
		return
	}
	m.generationStarted.Inc(orUnknown(kind), orUnknown(outcome))
}

func (m *Metrics) IncGenerationFinished(kind, status string) {
	if m == nil {
		return
	}
	m.generationFinished.Inc(orUnknown(kind), orUnknown(status))
}

func (m *Metrics) AddGenerationReaped(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.generationReaped.Add(float64(n), orUnknown(kind))
}

func (m *Metrics) IncRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.Inc(orUnknown(scope))
}

func (m *Metrics) ObservePopulate(outcome string, created, updated, skipped int, dur time.Duration) {
	if m == nil {
		return
	}
	outcome = orUnknown(outcome)
	m.populateOutcomes.Inc(outcome)
	m.populateLatency.Observe(dur.Seconds(), outcome)
	if created > 0 {
		m.populateNodes.Add(float64(created), "created")
	}
	if updated > 0 {
		m.populateNodes.Add(float64(updated), "updated")
	}
	if skipped > 0 {
		m.populateNodes.Add(float64(skipped), "skipped")
	}
}

func (m *Metrics) IncMediaCache(provider string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.mediaCache.Inc(orUnknown(provider), result)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.dbStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

// StartRedisCollector pings through the shared client; the caller owns its lifecycle.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
