package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the service exports.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	ChatStreamsTotal      CounterVec
	ChatActiveStreams     GaugeVec
	ChatStreamDuration    HistogramVec
	ChatChunksTotal       CounterVec
	ChatMalformedObjects  CounterVec
	UpstreamRequestsTotal CounterVec
	UpstreamLatency       HistogramVec

	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	MoleculeSearchTotal    CounterVec
	MoleculeSearchDuration HistogramVec
	DocumentsTaggedTotal   CounterVec

	DBPoolOpen        GaugeVec
	DBPoolInUse       GaugeVec
	HealthCheckStatus GaugeVec
}

var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultStreamDurationBuckets = []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path"),
		HTTPActiveRequests:  c.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method"),

		ChatStreamsTotal:      c.RegisterCounter("chat_streams_total", "Chat streams by outcome", "status"),
		ChatActiveStreams:     c.RegisterGauge("chat_active_streams", "Chat streams currently open", "mode"),
		ChatStreamDuration:    c.RegisterHistogram("chat_stream_duration_seconds", "Chat stream wall time", DefaultStreamDurationBuckets, "status"),
		ChatChunksTotal:       c.RegisterCounter("chat_chunks_total", "Chunk events sent to clients", "kind"),
		ChatMalformedObjects:  c.RegisterCounter("chat_malformed_objects_total", "Upstream objects skipped as malformed"),
		UpstreamRequestsTotal: c.RegisterCounter("upstream_requests_total", "Vertex AI requests", "operation", "status"),
		UpstreamLatency:       c.RegisterHistogram("upstream_latency_seconds", "Time to first upstream byte", DefaultStreamDurationBuckets, "operation"),

		CacheHitsTotal:   c.RegisterCounter("cache_hits_total", "Cache hits", "cache"),
		CacheMissesTotal: c.RegisterCounter("cache_misses_total", "Cache misses", "cache"),

		MoleculeSearchTotal:    c.RegisterCounter("molecule_search_total", "Molecule searches", "type", "status"),
		MoleculeSearchDuration: c.RegisterHistogram("molecule_search_duration_seconds", "Molecule search duration", DefaultDBDurationBuckets, "type"),
		DocumentsTaggedTotal:   c.RegisterCounter("documents_tagged_total", "Objects processed by notebook id tagging", "result"),

		DBPoolOpen:        c.RegisterGauge("db_pool_open_connections", "Open database connections"),
		DBPoolInUse:       c.RegisterGauge("db_pool_in_use_connections", "Database connections in use"),
		HealthCheckStatus: c.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component"),
	}
}

// NewNoopMetrics is an AppMetrics that records nothing.
func NewNoopMetrics() *AppMetrics {
	return NewAppMetrics(NewNoopCollector())
}

func (m *AppMetrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ChatStreamSummary is what one finished stream reports.
type ChatStreamSummary struct {
	Status    string
	Duration  time.Duration
	Chunks    int
	Replaces  int
	Malformed int
}

func (m *AppMetrics) RecordChatStream(s ChatStreamSummary) {
	m.ChatStreamsTotal.WithLabelValues(s.Status).Inc()
	m.ChatStreamDuration.WithLabelValues(s.Status).Observe(s.Duration.Seconds())
	if s.Chunks > 0 {
		m.ChatChunksTotal.WithLabelValues("delta").Add(float64(s.Chunks))
	}
	if s.Replaces > 0 {
		m.ChatChunksTotal.WithLabelValues("replace").Add(float64(s.Replaces))
	}
	if s.Malformed > 0 {
		m.ChatMalformedObjects.WithLabelValues().Add(float64(s.Malformed))
	}
}

func (m *AppMetrics) RecordUpstream(operation string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.UpstreamRequestsTotal.WithLabelValues(operation, status).Inc()
	m.UpstreamLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

func (m *AppMetrics) RecordMoleculeSearch(searchType string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MoleculeSearchTotal.WithLabelValues(searchType, status).Inc()
	m.MoleculeSearchDuration.WithLabelValues(searchType).Observe(d.Seconds())
}

func (m *AppMetrics) RecordHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

func (m *AppMetrics) RecordDBPool(open, inUse int) {
	m.DBPoolOpen.WithLabelValues().Set(float64(open))
	m.DBPoolInUse.WithLabelValues().Set(float64(inUse))
}
