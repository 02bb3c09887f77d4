package prometheus

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppMetrics_AllRegistered(t *testing.T) {
	m := NewAppMetrics(newTestCollector(t))
	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.ChatStreamsTotal)
	assert.NotNil(t, m.UpstreamLatency)
	assert.NotNil(t, m.DocumentsTaggedTotal)
	assert.NotNil(t, m.HealthCheckStatus)
}

func TestRecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordHTTPRequest("POST", "/api/v1/chat", 200, 120*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_http_requests_total{method="POST",path="/api/v1/chat",status_code="200"} 1`)
	assert.Contains(t, out, `test_unit_http_request_duration_seconds_count{method="POST",path="/api/v1/chat"} 1`)
}

func TestRecordChatStream(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordChatStream(ChatStreamSummary{Status: "completed", Duration: 3 * time.Second, Chunks: 4, Replaces: 1, Malformed: 2})

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_chat_streams_total{status="completed"} 1`)
	assert.Contains(t, out, `test_unit_chat_chunks_total{kind="delta"} 4`)
	assert.Contains(t, out, `test_unit_chat_chunks_total{kind="replace"} 1`)
	assert.Contains(t, out, `test_unit_chat_malformed_objects_total 2`)
}

func TestRecordUpstreamAndSearch(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordUpstream("stream_answer", nil, time.Second)
	m.RecordUpstream("stream_answer", stderrors.New("502"), time.Second)
	m.RecordMoleculeSearch("similarity", nil, 10*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_upstream_requests_total{operation="stream_answer",status="ok"} 1`)
	assert.Contains(t, out, `test_unit_upstream_requests_total{operation="stream_answer",status="error"} 1`)
	assert.Contains(t, out, `test_unit_molecule_search_total{status="ok",type="similarity"} 1`)
}

func TestRecordCacheHealthAndPool(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordCacheAccess("notebooks", true)
	m.RecordCacheAccess("notebooks", false)
	m.RecordHealth("database", false)
	m.RecordDBPool(7, 2)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_cache_hits_total{cache="notebooks"} 1`)
	assert.Contains(t, out, `test_unit_cache_misses_total{cache="notebooks"} 1`)
	assert.Contains(t, out, `test_unit_health_check_status{component="database"} 0`)
	assert.Contains(t, out, `test_unit_db_pool_open_connections 7`)
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	assert.NotPanics(t, func() {
		m.RecordChatStream(ChatStreamSummary{Status: "failed"})
		m.RecordHealth("redis", true)
	})
}
