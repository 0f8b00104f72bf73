package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Lantsov/middleman/internal/adapter/metrics"
	"github.com/Lantsov/middleman/internal/domain"
	apperrors "github.com/Lantsov/middleman/internal/platform/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHub struct {
	mu           sync.Mutex
	registered   map[string]*websocket.Conn
	unregistered []string
	registerErr  error
}

func (m *mockHub) Register(id string, conn *websocket.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	if m.registered == nil {
		m.registered = make(map[string]*websocket.Conn)
	}
	m.registered[id] = conn
	return nil
}

func (m *mockHub) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registered, id)
	m.unregistered = append(m.unregistered, id)
}

func (m *mockHub) counts() (registered, unregistered int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registered), len(m.unregistered)
}

type mockReadings struct {
	readings map[string]domain.Reading
	err      error
}

func (m *mockReadings) ReadingFor(address string) (domain.Reading, error) {
	if m.err != nil {
		return domain.Reading{}, m.err
	}
	r, ok := m.readings[strings.TrimSpace(address)]
	if !ok {
		return domain.Reading{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, address)
	}
	return r, nil
}

type mockHealth struct {
	sources []domain.SourceHealth
}

func (m *mockHealth) SourceHealth() []domain.SourceHealth { return m.sources }

type serverOption func(*testServerDeps)

type testServerDeps struct {
	cfg      Config
	hub      *mockHub
	readings *mockReadings
	health   *mockHealth
	metrics  *metrics.Set
}

func withMetrics(m *metrics.Set) serverOption {
	return func(d *testServerDeps) { d.metrics = m }
}

func withReadings(r *mockReadings) serverOption {
	return func(d *testServerDeps) { d.readings = r }
}

func withHealth(h *mockHealth) serverOption {
	return func(d *testServerDeps) { d.health = h }
}

func withHub(h *mockHub) serverOption {
	return func(d *testServerDeps) { d.hub = h }
}

func newTestServer(t *testing.T, opts ...serverOption) *Server {
	t.Helper()
	d := &testServerDeps{
		cfg: Config{
			Port:            "0",
			EnableLookup:    true,
			LookupPort:      "0",
			LookupRateLimit: 1000,
			LookupRateBurst: 1000,
		},
		hub:      &mockHub{},
		readings: &mockReadings{},
		health:   &mockHealth{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return NewServer(d.cfg, d.hub, d.readings, d.health, d.metrics)
}

func weight(v float64) *float64 { return &v }

func postLookup(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/weight", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.LookupHandler().ServeHTTP(rec, req)
	return rec
}

func TestLookup_KnownAddress(t *testing.T) {
	srv := newTestServer(t, withReadings(&mockReadings{readings: map[string]domain.Reading{
		"ws://10.0.0.5:8080": {WeightNet: weight(12.5), WeightGross: weight(13), Status: domain.StatusOk},
	}}))

	rec := postLookup(t, srv, `{"path":" ws://10.0.0.5:8080 "}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"WeightNet":12.5,"WeightGross":13,"Status":"Ok","DeviceMessage":null}`, rec.Body.String())
}

func TestLookup_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"unknown address", `{"path":"ws://nowhere:1"}`, http.StatusNotFound, apperrors.TypeNotFound},
		{"missing path", `{}`, http.StatusBadRequest, apperrors.TypeValidation},
		{"blank path", `{"path":"   "}`, http.StatusBadRequest, apperrors.TypeValidation},
		{"empty body", ``, http.StatusBadRequest, apperrors.TypeValidation},
		{"malformed json", `{"path":`, http.StatusBadRequest, apperrors.TypeValidation},
		{"array body", `["ws://a"]`, http.StatusBadRequest, apperrors.TypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			rec := postLookup(t, srv, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Type)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestLookup_InternalError(t *testing.T) {
	srv := newTestServer(t, withReadings(&mockReadings{err: domain.ErrSlotNotFound}))

	rec := postLookup(t, srv, `{"path":"ws://a:1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLookup_DisabledHasNoHandler(t *testing.T) {
	srv := NewServer(Config{Port: "0"}, &mockHub{}, &mockReadings{}, &mockHealth{}, nil)
	assert.Nil(t, srv.LookupHandler())
}

func TestLookup_NotOnStreamListener(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/weight", strings.NewReader(`{"path":"ws://a"}`))
	rec := httptest.NewRecorder()
	srv.StreamHandler().ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHealth_Endpoints(t *testing.T) {
	health := &mockHealth{sources: []domain.SourceHealth{
		{Slot: 1, Address: "ws://a:1", State: domain.LinkConnected},
		{Slot: 2, Address: "ws://b:1", State: domain.LinkPermanentlyStopped, Attempts: 3},
	}}
	srv := newTestServer(t, withHealth(health))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.StreamHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	live := get("/health/live")
	assert.Equal(t, http.StatusOK, live.Code)
	assert.Contains(t, live.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, live.Header().Get(correlationHeader))

	ready := get("/health/ready")
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.JSONEq(t, `{"status":"ready","sources":2,"connected":1}`, ready.Body.String())

	sources := get("/health/sources")
	assert.Equal(t, http.StatusOK, sources.Code)
	var got []domain.SourceHealth
	require.NoError(t, json.Unmarshal(sources.Body.Bytes(), &got))
	assert.Equal(t, health.sources, got)

	version := get("/version")
	assert.Equal(t, http.StatusOK, version.Code)
	assert.Contains(t, version.Body.String(), `"go_version"`)
}

func TestHealth_NotReadyWithoutSources(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.StreamHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewSet()
	srv := newTestServer(t, withMetrics(m))

	m.Sources.Connected.WithLabelValues("1").Set(1)

	rec := httptest.NewRecorder()
	srv.StreamHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `middleman_source_connected{slot="1"} 1`)
}

func TestCorrelationHeaderIsEchoed(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(correlationHeader, "abc123")
	rec := httptest.NewRecorder()
	srv.StreamHandler().ServeHTTP(rec, req)

	assert.Equal(t, "abc123", rec.Header().Get(correlationHeader))
}

func TestSubscribe_RequiresUpgrade(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.StreamHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribe_RegistersAndUnregisters(t *testing.T) {
	hub := &mockHub{}
	srv := newTestServer(t, withHub(hub))
	ts := httptest.NewServer(srv.StreamHandler())
	t.Cleanup(ts.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		registered, _ := hub.counts()
		return registered == 1
	}, waitTimeout, pollInterval)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		registered, unregistered := hub.counts()
		return registered == 0 && unregistered == 1
	}, waitTimeout, pollInterval)
}

func TestSubscribe_RejectedRegistrationClosesConnection(t *testing.T) {
	hub := &mockHub{registerErr: domain.ErrSubscriberLimit}
	srv := newTestServer(t, withHub(hub))
	ts := httptest.NewServer(srv.StreamHandler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	_, unregistered := hub.counts()
	assert.Equal(t, 0, unregistered)
}

func TestSubscribe_OriginRejected(t *testing.T) {
	srv := NewServer(Config{Port: "0", AllowedOrigins: []string{"https://ok.example"}}, &mockHub{}, &mockReadings{}, &mockHealth{}, nil)
	ts := httptest.NewServer(srv.StreamHandler())
	t.Cleanup(ts.Close)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
