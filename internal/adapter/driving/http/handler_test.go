package httphandler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/rtprovision/internal/adapter/driving/http"
	"github.com/ericfisherdev/rtprovision/internal/application"
	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
	"github.com/ericfisherdev/rtprovision/internal/monitoring"
)

// --- Mock implementations ---

type mockCredentialStore struct {
	mu    sync.Mutex
	creds []model.Credential
	err   error
}

func (m *mockCredentialStore) Save(_ context.Context, c model.Credential) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Credential{}, m.err
	}
	for i := range m.creds {
		m.creds[i].Active = false
	}
	c.ID = int64(len(m.creds) + 1)
	c.Active = true
	m.creds = append(m.creds, c)
	return c, nil
}

func (m *mockCredentialStore) GetActive(_ context.Context, now time.Time) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.creds {
		if c.Active && c.ExpiresAt.After(now) {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Credential(nil), m.creds...), nil
}

func (m *mockCredentialStore) PurgeAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.creds))
	m.creds = nil
	return n, m.err
}

type mockLister struct {
	records []model.DomainRecord
}

func (m *mockLister) ListDomains(_ context.Context, page, perPage int) (model.DomainPage, error) {
	start := min((page-1)*perPage, len(m.records))
	end := min(start+perPage, len(m.records))
	return model.DomainPage{Items: m.records[start:end], Total: len(m.records)}, nil
}

type mockWriter struct {
	id    string
	err   error
	delay time.Duration
}

func (m *mockWriter) CreateLanding(_ context.Context, _ model.Credential, _ model.LandingPayload) (string, error) {
	time.Sleep(m.delay)
	return m.id, m.err
}

type mockRegistrar struct {
	err error
}

func (m *mockRegistrar) RegisterDomain(_ context.Context, domain string) (model.DomainRegistration, error) {
	if m.err != nil {
		return model.DomainRegistration{}, m.err
	}
	return model.DomainRegistration{Domain: "rt." + domain, DomainID: "reg-" + domain, Status: "active"}, nil
}

// --- Fixture ---

type fixture struct {
	store     *mockCredentialStore
	direct    *mockWriter
	automated *mockWriter
	registrar *mockRegistrar
	handler   http.Handler
}

func newFixture(records ...model.DomainRecord) *fixture {
	return newFixtureWithBudget(time.Minute, records...)
}

func newFixtureWithBudget(writeBudget time.Duration, records ...model.DomainRecord) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	f := &fixture{
		store:     &mockCredentialStore{},
		direct:    &mockWriter{id: "lnd-direct"},
		automated: &mockWriter{id: "lnd-auto"},
		registrar: &mockRegistrar{},
	}

	creds := application.NewCredentialService(f.store, nil, logger)
	resolver := application.NewDomainResolver(&mockLister{records: records}, "", 0, metrics, logger)
	exec := application.NewDualChannelExecutor(creds, f.direct, f.automated, metrics, logger)
	batch := application.NewBatchCoordinator(10, metrics, logger)
	prov := application.NewProvisioningService(resolver, exec, f.registrar, batch, "", logger)

	h := httphandler.NewHandler(creds, prov, 24*time.Hour, 2*time.Hour, writeBudget, logger)
	f.handler = httphandler.NewServeMux(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) saveCredential(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth", `{"token":"tok","cookies":"sid=1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var exampleRecord = model.DomainRecord{
	ExternalID:   "dom-1",
	CanonicalURL: "rt.example.com",
	Status:       "active",
	SSL:          model.SSLState{Active: true},
}

// --- Tests ---

func TestHealth(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[httphandler.HealthResponse](t, rec).Status)
}

func TestRequestID(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestAuthStatus_NoCredential(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/auth/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[httphandler.CredentialStatusResponse](t, rec)
	assert.False(t, st.Valid)
	assert.True(t, st.Expired)
}

func TestSaveAuth(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBlob   string
	}{
		{name: "string cookies", body: `{"token":"t1","cookies":"a=1; b=2"}`, wantStatus: http.StatusOK, wantBlob: "a=1; b=2"},
		{name: "array cookies", body: `{"token":"t1","cookies":[{"name":"a","value":"1"},{"name":"b","value":"2"}]}`, wantStatus: http.StatusOK, wantBlob: "a=1; b=2"},
		{name: "missing token", body: `{"cookies":"a=1"}`, wantStatus: http.StatusBadRequest},
		{name: "missing cookies", body: `{"token":"t1"}`, wantStatus: http.StatusBadRequest},
		{name: "bad cookies type", body: `{"token":"t1","cookies":42}`, wantStatus: http.StatusBadRequest},
		{name: "negative expiry", body: `{"token":"t1","cookies":"a=1","expires_in_hours":-1}`, wantStatus: http.StatusBadRequest},
		{name: "expiry beyond one year", body: `{"token":"t1","cookies":"a=1","expires_in_hours":8761}`, wantStatus: http.StatusBadRequest},
		{name: "overflowing expiry", body: `{"token":"t1","cookies":"a=1","expires_in_hours":1e300}`, wantStatus: http.StatusBadRequest},
		{name: "one year expiry", body: `{"token":"t1","cookies":"a=1","expires_in_hours":8760}`, wantStatus: http.StatusOK, wantBlob: "a=1"},
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			rec := f.do(t, http.MethodPost, "/api/v1/auth", tt.body)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			all, _ := f.store.List(context.Background())
			require.Len(t, all, 1)
			assert.Equal(t, tt.wantBlob, all[0].CookieBlob)
			assert.NotEmpty(t, decode[httphandler.SaveCredentialResponse](t, rec).ExpiresAt)
		})
	}
}

func TestSaveAuth_ShortExpiryIsExpiringSoon(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/auth", `{"token":"t","cookies":"a=1","expires_in_hours":1.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decode[httphandler.CredentialStatusResponse](t, f.do(t, http.MethodGet, "/api/v1/auth/status", ""))
	assert.True(t, st.Valid)
	assert.True(t, st.ExpiringSoon)
	assert.InDelta(t, 1.5, st.HoursRemaining, 0.01)
}

func TestSaveAuth_NoEncryptionKey(t *testing.T) {
	f := newFixture()
	f.store.err = driven.ErrEncryptionKeyNotSet

	rec := f.do(t, http.MethodPost, "/api/v1/auth", `{"token":"t","cookies":"a=1"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSaveCapturedCredentials(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/credentials",
		`{"token":"t","cookies":[{"name":"a","value":"1"},{"name":"b","value":"2"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[httphandler.SaveCredentialResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.CookieCount)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/credentials", `{"token":"t","cookies":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/credentials", `{"cookies":[{"name":"a","value":"1"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurgeAuth(t *testing.T) {
	f := newFixture()
	f.saveCredential(t)
	f.saveCredential(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/auth", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[httphandler.PurgeResponse](t, rec)
	assert.Equal(t, int64(2), resp.Count)
	assert.Contains(t, resp.Message, "Cleared 2")
}

func TestDomainInfo(t *testing.T) {
	f := newFixture(exampleRecord)

	rec := f.do(t, http.MethodGet, "/api/v1/domains/example.com/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[httphandler.DomainInfoResponse](t, rec)
	assert.Equal(t, "dom-1", info.ID)
	assert.Equal(t, "rt.example.com", info.Domain)
	assert.True(t, info.SSL.Active)

	rec = f.do(t, http.MethodGet, "/api/v1/domains/ghost.com/info", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), model.CodeNotFound)
}

func TestDomainStatus(t *testing.T) {
	f := newFixture(exampleRecord)

	st := decode[httphandler.DomainStatusResponse](t, f.do(t, http.MethodGet, "/api/v1/domains/example.com/status", ""))
	assert.True(t, st.Active)
	assert.Equal(t, "dom-1", st.ID)

	rec := f.do(t, http.MethodGet, "/api/v1/domains/ghost.com/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st = decode[httphandler.DomainStatusResponse](t, rec)
	assert.False(t, st.Active)
	assert.Equal(t, "rt.ghost.com", st.Domain)
	require.NotNil(t, st.Error)
	assert.Equal(t, model.CodeNotFound, st.Error.Code)
}

func TestRegisterDomain(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/domains", `{"domain":"new.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[httphandler.RegistrationResponse](t, rec)
	assert.Equal(t, "rt.new.com", resp.Domain)
	assert.Equal(t, "reg-new.com", resp.ID)

	rec = f.do(t, http.MethodPost, "/api/v1/domains", `{"domain":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.registrar.err = &model.APIError{Code: model.CodeUnauthorized, Message: "Invalid API key or unauthorized access", StatusCode: 401}
	rec = f.do(t, http.MethodPost, "/api/v1/domains", `{"domain":"new.com"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), model.CodeUnauthorized)
}

func TestRegisterDomainsBatch(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/domains/batch", `{"domains":["a.com","b.com","c.com"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[httphandler.BatchResponse](t, rec)
	assert.Equal(t, httphandler.BatchSummaryResponse{Total: 3, Successful: 3}, resp.Summary)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "rt.a.com", resp.Results[0].Domain)

	rec = f.do(t, http.MethodPost, "/api/v1/domains/batch", `{"domains":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLander_NoCredential(t *testing.T) {
	f := newFixture(exampleRecord)

	rec := f.do(t, http.MethodPost, "/api/v1/landers", `{"domain":"example.com","slug":"go"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[httphandler.ExecutionResponse](t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.CodeNoCredential, resp.Error.Code)
}

func TestCreateLander_Direct(t *testing.T) {
	f := newFixture(exampleRecord)
	f.saveCredential(t)

	rec := f.do(t, http.MethodPost, "/api/v1/landers", `{"domain":"example.com","slug":"go","parameters":[{"key":"c","value":"{sub1}"}]}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[httphandler.ExecutionResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "lnd-direct", resp.ID)
	assert.Equal(t, "direct", resp.Channel)
}

func TestCreatePrelander_FallsBackOnForbidden(t *testing.T) {
	f := newFixture(exampleRecord)
	f.saveCredential(t)
	f.direct.err = &model.APIError{Code: model.CodeAPIError, Message: "forbidden", StatusCode: 403}

	rec := f.do(t, http.MethodPost, "/api/v1/prelanders", `{"domain":"example.com"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[httphandler.ExecutionResponse](t, rec)
	assert.Equal(t, "automated", resp.Channel)
	assert.Equal(t, "lnd-auto", resp.ID)
}

func TestCreateLander_UnknownDomain(t *testing.T) {
	f := newFixture()
	f.saveCredential(t)

	rec := f.do(t, http.MethodPost, "/api/v1/landers", `{"domain":"ghost.com"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLander_Invalid(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/landers", `{"domain":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/landers", `not json`).Code)
}

func TestCreateLandersBatch(t *testing.T) {
	f := newFixture(exampleRecord)
	f.saveCredential(t)

	rec := f.do(t, http.MethodPost, "/api/v1/landers/batch", `{"domains":["example.com","ghost.com"],"slug":"go"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[httphandler.BatchResponse](t, rec)
	assert.Equal(t, httphandler.BatchSummaryResponse{Total: 2, Successful: 1, Failed: 1}, resp.Summary)
	assert.Equal(t, "example.com", resp.Results[0].Domain)
	assert.Equal(t, "ghost.com", resp.Results[1].Domain)
}

func TestCreateStructure(t *testing.T) {
	f := newFixture(exampleRecord)
	f.saveCredential(t)

	rec := f.do(t, http.MethodPost, "/api/v1/structures", `{"domain":"example.com","product":"Widget","cloaker":true}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[httphandler.StructureResponse](t, rec)
	assert.Equal(t, "https://example.com/ck?", resp.Lander.URL)
	assert.True(t, strings.HasSuffix(resp.Prelander.URL, "pre?"))
	require.NotNil(t, resp.Domain)
	assert.Equal(t, "dom-1", resp.Domain.ID)

	rec = f.do(t, http.MethodPost, "/api/v1/structures", `{"domain":"example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(exampleRecord)
	f.do(t, http.MethodGet, "/api/v1/domains/example.com/info", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rtprovision_resolver_pages_total 1")
}

func TestSaveAuth_LargeExpiryNotSaved(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/auth", `{"token":"t","cookies":"a=1","expires_in_hours":3000000}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expires_in_hours")
	all, _ := f.store.List(context.Background())
	assert.Empty(t, all)
}

func TestAuthHistory(t *testing.T) {
	f := newFixture()
	f.saveCredential(t)
	rec := f.do(t, http.MethodPost, "/api/v1/auth", `{"token":"second-token","cookies":"a=1; b=2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/auth/history", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "second-token")
	resp := decode[httphandler.CredentialHistoryResponse](t, rec)
	require.Equal(t, 2, resp.Count)
	var active []httphandler.CredentialSummaryResponse
	for _, c := range resp.Credentials {
		if c.Active {
			active = append(active, c)
		}
	}
	require.Len(t, active, 1)
	assert.Equal(t, len("second-token"), active[0].TokenLength)
	assert.Equal(t, 2, active[0].CookieCount)
}

func TestAuthHistory_NoEncryptionKey(t *testing.T) {
	f := newFixture()
	f.store.err = driven.ErrEncryptionKeyNotSet

	rec := f.do(t, http.MethodGet, "/api/v1/auth/history", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListDomains(t *testing.T) {
	f := newFixture(
		model.DomainRecord{ExternalID: "a", CanonicalURL: "rt.alpha.com", Status: "active"},
		model.DomainRecord{ExternalID: "b", CanonicalURL: "rt.beta.com"},
		model.DomainRecord{ExternalID: "c", CanonicalURL: "rt.alphabet.io"},
	)

	rec := f.do(t, http.MethodGet, "/api/v1/domains?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[httphandler.DomainListResponse](t, rec)
	assert.Equal(t, httphandler.PaginationResponse{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, resp.Pagination)
	require.Len(t, resp.Domains, 2)
	assert.Equal(t, "rt.alpha.com", resp.Domains[0].Domain)

	rec = f.do(t, http.MethodGet, "/api/v1/domains?search=ALPHA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[httphandler.DomainListResponse](t, rec)
	assert.Equal(t, httphandler.PaginationResponse{Page: 1, Limit: 50, Total: 2, TotalPages: 1}, resp.Pagination)
	require.Len(t, resp.Domains, 2)
	assert.Equal(t, "c", resp.Domains[1].ID)
}

func TestListDomains_InvalidQuery(t *testing.T) {
	f := newFixture()

	for _, q := range []string{"page=x", "limit=-1", "page=1.5"} {
		rec := f.do(t, http.MethodGet, "/api/v1/domains?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

// slowServer serves the fixture over a real listener whose WriteTimeout is
// shorter than a single landing write.
func slowServer(t *testing.T, writeBudget time.Duration) (*fixture, *httptest.Server) {
	t.Helper()

	f := newFixtureWithBudget(writeBudget, exampleRecord)
	f.saveCredential(t)
	f.direct.delay = 300 * time.Millisecond

	server := httptest.NewUnstartedServer(f.handler)
	server.Config.WriteTimeout = 200 * time.Millisecond
	server.Start()
	t.Cleanup(server.Close)
	return f, server
}

func post(server *httptest.Server, path, body string) (*http.Response, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Post(server.URL+path, "application/json", strings.NewReader(body))
}

func TestLongRoutesExtendWriteDeadline(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"structure", "/api/v1/structures", `{"domain":"example.com","product":"Widget"}`, http.StatusCreated},
		{"lander", "/api/v1/landers", `{"domain":"example.com","slug":"go"}`, http.StatusCreated},
		{"landers batch", "/api/v1/landers/batch", `{"domains":["example.com","example.com"],"slug":"go"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, server := slowServer(t, 5*time.Second)

			resp, err := post(server, tt.path, tt.body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		})
	}
}

func TestWriteTimeoutAppliesWithoutBudget(t *testing.T) {
	_, server := slowServer(t, 0)

	resp, err := post(server, "/api/v1/structures", `{"domain":"example.com","product":"Widget"}`)
	if err == nil {
		_, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
	}

	assert.Error(t, err)
}
