package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/rtprovision/internal/application"
	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
)

const (
	// maxExpiresInHours bounds a client-supplied credential lifetime (one year).
	maxExpiresInHours = 24 * 365

	// deadlineSlack covers domain resolution and response encoding on top of
	// the per-write budget.
	deadlineSlack = 30 * time.Second
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	creds         *application.CredentialService
	provisioning  *application.ProvisioningService
	credentialTTL time.Duration
	warnThreshold time.Duration
	writeBudget   time.Duration
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. credentialTTL
// applies when a save request omits its own expiry; warnThreshold drives the
// expiring-soon flag of the status endpoint. writeBudget is the worst-case
// duration of one platform write including a browser fallback; long-running
// routes extend their response deadline by multiples of it. Zero leaves the
// server's WriteTimeout in charge.
func NewHandler(
	creds *application.CredentialService,
	provisioning *application.ProvisioningService,
	credentialTTL time.Duration,
	warnThreshold time.Duration,
	writeBudget time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		creds:         creds,
		provisioning:  provisioning,
		credentialTTL: credentialTTL,
		warnThreshold: warnThreshold,
		writeBudget:   writeBudget,
		logger:        logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request-id, logging and recovery middleware. metrics may be nil.
func NewServeMux(h *Handler, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/auth/status", h.AuthStatus)
	mux.HandleFunc("POST /api/v1/auth", h.SaveAuth)
	mux.HandleFunc("POST /api/v1/auth/credentials", h.SaveCapturedCredentials)
	mux.HandleFunc("DELETE /api/v1/auth", h.PurgeAuth)
	mux.HandleFunc("GET /api/v1/auth/history", h.AuthHistory)

	mux.HandleFunc("GET /api/v1/domains", h.ListDomains)
	mux.HandleFunc("GET /api/v1/domains/{domain}/info", h.DomainInfo)
	mux.HandleFunc("GET /api/v1/domains/{domain}/status", h.DomainStatus)
	mux.HandleFunc("POST /api/v1/domains", h.RegisterDomain)
	mux.HandleFunc("POST /api/v1/domains/batch", h.RegisterDomainsBatch)

	mux.HandleFunc("POST /api/v1/landers", h.CreateLander)
	mux.HandleFunc("POST /api/v1/prelanders", h.CreatePrelander)
	mux.HandleFunc("POST /api/v1/landers/batch", h.CreateLandersBatch)
	mux.HandleFunc("POST /api/v1/structures", h.CreateStructure)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// AuthStatus reports on the active session credential.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.creds.Status(r.Context(), h.warnThreshold)
	if err != nil {
		h.writeStoreError(w, "failed to read credential status", err)
		return
	}
	writeJSON(w, http.StatusOK, NewCredentialStatusResponse(st))
}

// SaveAuth stores a credential supplied as token plus cookies (string or array).
func (h *Handler) SaveAuth(w http.ResponseWriter, r *http.Request) {
	var req SaveCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Token) == "" || req.Cookies.Empty() {
		writeError(w, http.StatusBadRequest, "token and cookies are required")
		return
	}
	if req.ExpiresInHours < 0 || req.ExpiresInHours > maxExpiresInHours {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("expires_in_hours must be between 0 and %d", maxExpiresInHours))
		return
	}

	ttl := h.credentialTTL
	if req.ExpiresInHours > 0 {
		ttl = time.Duration(req.ExpiresInHours * float64(time.Hour))
	}

	saved, err := h.creds.Save(r.Context(), req.Token, req.Cookies.Header(), ttl)
	if err != nil {
		h.writeStoreError(w, "failed to save credential", err)
		return
	}

	writeJSON(w, http.StatusOK, SaveCredentialResponse{
		Success:   true,
		Message:   "Authentication updated successfully",
		ExpiresAt: formatTime(saved.ExpiresAt),
	})
}

// SaveCapturedCredentials stores a credential captured by a browser session.
func (h *Handler) SaveCapturedCredentials(w http.ResponseWriter, r *http.Request) {
	var req CaptureCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cookies := make([]model.Cookie, 0, len(req.Cookies))
	for _, c := range req.Cookies {
		cookies = append(cookies, model.Cookie{Name: c.Name, Value: c.Value})
	}

	saved, err := h.creds.SaveCaptured(r.Context(), req.Token, cookies, h.credentialTTL)
	if err != nil {
		if errors.Is(err, application.ErrTokenRequired) || errors.Is(err, application.ErrCookiesRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeStoreError(w, "failed to save captured credential", err)
		return
	}

	writeJSON(w, http.StatusOK, SaveCredentialResponse{
		Success:     true,
		Message:     "Credentials updated successfully",
		ExpiresAt:   formatTime(saved.ExpiresAt),
		CookieCount: len(cookies),
	})
}

// PurgeAuth deletes every stored credential.
func (h *Handler) PurgeAuth(w http.ResponseWriter, r *http.Request) {
	n, err := h.creds.PurgeAll(r.Context())
	if err != nil {
		h.writeStoreError(w, "failed to purge credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponse{
		Message: fmt.Sprintf("Cleared %d authentication records", n),
		Count:   n,
	})
}

// AuthHistory lists stored credentials without their secrets.
func (h *Handler) AuthHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.creds.History(r.Context())
	if err != nil {
		h.writeStoreError(w, "failed to list credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, NewCredentialHistoryResponse(history))
}

// ListDomains returns one page of platform domains. Query: page, limit, search.
func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := queryInt(w, q.Get("page"), "page")
	if !ok {
		return
	}
	limit, ok := queryInt(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	listing, err := h.provisioning.ListDomains(r.Context(), page, limit, q.Get("search"))
	if err != nil {
		h.writeServiceError(w, "failed to list domains", err)
		return
	}
	writeJSON(w, http.StatusOK, NewDomainListResponse(listing))
}

// DomainInfo resolves a domain to its platform record.
func (h *Handler) DomainInfo(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")

	rec, err := h.provisioning.ResolveDomain(r.Context(), domain)
	if err != nil {
		h.writeServiceError(w, "failed to resolve domain", err)
		return
	}
	writeJSON(w, http.StatusOK, NewDomainInfoResponse(*rec))
}

// DomainStatus reports whether a domain is live. Lookup failures are part of
// the body, so the response is always 200.
func (h *Handler) DomainStatus(w http.ResponseWriter, r *http.Request) {
	st := h.provisioning.DomainStatus(r.Context(), r.PathValue("domain"))
	writeJSON(w, http.StatusOK, NewDomainStatusResponse(st))
}

// RegisterDomain adds one tracking domain to the platform.
func (h *Handler) RegisterDomain(w http.ResponseWriter, r *http.Request) {
	var req RegisterDomainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reg, err := h.provisioning.RegisterDomain(r.Context(), req.Domain)
	if err != nil {
		h.writeServiceError(w, "failed to register domain", err)
		return
	}

	writeJSON(w, http.StatusCreated, NewRegistrationResponse(reg))
}

// RegisterDomainsBatch registers many tracking domains in waves.
func (h *Handler) RegisterDomainsBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchDomainsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Domains) == 0 {
		writeError(w, http.StatusBadRequest, "domains array is required")
		return
	}

	h.extendWriteDeadline(w, h.provisioning.BatchWaves(len(req.Domains)))
	res := h.provisioning.RegisterDomainsBatch(r.Context(), req.Domains)
	writeJSON(w, http.StatusOK, NewBatchResponse("Domain registration completed", res))
}

// CreateLander creates one lander.
func (h *Handler) CreateLander(w http.ResponseWriter, r *http.Request) {
	h.createLanding(w, r, h.provisioning.CreateLander)
}

// CreatePrelander creates one prelander.
func (h *Handler) CreatePrelander(w http.ResponseWriter, r *http.Request) {
	h.createLanding(w, r, h.provisioning.CreatePrelander)
}

type createFunc func(ctx context.Context, p application.LandingParams) (model.ExecutionResult, error)

func (h *Handler) createLanding(w http.ResponseWriter, r *http.Request, create createFunc) {
	var req LandingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.extendWriteDeadline(w, 1)
	res, err := create(r.Context(), req.toParams())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, executionStatus(res), toExecutionResponse(res, ""))
}

// CreateLandersBatch creates the same lander on many domains in waves.
func (h *Handler) CreateLandersBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchLandersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Domains) == 0 {
		writeError(w, http.StatusBadRequest, "domains array is required")
		return
	}

	h.extendWriteDeadline(w, h.provisioning.BatchWaves(len(req.Domains)))
	res := h.provisioning.CreateLandersBatch(r.Context(), req.toParams(), req.Domains)
	writeJSON(w, http.StatusOK, NewBatchResponse("Lander creation completed", res))
}

// CreateStructure creates a lander/prelander pair for one domain.
func (h *Handler) CreateStructure(w http.ResponseWriter, r *http.Request) {
	var req StructureRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Lander and prelander are written one after the other.
	h.extendWriteDeadline(w, 2)
	out, err := h.provisioning.CreateStructure(r.Context(), application.StructureParams{
		Domain:          req.Domain,
		Product:         req.Product,
		Cloaker:         req.Cloaker,
		PlatformTag:     req.PlatformTag,
		QueryParameters: toQueryParams(req.Parameters),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := executionStatus(out.Lander.Result)
	if status == http.StatusCreated {
		status = executionStatus(out.Prelander.Result)
	}
	writeJSON(w, status, toStructureResponse(out))
}

// executionStatus is 201 for a successful write, otherwise derived from the error.
func executionStatus(res model.ExecutionResult) int {
	if res.Success {
		return http.StatusCreated
	}
	if res.Error == nil {
		return http.StatusBadGateway
	}
	return statusForAPIError(res.Error)
}

// extendWriteDeadline pushes the response deadline out by writes platform
// writes plus slack, for routes that outlive the server's WriteTimeout.
func (h *Handler) extendWriteDeadline(w http.ResponseWriter, writes int) {
	if h.writeBudget <= 0 || writes <= 0 {
		return
	}
	deadline := time.Now().Add(time.Duration(writes)*h.writeBudget + deadlineSlack)
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("extend write deadline failed", "error", err)
	}
}

// queryInt parses an optional non-negative integer query value, writing a 400
// on failure. An empty value yields 0.
func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps resolver and registrar errors onto a response.
func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, application.ErrDomainRequired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIError(w, apiErr)
		return
	}
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// writeStoreError maps credential persistence errors onto a response.
func (h *Handler) writeStoreError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		writeError(w, http.StatusServiceUnavailable, "credential encryption key not configured")
		return
	}
	if errors.Is(err, application.ErrTokenRequired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
