package redtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LandingWriter = (*DirectWriter)(nil)

// DirectWriter is the server-to-server write channel. It replays a captured
// session (bearer token plus raw cookie header) against the app API.
type DirectWriter struct {
	http      *http.Client
	appAPIURL string
	origin    string
	userAgent string
	logger    *slog.Logger
}

// NewDirectWriter creates the direct channel. timeout bounds each attempt.
func NewDirectWriter(appAPIURL, origin, userAgent string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *DirectWriter {
	httpClient := &http.Client{
		Transport: newWriteTransport(limiter),
		Timeout:   timeout,
	}
	return NewDirectWriterWithHTTPClient(httpClient, appAPIURL, origin, userAgent, logger)
}

// NewDirectWriterWithHTTPClient creates a DirectWriter with a custom http.Client.
// This constructor is intended for testing.
func NewDirectWriterWithHTTPClient(httpClient *http.Client, appAPIURL, origin, userAgent string, logger *slog.Logger) *DirectWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectWriter{
		http:      httpClient,
		appAPIURL: strings.TrimRight(appAPIURL, "/"),
		origin:    strings.TrimRight(origin, "/"),
		userAgent: userAgent,
		logger:    logger,
	}
}

// CreateLanding posts payload to /landings with the session's token and cookies.
func (w *DirectWriter) CreateLanding(ctx context.Context, cred model.Credential, payload model.LandingPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", model.NormalizeTransportError(err, "encode landing payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.appAPIURL+"/landings", bytes.NewReader(body))
	if err != nil {
		return "", model.NormalizeTransportError(err, "build landing request")
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Cookie", cred.CookieBlob)
	req.Header.Set("Origin", w.origin)
	req.Header.Set("Referer", w.origin+"/landers")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return "", model.NormalizeTransportError(err, "Landing creation failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", model.NormalizeTransportError(err, "Landing creation failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := model.NormalizeAPIError(resp.StatusCode, respBody, "Landing creation failed")
		w.logger.Warn("direct landing write rejected",
			"status", resp.StatusCode,
			"code", apiErr.Code,
			"title", payload.Title,
		)
		return "", apiErr
	}

	return model.LandingIDFromResponse(respBody), nil
}
