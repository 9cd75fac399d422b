// Package redtrack implements the tracking platform ports over HTTP: the
// key-authenticated read API and the session-authenticated direct write channel.
package redtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.DomainLister    = (*Client)(nil)
	_ driven.DomainRegistrar = (*Client)(nil)
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// maxErrorBody caps how much of an error response is kept for normalization.
const maxErrorBody = 64 << 10

// Client talks to the platform's key-authenticated API.
type Client struct {
	http           *http.Client
	baseURL        *url.URL
	apiKey         string
	trackingPrefix string
	logger         *slog.Logger
}

// NewClient creates a read API client with caching and rate limiting.
func NewClient(baseURL, apiKey, trackingPrefix string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Transport: newReadTransport(limiter),
		Timeout:   timeout,
	}
	return NewClientWithHTTPClient(httpClient, baseURL, apiKey, trackingPrefix, logger)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, apiKey, trackingPrefix string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:           httpClient,
		baseURL:        u,
		apiKey:         apiKey,
		trackingPrefix: trackingPrefix,
		logger:         logger,
	}, nil
}

// domainJSON mirrors one item of GET /domains.
type domainJSON struct {
	URL       string          `json:"url"`
	Name      string          `json:"name"`
	ID        json.RawMessage `json:"id"`
	Type      string          `json:"type"`
	SSL       json.RawMessage `json:"ssl"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type domainListJSON struct {
	Items []domainJSON `json:"items"`
	Total int          `json:"total"`
}

// ListDomains fetches one page of the domain listing.
func (c *Client) ListDomains(ctx context.Context, page, perPage int) (model.DomainPage, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("page", strconv.Itoa(page))
	q.Set("per", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/domains", q), nil)
	if err != nil {
		return model.DomainPage{}, model.NormalizeTransportError(err, "build domain list request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", browserUserAgent)

	body, err := c.do(req, "Failed to get domain info")
	if err != nil {
		return model.DomainPage{}, err
	}

	var list domainListJSON
	if err := json.Unmarshal(body, &list); err != nil || list.Items == nil {
		return model.DomainPage{}, &model.APIError{
			Code:    model.CodeAPIError,
			Message: fmt.Sprintf("unexpected domain list response on page %d", page),
			Details: rawIfValid(body),
		}
	}

	c.logger.Debug("domain page fetched", "page", page, "per", perPage, "count", len(list.Items), "total", list.Total)

	items := make([]model.DomainRecord, 0, len(list.Items))
	for _, d := range list.Items {
		items = append(items, mapDomain(d))
	}
	return model.DomainPage{Items: items, Total: list.Total}, nil
}

// RegisterDomain registers the tracking host for domain with auto-generated SSL.
func (c *Client) RegisterDomain(ctx context.Context, domain string) (model.DomainRegistration, error) {
	host := model.TrackingHost(domain, c.trackingPrefix)
	payload, err := json.Marshal(map[string]any{
		"url":                    host,
		"ssl":                    model.SSLState{Active: false},
		"type":                   "track",
		"use_auto_generated_ssl": true,
	})
	if err != nil {
		return model.DomainRegistration{}, model.NormalizeTransportError(err, "encode domain registration")
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/domains", q), bytes.NewReader(payload))
	if err != nil {
		return model.DomainRegistration{}, model.NormalizeTransportError(err, "build domain registration request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "Domain registration failed")
	if err != nil {
		return model.DomainRegistration{}, err
	}

	var resp struct {
		DomainID json.RawMessage `json:"domain_id"`
		ID       json.RawMessage `json:"id"`
		Status   string          `json:"status"`
	}
	_ = json.Unmarshal(body, &resp)

	id := model.ScalarString(resp.DomainID)
	if id == "" {
		id = model.ScalarString(resp.ID)
	}

	c.logger.Info("tracking domain registered", "domain", host, "domain_id", id)
	return model.DomainRegistration{Domain: host, DomainID: id, Status: resp.Status}, nil
}

// do executes req and returns the body of a 2xx response, or a normalized error.
func (c *Client) do(req *http.Request, defaultMessage string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, model.NormalizeTransportError(err, defaultMessage)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*16))
	if err != nil {
		return nil, model.NormalizeTransportError(err, defaultMessage)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := model.NormalizeAPIError(resp.StatusCode, truncate(body), defaultMessage)
		c.logger.Warn("platform api error",
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"code", apiErr.Code,
			"message", apiErr.Message,
		)
		return nil, apiErr
	}
	return body, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

// mapDomain converts a listing item into a domain record.
func mapDomain(d domainJSON) model.DomainRecord {
	var ssl model.SSLState
	if len(d.SSL) > 0 {
		_ = json.Unmarshal(d.SSL, &ssl)
	}
	return model.DomainRecord{
		ExternalID:   model.ScalarString(d.ID),
		CanonicalURL: d.URL,
		DisplayName:  d.Name,
		Type:         d.Type,
		SSL:          ssl,
		Status:       d.Status,
		CreatedAt:    parseTimestamp(d.CreatedAt),
		UpdatedAt:    parseTimestamp(d.UpdatedAt),
	}
}

// parseTimestamp accepts RFC 3339 with or without fractional seconds.
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func truncate(body []byte) []byte {
	if len(body) > maxErrorBody {
		return body[:maxErrorBody]
	}
	return body
}

func rawIfValid(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return nil
}
