package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
)

// Credential defaults.
const (
	DefaultCredentialTTL = 24 * time.Hour
	DefaultWarnThreshold = 2 * time.Hour
)

// Validation errors for credential capture.
var (
	ErrTokenRequired   = errors.New("token is required")
	ErrCookiesRequired = errors.New("cookies are required")
)

// CredentialService owns the single-active session credential. Save is the
// only mutation path; the store makes it atomic.
type CredentialService struct {
	store  driven.CredentialStore
	now    func() time.Time
	logger *slog.Logger
}

// NewCredentialService creates a CredentialService. now may be nil to use time.Now.
func NewCredentialService(store driven.CredentialStore, now func() time.Time, logger *slog.Logger) *CredentialService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{store: store, now: now, logger: logger}
}

// GetValid returns the active credential if it has not expired, or (nil, nil).
// It never refreshes; issuance happens outside this process.
func (s *CredentialService) GetValid(ctx context.Context) (*model.Credential, error) {
	now := s.now()
	cred, err := s.store.GetActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load active credential: %w", err)
	}
	if cred == nil || !cred.ValidAt(now) {
		s.logger.Warn("no valid platform credential")
		return nil, nil
	}
	return cred, nil
}

// Save stores token and cookieBlob as the only active credential, expiring
// after ttl (DefaultCredentialTTL when ttl <= 0).
func (s *CredentialService) Save(ctx context.Context, token, cookieBlob string, ttl time.Duration) (model.Credential, error) {
	if strings.TrimSpace(token) == "" {
		return model.Credential{}, ErrTokenRequired
	}
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}

	now := s.now()
	saved, err := s.store.Save(ctx, model.Credential{
		Token:      token,
		CookieBlob: cookieBlob,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		return model.Credential{}, fmt.Errorf("save credential: %w", err)
	}

	s.logger.Info("platform credential saved",
		"credential_id", saved.ID,
		"token_length", len(token),
		"cookie_length", len(cookieBlob),
		"expires_at", saved.ExpiresAt,
	)
	return saved, nil
}

// SaveCaptured stores a credential captured by a browser session, where
// cookies arrive as name/value pairs.
func (s *CredentialService) SaveCaptured(ctx context.Context, token string, cookies []model.Cookie, ttl time.Duration) (model.Credential, error) {
	if strings.TrimSpace(token) == "" {
		return model.Credential{}, ErrTokenRequired
	}
	if len(cookies) == 0 {
		return model.Credential{}, ErrCookiesRequired
	}

	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	s.logger.Info("captured credential received", "cookies", strings.Join(names, ", "))

	return s.Save(ctx, token, FlattenCookies(cookies), ttl)
}

// Status reports on the active credential. ExpiringSoon is true when the
// remaining hours are at or below warnThreshold (DefaultWarnThreshold when <= 0).
func (s *CredentialService) Status(ctx context.Context, warnThreshold time.Duration) (model.CredentialStatus, error) {
	if warnThreshold <= 0 {
		warnThreshold = DefaultWarnThreshold
	}

	cred, err := s.GetValid(ctx)
	if err != nil {
		return model.CredentialStatus{}, err
	}
	if cred == nil {
		return model.CredentialStatus{
			Valid:   false,
			Expired: true,
			Message: "No valid authentication found",
		}, nil
	}

	hours := math.Max(0, cred.ExpiresAt.Sub(s.now()).Hours())
	soon := hours <= warnThreshold.Hours()

	msg := "Authentication is valid"
	if soon {
		msg = fmt.Sprintf("Authentication expiring in %.1f hours", hours)
	}

	return model.CredentialStatus{
		Valid:          true,
		ExpiringSoon:   soon,
		HoursRemaining: hours,
		ExpiresAt:      cred.ExpiresAt,
		Message:        msg,
	}, nil
}

// History summarizes every stored credential, newest first. Secrets never
// leave the service; only their lengths are reported.
func (s *CredentialService) History(ctx context.Context) ([]model.CredentialSummary, error) {
	creds, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	now := s.now()
	out := make([]model.CredentialSummary, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Summary(now))
	}
	return out, nil
}

// PurgeAll deletes every stored credential.
func (s *CredentialService) PurgeAll(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge credentials: %w", err)
	}
	s.logger.Info("platform credentials purged", "count", n)
	return n, nil
}

// FlattenCookies renders cookies as a Cookie header value: "a=1; b=2".
func FlattenCookies(cookies []model.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
