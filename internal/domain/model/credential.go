package model

import (
	"strings"
	"time"
)

// Credential is one captured platform session: a bearer token plus the raw
// cookie header that accompanied it. At most one Credential is Active at a time.
type Credential struct {
	ID         int64
	Token      string
	CookieBlob string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Active     bool
}

// ValidAt reports whether the credential is active and unexpired at t.
func (c Credential) ValidAt(t time.Time) bool {
	return c.Active && c.ExpiresAt.After(t)
}

// Cookie is a single name/value pair as delivered by a browser capture.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CredentialStatus is a read-only report on the active credential.
type CredentialStatus struct {
	Valid          bool
	Expired        bool
	ExpiringSoon   bool
	HoursRemaining float64
	ExpiresAt      time.Time
	Message        string
}

// CredentialSummary describes a stored credential without its secrets.
type CredentialSummary struct {
	ID          int64
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Active      bool
	Expired     bool
	TokenLength int
	CookieCount int
}

// Summary reports c as seen at t, keeping only lengths of the secrets.
func (c Credential) Summary(t time.Time) CredentialSummary {
	cookies := 0
	for _, part := range strings.Split(c.CookieBlob, ";") {
		if strings.TrimSpace(part) != "" {
			cookies++
		}
	}
	return CredentialSummary{
		ID:          c.ID,
		IssuedAt:    c.IssuedAt,
		ExpiresAt:   c.ExpiresAt,
		Active:      c.Active,
		Expired:     !c.ExpiresAt.After(t),
		TokenLength: len(c.Token),
		CookieCount: cookies,
	}
}
