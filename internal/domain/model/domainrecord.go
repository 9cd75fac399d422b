package model

import (
	"strings"
	"time"
)

// DefaultTrackingPrefix is prepended to a base domain to form its tracking host.
const DefaultTrackingPrefix = "rt."

// SSLState is the certificate state the platform reports for a domain.
type SSLState struct {
	Active bool `json:"active"`
}

// DomainRecord is a domain as listed by the tracking platform. It is produced
// transiently by the resolver and never persisted.
type DomainRecord struct {
	ExternalID   string
	CanonicalURL string
	DisplayName  string
	Type         string
	SSL          SSLState
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Matches reports whether the record belongs to the requested base domain:
// either the canonical URL equals the tracking host or the display name equals
// the base name, both case-insensitively.
func (d DomainRecord) Matches(name, trackingPrefix string) bool {
	if strings.EqualFold(d.CanonicalURL, trackingPrefix+name) {
		return true
	}
	return d.DisplayName != "" && strings.EqualFold(d.DisplayName, name)
}

// DomainPage is one page of the platform's domain listing.
type DomainPage struct {
	Items []DomainRecord
	Total int
}

// DomainStatus summarizes whether a tracking domain is live on the platform.
type DomainStatus struct {
	Domain string
	Active bool
	ID     string
	SSL    SSLState
	Error  *APIError
}

// DomainRegistration is the platform's acknowledgement of a new tracking domain.
type DomainRegistration struct {
	Domain   string
	DomainID string
	Status   string
}

// TrackingHost returns the tracking host for a base domain.
func TrackingHost(domain, trackingPrefix string) string {
	return trackingPrefix + domain
}

// DomainListing is one page of a (possibly filtered) domain listing.
type DomainListing struct {
	Domains    []DomainRecord
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// NewDomainListing computes TotalPages from total and limit.
func NewDomainListing(domains []DomainRecord, page, limit, total int) DomainListing {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	if domains == nil {
		domains = []DomainRecord{}
	}
	return DomainListing{
		Domains:    domains,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
