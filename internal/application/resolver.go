package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
	"github.com/ericfisherdev/rtprovision/internal/monitoring"
)

// Resolver paging defaults.
const (
	DefaultPageSize  = 100
	DefaultMaxPages  = 500
	DefaultListLimit = 50
)

// ErrDomainRequired is returned when a blank domain name is resolved.
var ErrDomainRequired = errors.New("domain is required")

// DomainResolver maps a human domain name to the platform's record by
// scanning the paginated domain listing.
type DomainResolver struct {
	lister         driven.DomainLister
	trackingPrefix string
	pageSize       int
	maxPages       int
	metrics        *monitoring.Metrics
	logger         *slog.Logger
}

// NewDomainResolver creates a DomainResolver. maxPages <= 0 uses DefaultMaxPages
// and an empty trackingPrefix uses model.DefaultTrackingPrefix.
func NewDomainResolver(lister driven.DomainLister, trackingPrefix string, maxPages int, metrics *monitoring.Metrics, logger *slog.Logger) *DomainResolver {
	if trackingPrefix == "" {
		trackingPrefix = model.DefaultTrackingPrefix
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainResolver{
		lister:         lister,
		trackingPrefix: trackingPrefix,
		pageSize:       DefaultPageSize,
		maxPages:       maxPages,
		metrics:        metrics,
		logger:         logger,
	}
}

// Resolve returns the first record matching name, scanning from page 1 until
// page*pageSize reaches the reported total. A missing domain yields a
// NOT_FOUND *model.APIError; a failed page aborts the scan with its error.
func (r *DomainResolver) Resolve(ctx context.Context, name string) (*model.DomainRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrDomainRequired
	}
	host := model.TrackingHost(name, r.trackingPrefix)

	var found *model.DomainRecord
	err := r.scan(ctx, host, "Failed to get domain info", func(page int, item model.DomainRecord) bool {
		if !item.Matches(name, r.trackingPrefix) {
			return true
		}
		r.logger.Debug("domain resolved", "domain", host, "id", item.ExternalID, "page", page)
		found = &item
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, model.NewNotFoundError(fmt.Sprintf("Domain %s not found", host))
	}
	return found, nil
}

// List returns one page of the platform's domains. Without search the page is
// fetched directly; with search every page is scanned and records whose URL
// contains search (case-insensitive) are paginated locally.
func (r *DomainResolver) List(ctx context.Context, page, limit int, search string) (model.DomainListing, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, r.pageSize)
	search = strings.ToLower(strings.TrimSpace(search))

	if search == "" {
		result, err := r.lister.ListDomains(ctx, page, limit)
		r.metrics.IncResolverPage()
		if err != nil {
			r.logger.Error("domain page fetch failed", "page", page, "error", err)
			return model.DomainListing{}, model.NormalizeTransportError(err, "Failed to list domains")
		}
		return model.NewDomainListing(result.Items, page, limit, result.Total), nil
	}

	var matches []model.DomainRecord
	err := r.scan(ctx, "search "+search, "Failed to list domains", func(_ int, item model.DomainRecord) bool {
		if strings.Contains(strings.ToLower(item.CanonicalURL), search) {
			matches = append(matches, item)
		}
		return true
	})
	if err != nil {
		return model.DomainListing{}, err
	}

	start := min((page-1)*limit, len(matches))
	end := min(start+limit, len(matches))
	return model.NewDomainListing(matches[start:end], page, limit, len(matches)), nil
}

// scan walks the listing from page 1, calling visit for each record until it
// returns false or page*pageSize reaches the reported total.
func (r *DomainResolver) scan(ctx context.Context, label, failMessage string, visit func(page int, item model.DomainRecord) bool) error {
	for page := 1; ; page++ {
		if page > r.maxPages {
			r.logger.Error("domain scan exceeded page ceiling", "scan", label, "max_pages", r.maxPages)
			return &model.APIError{
				Code:    model.CodeAPIError,
				Message: fmt.Sprintf("domain scan for %s exceeded %d pages", label, r.maxPages),
			}
		}

		result, err := r.lister.ListDomains(ctx, page, r.pageSize)
		r.metrics.IncResolverPage()
		if err != nil {
			r.logger.Error("domain page fetch failed", "scan", label, "page", page, "error", err)
			return model.NormalizeTransportError(err, failMessage)
		}

		for _, item := range result.Items {
			if !visit(page, item) {
				return nil
			}
		}

		if page*r.pageSize >= result.Total {
			return nil
		}
	}
}

// CheckStatus reports whether name resolves to a live tracking domain.
// Resolution failures are carried in the returned status, never as an error.
func (r *DomainResolver) CheckStatus(ctx context.Context, name string) model.DomainStatus {
	host := model.TrackingHost(strings.TrimSpace(name), r.trackingPrefix)

	rec, err := r.Resolve(ctx, name)
	if err != nil {
		return model.DomainStatus{
			Domain: host,
			Active: false,
			Error:  model.NormalizeTransportError(err, "Failed to check domain status"),
		}
	}

	return model.DomainStatus{
		Domain: host,
		Active: strings.EqualFold(rec.Status, "active"),
		ID:     rec.ExternalID,
		SSL:    rec.SSL,
	}
}
