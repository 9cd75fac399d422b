package driven

import (
	"context"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
)

// DomainLister defines the driven port for the platform's key-authenticated
// domain listing. Errors are *model.APIError.
type DomainLister interface {
	// ListDomains fetches one page (1-based) of the platform's domains.
	ListDomains(ctx context.Context, page, perPage int) (model.DomainPage, error)
}

// DomainRegistrar defines the driven port for adding a tracking domain via the
// key-authenticated API. Errors are *model.APIError.
type DomainRegistrar interface {
	// RegisterDomain registers the tracking host for the given base domain.
	RegisterDomain(ctx context.Context, domain string) (model.DomainRegistration, error)
}
