package application

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
)

// ErrProductRequired is returned when a structure is requested without a product.
var ErrProductRequired = errors.New("product is required")

// LandingParams are the caller-supplied fields of one landing write.
type LandingParams struct {
	Domain          string
	BaseURL         string
	Slug            string
	QueryParameters []model.QueryParam
	Product         string
	PlatformTag     string
	Cloaker         bool
}

// StructureParams request a lander/prelander pair for one domain.
type StructureParams struct {
	Domain          string
	Product         string
	Cloaker         bool
	PlatformTag     string
	QueryParameters []model.QueryParam
}

// LandingOutcome pairs an execution result with the URL that was submitted.
type LandingOutcome struct {
	URL    string
	Result model.ExecutionResult
}

// StructureResult is the outcome of CreateStructure.
type StructureResult struct {
	Domain    model.DomainRecord
	Lander    LandingOutcome
	Prelander LandingOutcome
}

// ProvisioningService is the entry point for write operations: it resolves
// domains, assembles payloads and hands them to the executor.
type ProvisioningService struct {
	resolver       *DomainResolver
	executor       *DualChannelExecutor
	registrar      driven.DomainRegistrar
	batch          *BatchCoordinator
	trackingPrefix string
	logger         *slog.Logger
}

// NewProvisioningService creates a ProvisioningService with the required dependencies.
func NewProvisioningService(
	resolver *DomainResolver,
	executor *DualChannelExecutor,
	registrar driven.DomainRegistrar,
	batch *BatchCoordinator,
	trackingPrefix string,
	logger *slog.Logger,
) *ProvisioningService {
	if trackingPrefix == "" {
		trackingPrefix = model.DefaultTrackingPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProvisioningService{
		resolver:       resolver,
		executor:       executor,
		registrar:      registrar,
		batch:          batch,
		trackingPrefix: trackingPrefix,
		logger:         logger,
	}
}

// CreateLander creates a lander. The returned error is non-nil only for
// invalid input; platform failures are reported in the result.
func (s *ProvisioningService) CreateLander(ctx context.Context, p LandingParams) (model.ExecutionResult, error) {
	return s.create(ctx, model.LandingKindLander, p)
}

// CreatePrelander creates a prelander. Error semantics match CreateLander.
func (s *ProvisioningService) CreatePrelander(ctx context.Context, p LandingParams) (model.ExecutionResult, error) {
	return s.create(ctx, model.LandingKindPrelander, p)
}

func (s *ProvisioningService) create(ctx context.Context, kind model.LandingKind, p LandingParams) (model.ExecutionResult, error) {
	op := operationFor(kind, p)
	if err := op.Validate(); err != nil {
		return model.ExecutionResult{}, err
	}

	rec, err := s.resolver.Resolve(ctx, op.Domain)
	if err != nil {
		return model.ExecutionResult{Error: model.NormalizeTransportError(err, "Failed to get domain info")}, nil
	}

	return s.executor.Execute(ctx, op.Payload(*rec, s.trackingPrefix)), nil
}

// CreateStructure resolves the domain once and creates a lander and a
// prelander under a shared random four-letter slug prefix. With Cloaker set
// the lander lives at /ck instead.
func (s *ProvisioningService) CreateStructure(ctx context.Context, p StructureParams) (StructureResult, error) {
	domain := strings.TrimSpace(p.Domain)
	if domain == "" {
		return StructureResult{}, ErrDomainRequired
	}
	if strings.TrimSpace(p.Product) == "" {
		return StructureResult{}, ErrProductRequired
	}

	prefix := fourLetters()
	landerSlug := prefix + "lander"
	if p.Cloaker {
		landerSlug = "ck"
	}

	lander := operationFor(model.LandingKindLander, LandingParams{
		Domain:          domain,
		Slug:            landerSlug,
		QueryParameters: p.QueryParameters,
		Product:         p.Product,
		PlatformTag:     p.PlatformTag,
		Cloaker:         p.Cloaker,
	})
	prelander := operationFor(model.LandingKindPrelander, LandingParams{
		Domain:          domain,
		Slug:            prefix + "pre",
		QueryParameters: p.QueryParameters,
		Product:         p.Product,
		PlatformTag:     p.PlatformTag,
	})

	out := StructureResult{
		Lander:    LandingOutcome{URL: lander.LandingURL()},
		Prelander: LandingOutcome{URL: prelander.LandingURL()},
	}

	rec, err := s.resolver.Resolve(ctx, domain)
	if err != nil {
		apiErr := model.NormalizeTransportError(err, "Failed to get domain info")
		out.Lander.Result = model.ExecutionResult{Error: apiErr}
		out.Prelander.Result = model.ExecutionResult{Error: apiErr}
		return out, nil
	}
	out.Domain = *rec

	out.Lander.Result = s.executor.Execute(ctx, lander.Payload(*rec, s.trackingPrefix))
	out.Prelander.Result = s.executor.Execute(ctx, prelander.Payload(*rec, s.trackingPrefix))

	s.logger.Info("structure created",
		"domain", domain,
		"lander_ok", out.Lander.Result.Success,
		"prelander_ok", out.Prelander.Result.Success,
	)
	return out, nil
}

// RegisterDomain adds the tracking host for domain to the platform.
func (s *ProvisioningService) RegisterDomain(ctx context.Context, domain string) (model.DomainRegistration, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return model.DomainRegistration{}, ErrDomainRequired
	}

	reg, err := s.registrar.RegisterDomain(ctx, domain)
	if err != nil {
		return model.DomainRegistration{}, model.NormalizeTransportError(err, "Domain registration failed")
	}
	s.logger.Info("domain registered", "domain", reg.Domain, "id", reg.DomainID)
	return reg, nil
}

// RegisterDomainsBatch registers every domain in waves.
func (s *ProvisioningService) RegisterDomainsBatch(ctx context.Context, domains []string) model.BatchResult {
	return s.batch.Run(ctx, domains, func(ctx context.Context, domain string) model.BatchItem {
		host := model.TrackingHost(strings.TrimSpace(domain), s.trackingPrefix)

		reg, err := s.RegisterDomain(ctx, domain)
		if err != nil {
			return model.BatchItem{Domain: host, Error: model.NormalizeTransportError(err, "Domain registration failed")}
		}
		return model.BatchItem{Domain: host, Success: true, ProviderID: reg.DomainID, Status: reg.Status}
	})
}

// CreateLandersBatch creates a lander on each domain from a shared template.
// The template's Domain and BaseURL are ignored.
func (s *ProvisioningService) CreateLandersBatch(ctx context.Context, template LandingParams, domains []string) model.BatchResult {
	return s.batch.Run(ctx, domains, func(ctx context.Context, domain string) model.BatchItem {
		p := template
		p.Domain = strings.TrimSpace(domain)
		p.BaseURL = ""

		res, err := s.CreateLander(ctx, p)
		if err != nil {
			return model.BatchItem{
				Domain: p.Domain,
				Error:  &model.APIError{Code: model.CodeAPIError, Message: err.Error()},
			}
		}
		return model.BatchItem{
			Domain:     p.Domain,
			Success:    res.Success,
			ProviderID: res.ProviderID,
			Status:     string(res.Channel),
			Error:      res.Error,
		}
	})
}

// ResolveDomain returns the platform record for domain.
func (s *ProvisioningService) ResolveDomain(ctx context.Context, domain string) (*model.DomainRecord, error) {
	return s.resolver.Resolve(ctx, domain)
}

// DomainStatus reports whether domain is live on the platform.
func (s *ProvisioningService) DomainStatus(ctx context.Context, domain string) model.DomainStatus {
	return s.resolver.CheckStatus(ctx, domain)
}

// ListDomains returns one page of the platform's domains, optionally
// filtered by a case-insensitive substring of the tracking host.
func (s *ProvisioningService) ListDomains(ctx context.Context, page, limit int, search string) (model.DomainListing, error) {
	return s.resolver.List(ctx, page, limit, search)
}

// BatchWaves reports how many sequential waves a batch of n domains takes.
func (s *ProvisioningService) BatchWaves(n int) int {
	return s.batch.Waves(n)
}

func operationFor(kind model.LandingKind, p LandingParams) model.WriteOperation {
	return model.WriteOperation{
		Kind:            kind,
		Domain:          strings.TrimSpace(p.Domain),
		BaseURL:         p.BaseURL,
		Slug:            p.Slug,
		QueryParameters: p.QueryParameters,
		Product:         p.Product,
		PlatformTag:     p.PlatformTag,
		Cloaker:         p.Cloaker,
	}
}

const letters = "abcdefghijklmnopqrstuvwxyz"

func fourLetters() string {
	var b strings.Builder
	for range 4 {
		b.WriteByte(letters[rand.IntN(len(letters))])
	}
	return b.String()
}

