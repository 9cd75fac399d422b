package application_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/rtprovision/internal/application"
	"github.com/ericfisherdev/rtprovision/internal/domain/model"
)

type provisioningFixture struct {
	svc       *application.ProvisioningService
	lister    *mockLister
	direct    *mockWriter
	automated *mockWriter
	registrar *mockRegistrar
}

func newProvisioningFixture(records []model.DomainRecord, direct *mockWriter) provisioningFixture {
	f := provisioningFixture{
		lister:    pagedLister(records),
		direct:    direct,
		automated: writerReturning("auto-id", nil),
		registrar: &mockRegistrar{register: func(domain string) (model.DomainRegistration, error) {
			return model.DomainRegistration{Domain: "rt." + domain, DomainID: "reg-" + domain, Status: "active"}, nil
		}},
	}
	resolver := application.NewDomainResolver(f.lister, "", 0, nil, nil)
	exec := application.NewDualChannelExecutor(stubCreds{cred: liveCredential()}, f.direct, f.automated, nil, nil)
	batch := application.NewBatchCoordinator(10, nil, nil)
	f.svc = application.NewProvisioningService(resolver, exec, f.registrar, batch, "", nil)
	return f
}

func TestProvisioning_CreateLander(t *testing.T) {
	f := newProvisioningFixture([]model.DomainRecord{
		{ExternalID: "dom-9", CanonicalURL: "rt.example.com"},
	}, writerReturning("lnd-1", nil))

	res, err := f.svc.CreateLander(context.Background(), application.LandingParams{
		Domain:          "example.com",
		Slug:            "offer",
		QueryParameters: []model.QueryParam{{Key: "src", Value: "{sub1}"}, {Key: "q", Value: "a b"}},
		Product:         "Widget",
		PlatformTag:     "google",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "lnd-1", res.ProviderID)

	require.Len(t, f.direct.payloads, 1)
	want := model.LandingPayload{
		Title:    "example.com | Widget | Lander",
		Type:     "l",
		DomainID: "dom-9",
		TypeURL:  "https://rt.example.com/click",
		URL:      "https://example.com/offer?src={sub1}&q=a+b",
		LPViews:  `<script src="https://rt.example.com/track.js"></script>`,
		Tags:     []string{"google"},
	}
	if diff := cmp.Diff(want, f.direct.payloads[0]); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestProvisioning_CreatePrelander(t *testing.T) {
	f := newProvisioningFixture([]model.DomainRecord{
		{ExternalID: "dom-1", CanonicalURL: "rt.example.com"},
	}, writerReturning("pre-1", nil))

	res, err := f.svc.CreatePrelander(context.Background(), application.LandingParams{Domain: "example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, f.direct.payloads, 1)
	assert.Equal(t, "p", f.direct.payloads[0].Type)
	assert.Equal(t, "example.com | Prelander", f.direct.payloads[0].Title)
}

func TestProvisioning_CreateLanderValidation(t *testing.T) {
	f := newProvisioningFixture(nil, writerReturning("x", nil))

	_, err := f.svc.CreateLander(context.Background(), application.LandingParams{Domain: " "})
	require.Error(t, err)
	assert.Zero(t, f.lister.calls.Load())
	assert.Zero(t, f.direct.calls.Load())
}

func TestProvisioning_CreateLanderUnknownDomain(t *testing.T) {
	f := newProvisioningFixture(nil, writerReturning("x", nil))

	res, err := f.svc.CreateLander(context.Background(), application.LandingParams{Domain: "ghost.com"})
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, model.CodeNotFound, res.Error.Code)
	assert.Zero(t, f.direct.calls.Load())
}

func TestProvisioning_CreateStructure(t *testing.T) {
	f := newProvisioningFixture([]model.DomainRecord{
		{ExternalID: "dom-1", CanonicalURL: "rt.example.com"},
	}, writerReturning("id", nil))

	out, err := f.svc.CreateStructure(context.Background(), application.StructureParams{
		Domain:  "example.com",
		Product: "Widget",
	})
	require.NoError(t, err)

	landerRe := regexp.MustCompile(`^https://example\.com/([a-z]{4})lander\?$`)
	preRe := regexp.MustCompile(`^https://example\.com/([a-z]{4})pre\?$`)
	lm := landerRe.FindStringSubmatch(out.Lander.URL)
	pm := preRe.FindStringSubmatch(out.Prelander.URL)
	require.NotNil(t, lm, out.Lander.URL)
	require.NotNil(t, pm, out.Prelander.URL)
	assert.Equal(t, lm[1], pm[1], "lander and prelander share the slug prefix")

	assert.Equal(t, "dom-1", out.Domain.ExternalID)
	assert.True(t, out.Lander.Result.Success)
	assert.True(t, out.Prelander.Result.Success)
	assert.Equal(t, int32(1), f.lister.calls.Load(), "domain resolved once")

	require.Len(t, f.direct.payloads, 2)
	assert.Equal(t, "example.com | Widget | Lander", f.direct.payloads[0].Title)
	assert.Equal(t, "example.com | Widget | Prelander", f.direct.payloads[1].Title)
}

func TestProvisioning_CreateStructureCloaker(t *testing.T) {
	f := newProvisioningFixture([]model.DomainRecord{
		{ExternalID: "dom-1", CanonicalURL: "rt.example.com"},
	}, writerReturning("id", nil))

	out, err := f.svc.CreateStructure(context.Background(), application.StructureParams{
		Domain:  "example.com",
		Product: "Widget",
		Cloaker: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/ck?", out.Lander.URL)
	assert.True(t, strings.HasSuffix(out.Prelander.URL, "pre?"))
}

func TestProvisioning_CreateStructureRequiresProduct(t *testing.T) {
	f := newProvisioningFixture(nil, writerReturning("id", nil))

	_, err := f.svc.CreateStructure(context.Background(), application.StructureParams{Domain: "example.com"})
	require.ErrorIs(t, err, application.ErrProductRequired)

	_, err = f.svc.CreateStructure(context.Background(), application.StructureParams{Product: "Widget"})
	assert.ErrorIs(t, err, application.ErrDomainRequired)
}

func TestProvisioning_RegisterDomain(t *testing.T) {
	f := newProvisioningFixture(nil, writerReturning("", nil))

	reg, err := f.svc.RegisterDomain(context.Background(), "new.com")
	require.NoError(t, err)
	assert.Equal(t, "rt.new.com", reg.Domain)
	assert.Equal(t, "reg-new.com", reg.DomainID)

	_, err = f.svc.RegisterDomain(context.Background(), "")
	assert.ErrorIs(t, err, application.ErrDomainRequired)
}

func TestProvisioning_RegisterDomainsBatch(t *testing.T) {
	f := newProvisioningFixture(nil, writerReturning("", nil))
	f.registrar.register = func(domain string) (model.DomainRegistration, error) {
		if strings.HasPrefix(domain, "d1") {
			return model.DomainRegistration{}, &model.APIError{Code: model.CodeAPIError, Message: "duplicate", StatusCode: 422}
		}
		if domain == "d20.com" {
			return model.DomainRegistration{}, errors.New("connection refused")
		}
		return model.DomainRegistration{Domain: "rt." + domain, DomainID: "id-" + domain, Status: "active"}, nil
	}

	res := f.svc.RegisterDomainsBatch(context.Background(), numberedDomains(23))

	// d10..d19 and d20 fail.
	assert.Equal(t, model.BatchSummary{Total: 23, Successful: 12, Failed: 11}, res.Summary)
	assert.Equal(t, int32(23), f.registrar.calls.Load())
	require.Len(t, res.Results, 23)

	assert.Equal(t, "rt.d00.com", res.Results[0].Domain)
	assert.Equal(t, "id-d00.com", res.Results[0].ProviderID)

	last := res.Results[22]
	assert.Equal(t, "rt.d20.com", last.Domain)
	require.NotNil(t, last.Error)
	assert.Equal(t, model.CodeAPIError, last.Error.Code)
}

func TestProvisioning_CreateLandersBatch(t *testing.T) {
	f := newProvisioningFixture([]model.DomainRecord{
		{ExternalID: "a", CanonicalURL: "rt.a.com"},
		{ExternalID: "b", CanonicalURL: "rt.b.com"},
	}, writerReturning("lnd", nil))

	res := f.svc.CreateLandersBatch(context.Background(), application.LandingParams{
		Domain:  "ignored.com",
		BaseURL: "https://ignored.com",
		Slug:    "go",
	}, []string{"a.com", "missing.com", "b.com"})

	assert.Equal(t, model.BatchSummary{Total: 3, Successful: 2, Failed: 1}, res.Summary)
	assert.Equal(t, "missing.com", res.Results[2].Domain)
	assert.Equal(t, model.CodeNotFound, res.Results[2].Error.Code)
	assert.Equal(t, string(model.ChannelDirect), res.Results[0].Status)

	urls := []string{}
	for _, p := range f.direct.payloads {
		urls = append(urls, p.URL)
	}
	assert.ElementsMatch(t, []string{"https://a.com/go?", "https://b.com/go?"}, urls)
}

func TestProvisioning_ResolveAndStatus(t *testing.T) {
	f := newProvisioningFixture([]model.DomainRecord{
		{ExternalID: "a", CanonicalURL: "rt.a.com", Status: "active"},
	}, writerReturning("", nil))
	ctx := context.Background()

	rec, err := f.svc.ResolveDomain(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.ExternalID)

	st := f.svc.DomainStatus(ctx, "a.com")
	assert.True(t, st.Active)
}

func TestProvisioning_ListDomains(t *testing.T) {
	f := newProvisioningFixture([]model.DomainRecord{
		{ExternalID: "a", CanonicalURL: "rt.alpha.com"},
		{ExternalID: "b", CanonicalURL: "rt.beta.com"},
		{ExternalID: "c", CanonicalURL: "rt.alphabet.io"},
	}, writerReturning("", nil))

	got, err := f.svc.ListDomains(context.Background(), 1, 50, "alpha")

	require.NoError(t, err)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.TotalPages)
	ids := []string{}
	for _, d := range got.Domains {
		ids = append(ids, d.ExternalID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestProvisioning_BatchWaves(t *testing.T) {
	f := newProvisioningFixture(nil, writerReturning("", nil))

	assert.Equal(t, 3, f.svc.BatchWaves(23))
}
