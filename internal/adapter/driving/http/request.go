package httphandler

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ericfisherdev/rtprovision/internal/application"
	"github.com/ericfisherdev/rtprovision/internal/domain/model"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// CookieJSON is one captured cookie.
type CookieJSON struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CookieInput accepts either a raw Cookie header string or an array of
// {name, value} objects.
type CookieInput struct {
	Raw     string
	Cookies []model.Cookie
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CookieInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.Raw)
	}
	var list []CookieJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("cookies must be a string or an array of {name, value}")
	}
	c.Cookies = make([]model.Cookie, 0, len(list))
	for _, ck := range list {
		c.Cookies = append(c.Cookies, model.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return nil
}

// Empty reports whether no cookies were supplied.
func (c CookieInput) Empty() bool {
	return c.Raw == "" && len(c.Cookies) == 0
}

// Header renders the cookies as a Cookie header value.
func (c CookieInput) Header() string {
	if c.Raw != "" {
		return c.Raw
	}
	return application.FlattenCookies(c.Cookies)
}

// SaveCredentialRequest is the JSON body for POST /api/v1/auth.
type SaveCredentialRequest struct {
	Token          string      `json:"token"`
	Cookies        CookieInput `json:"cookies"`
	ExpiresInHours float64     `json:"expires_in_hours"`
}

// CaptureCredentialRequest is the JSON body for POST /api/v1/auth/credentials.
type CaptureCredentialRequest struct {
	Token   string       `json:"token"`
	Cookies []CookieJSON `json:"cookies"`
}

// RegisterDomainRequest is the JSON body for POST /api/v1/domains.
type RegisterDomainRequest struct {
	Domain string `json:"domain"`
}

// BatchDomainsRequest is the JSON body for POST /api/v1/domains/batch.
type BatchDomainsRequest struct {
	Domains []string `json:"domains"`
}

// QueryParamJSON is one ordered query-string pair.
type QueryParamJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LandingRequest is the JSON body for POST /api/v1/landers and /api/v1/prelanders.
type LandingRequest struct {
	Domain      string           `json:"domain"`
	BaseURL     string           `json:"base_url"`
	Slug        string           `json:"slug"`
	Parameters  []QueryParamJSON `json:"parameters"`
	Product     string           `json:"product"`
	PlatformTag string           `json:"platform_tag"`
	Cloaker     bool             `json:"cloaker"`
}

// BatchLandersRequest is the JSON body for POST /api/v1/landers/batch.
type BatchLandersRequest struct {
	Domains     []string         `json:"domains"`
	Slug        string           `json:"slug"`
	Parameters  []QueryParamJSON `json:"parameters"`
	Product     string           `json:"product"`
	PlatformTag string           `json:"platform_tag"`
	Cloaker     bool             `json:"cloaker"`
}

// StructureRequest is the JSON body for POST /api/v1/structures.
type StructureRequest struct {
	Domain      string           `json:"domain"`
	Product     string           `json:"product"`
	Cloaker     bool             `json:"cloaker"`
	PlatformTag string           `json:"platform_tag"`
	Parameters  []QueryParamJSON `json:"parameters"`
}

func toQueryParams(in []QueryParamJSON) []model.QueryParam {
	out := make([]model.QueryParam, 0, len(in))
	for _, p := range in {
		out = append(out, model.QueryParam{Key: p.Key, Value: p.Value})
	}
	return out
}

func (r LandingRequest) toParams() application.LandingParams {
	return application.LandingParams{
		Domain:          r.Domain,
		BaseURL:         r.BaseURL,
		Slug:            r.Slug,
		QueryParameters: toQueryParams(r.Parameters),
		Product:         r.Product,
		PlatformTag:     r.PlatformTag,
		Cloaker:         r.Cloaker,
	}
}

func (r BatchLandersRequest) toParams() application.LandingParams {
	return application.LandingParams{
		Slug:            r.Slug,
		QueryParameters: toQueryParams(r.Parameters),
		Product:         r.Product,
		PlatformTag:     r.PlatformTag,
		Cloaker:         r.Cloaker,
	}
}
