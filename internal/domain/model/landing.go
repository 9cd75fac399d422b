package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// LandingKind distinguishes the two campaign page types the platform stores.
type LandingKind string

const (
	LandingKindLander    LandingKind = "lander"
	LandingKindPrelander LandingKind = "prelander"
)

// TypeTag returns the platform's one-letter type for the kind.
func (k LandingKind) TypeTag() string {
	if k == LandingKindPrelander {
		return "p"
	}
	return "l"
}

// Title returns the display suffix used in landing titles.
func (k LandingKind) Title() string {
	if k == LandingKindPrelander {
		return "Prelander"
	}
	return "Lander"
}

// Valid reports whether k is a known kind.
func (k LandingKind) Valid() bool {
	return k == LandingKindLander || k == LandingKindPrelander
}

// QueryParam is a single ordered query-string pair.
type QueryParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WriteOperation describes one landing to create. It is not mutated after
// construction.
type WriteOperation struct {
	Kind            LandingKind
	Domain          string
	BaseURL         string
	Slug            string
	QueryParameters []QueryParam
	Product         string
	PlatformTag     string
	Cloaker         bool
}

// Validate checks the fields the payload builder depends on.
func (op WriteOperation) Validate() error {
	if !op.Kind.Valid() {
		return fmt.Errorf("unknown landing kind %q", op.Kind)
	}
	if strings.TrimSpace(op.Domain) == "" {
		return errors.New("domain is required")
	}
	return nil
}

// LandingURL renders the destination URL. The trailing "?" is always present
// so the platform can append its own click parameters.
func (op WriteOperation) LandingURL() string {
	base := strings.TrimRight(op.BaseURL, "/")
	if base == "" {
		base = "https://" + op.Domain
	}
	if slug := strings.Trim(op.Slug, "/"); slug != "" {
		base += "/" + slug
	}
	return base + "?" + EncodeQuery(op.QueryParameters)
}

// Payload assembles the platform write body for this operation against a
// resolved domain record.
func (op WriteOperation) Payload(record DomainRecord, trackingPrefix string) LandingPayload {
	tracking := TrackingHost(op.Domain, trackingPrefix)

	title := op.Domain + " | " + op.Kind.Title()
	if op.Product != "" {
		title = op.Domain + " | " + op.Product + " | " + op.Kind.Title()
	}

	tags := []string{}
	if op.PlatformTag != "" {
		tags = append(tags, op.PlatformTag)
	}

	return LandingPayload{
		Title:     title,
		Type:      op.Kind.TypeTag(),
		DomainID:  record.ExternalID,
		TypeURL:   "https://" + tracking + "/click",
		URL:       op.LandingURL(),
		LPViews:   `<script src="https://` + tracking + `/track.js"></script>`,
		LPProtect: "",
		Listicle:  false,
		Tags:      tags,
	}
}

// LandingPayload is the JSON body accepted by the platform's landings endpoint.
type LandingPayload struct {
	Title     string   `json:"title"`
	Type      string   `json:"type"`
	DomainID  string   `json:"domain_id"`
	TypeURL   string   `json:"typeUrl"`
	URL       string   `json:"url"`
	LPViews   string   `json:"lp_views"`
	LPProtect string   `json:"lp_protect"`
	Listicle  bool     `json:"listicle"`
	Tags      []string `json:"tags"`
}

// macroPattern matches platform template macros such as {sub8}.
var macroPattern = regexp.MustCompile(`\{[A-Za-z0-9_.\-]+\}`)

// EncodeQuery serializes params in order. Values are query-escaped except for
// template macros, which the platform substitutes itself and must stay literal.
func EncodeQuery(params []QueryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(escapeValue(p.Value))
	}
	return b.String()
}

func escapeValue(v string) string {
	var b strings.Builder
	last := 0
	for _, loc := range macroPattern.FindAllStringIndex(v, -1) {
		b.WriteString(url.QueryEscape(v[last:loc[0]]))
		b.WriteString(v[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(url.QueryEscape(v[last:]))
	return b.String()
}

// LandingIDFromResponse extracts the "id" of a landings response body. A
// missing, non-scalar or unparseable id yields "".
func LandingIDFromResponse(body []byte) string {
	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return ScalarString(resp.ID)
}

// ScalarString renders a JSON string or number without quotes. Anything else
// yields "".
func ScalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
