package httphandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ericfisherdev/rtprovision/internal/application"
	"github.com/ericfisherdev/rtprovision/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeAPIError writes a normalized platform error with a status derived from its code.
func writeAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	writeJSON(w, statusForAPIError(apiErr), errorResponse{
		Error:   apiErr.Message,
		Code:    apiErr.Code,
		Details: apiErr.Details,
	})
}

// statusForAPIError maps a normalized error onto this API's response status.
// Upstream failures surface as 502 so callers can tell them from their own mistakes.
func statusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.CodeNoCredential:
		return http.StatusServiceUnavailable
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error   string          `json:"error"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// CredentialStatusResponse is the JSON representation of the credential status.
type CredentialStatusResponse struct {
	Valid          bool    `json:"valid"`
	Expired        bool    `json:"expired"`
	ExpiringSoon   bool    `json:"expiring_soon"`
	HoursRemaining float64 `json:"hours_remaining"`
	ExpiresAt      string  `json:"expires_at,omitempty"`
	Message        string  `json:"message"`
}

// SaveCredentialResponse acknowledges a stored credential.
type SaveCredentialResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ExpiresAt   string `json:"expires_at"`
	CookieCount int    `json:"cookie_count,omitempty"`
}

// PurgeResponse reports how many credentials were deleted.
type PurgeResponse struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// SSLResponse is the JSON representation of a domain's certificate state.
type SSLResponse struct {
	Active bool `json:"active"`
}

// DomainInfoResponse is the JSON representation of a resolved platform domain.
type DomainInfoResponse struct {
	Domain    string      `json:"domain"`
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Type      string      `json:"type,omitempty"`
	SSL       SSLResponse `json:"ssl"`
	Status    string      `json:"status,omitempty"`
	CreatedAt string      `json:"created_at,omitempty"`
	UpdatedAt string      `json:"updated_at,omitempty"`
}

// DomainStatusResponse is the JSON representation of a domain status check.
type DomainStatusResponse struct {
	Domain string          `json:"domain"`
	Active bool            `json:"active"`
	ID     string          `json:"id,omitempty"`
	SSL    *SSLResponse    `json:"ssl,omitempty"`
	Error  *model.APIError `json:"error,omitempty"`
}

// RegistrationResponse acknowledges a registered tracking domain.
type RegistrationResponse struct {
	Message string `json:"message"`
	Domain  string `json:"domain"`
	ID      string `json:"id"`
	Status  string `json:"status,omitempty"`
}

// DomainListResponse is the JSON representation of one page of domains.
type DomainListResponse struct {
	Domains    []DomainInfoResponse `json:"domains"`
	Pagination PaginationResponse   `json:"pagination"`
}

// PaginationResponse describes the page a listing response holds.
type PaginationResponse struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// CredentialSummaryResponse describes one stored credential without secrets.
type CredentialSummaryResponse struct {
	ID          int64  `json:"id"`
	IssuedAt    string `json:"issued_at"`
	ExpiresAt   string `json:"expires_at"`
	Active      bool   `json:"active"`
	Expired     bool   `json:"expired"`
	TokenLength int    `json:"token_length"`
	CookieCount int    `json:"cookie_count"`
}

// CredentialHistoryResponse lists stored credentials, newest first.
type CredentialHistoryResponse struct {
	Count       int                         `json:"count"`
	Credentials []CredentialSummaryResponse `json:"credentials"`
}

// ExecutionResponse is the JSON representation of one landing write.
type ExecutionResponse struct {
	Success bool            `json:"success"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	URL     string          `json:"url,omitempty"`
	Error   *model.APIError `json:"error,omitempty"`
}

// BatchSummaryResponse counts batch outcomes.
type BatchSummaryResponse struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchItemResponse is the outcome of one domain in a batch.
type BatchItemResponse struct {
	Domain  string          `json:"domain"`
	Success bool            `json:"success"`
	ID      string          `json:"id,omitempty"`
	Status  string          `json:"status,omitempty"`
	Error   *model.APIError `json:"error,omitempty"`
}

// BatchResponse is the JSON representation of a batch run.
type BatchResponse struct {
	Message string               `json:"message"`
	Summary BatchSummaryResponse `json:"summary"`
	Results []BatchItemResponse  `json:"results"`
}

// StructureResponse is the JSON representation of a lander/prelander pair.
type StructureResponse struct {
	Message   string              `json:"message"`
	Domain    *DomainInfoResponse `json:"domain,omitempty"`
	Lander    ExecutionResponse   `json:"lander"`
	Prelander ExecutionResponse   `json:"prelander"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// NewCredentialStatusResponse converts a domain CredentialStatus to its JSON representation.
func NewCredentialStatusResponse(st model.CredentialStatus) CredentialStatusResponse {
	return CredentialStatusResponse{
		Valid:          st.Valid,
		Expired:        st.Expired,
		ExpiringSoon:   st.ExpiringSoon,
		HoursRemaining: st.HoursRemaining,
		ExpiresAt:      formatTime(st.ExpiresAt),
		Message:        st.Message,
	}
}

// NewDomainInfoResponse converts a domain record to its JSON representation.
func NewDomainInfoResponse(rec model.DomainRecord) DomainInfoResponse {
	return DomainInfoResponse{
		Domain:    rec.CanonicalURL,
		ID:        rec.ExternalID,
		Name:      rec.DisplayName,
		Type:      rec.Type,
		SSL:       SSLResponse{Active: rec.SSL.Active},
		Status:    rec.Status,
		CreatedAt: formatTime(rec.CreatedAt),
		UpdatedAt: formatTime(rec.UpdatedAt),
	}
}

// NewDomainListResponse converts a domain listing to its JSON representation.
func NewDomainListResponse(l model.DomainListing) DomainListResponse {
	domains := make([]DomainInfoResponse, 0, len(l.Domains))
	for _, d := range l.Domains {
		domains = append(domains, NewDomainInfoResponse(d))
	}
	return DomainListResponse{
		Domains: domains,
		Pagination: PaginationResponse{
			Page:       l.Page,
			Limit:      l.Limit,
			Total:      l.Total,
			TotalPages: l.TotalPages,
		},
	}
}

// NewRegistrationResponse converts a domain registration to its JSON representation.
func NewRegistrationResponse(reg model.DomainRegistration) RegistrationResponse {
	return RegistrationResponse{
		Message: fmt.Sprintf("Domain %s registered successfully", reg.Domain),
		Domain:  reg.Domain,
		ID:      reg.DomainID,
		Status:  reg.Status,
	}
}

// NewCredentialHistoryResponse converts credential summaries to their JSON representation.
func NewCredentialHistoryResponse(history []model.CredentialSummary) CredentialHistoryResponse {
	items := make([]CredentialSummaryResponse, 0, len(history))
	for _, c := range history {
		items = append(items, CredentialSummaryResponse{
			ID:          c.ID,
			IssuedAt:    formatTime(c.IssuedAt),
			ExpiresAt:   formatTime(c.ExpiresAt),
			Active:      c.Active,
			Expired:     c.Expired,
			TokenLength: c.TokenLength,
			CookieCount: c.CookieCount,
		})
	}
	return CredentialHistoryResponse{Count: len(items), Credentials: items}
}

// NewDomainStatusResponse converts a DomainStatus to its JSON representation.
func NewDomainStatusResponse(st model.DomainStatus) DomainStatusResponse {
	resp := DomainStatusResponse{
		Domain: st.Domain,
		Active: st.Active,
		ID:     st.ID,
		Error:  st.Error,
	}
	if st.Error == nil {
		resp.SSL = &SSLResponse{Active: st.SSL.Active}
	}
	return resp
}

// toExecutionResponse converts an ExecutionResult to its JSON representation.
func toExecutionResponse(res model.ExecutionResult, url string) ExecutionResponse {
	return ExecutionResponse{
		Success: res.Success,
		ID:      res.ProviderID,
		Channel: string(res.Channel),
		URL:     url,
		Error:   res.Error,
	}
}

// NewBatchResponse converts a BatchResult to its JSON representation.
func NewBatchResponse(message string, res model.BatchResult) BatchResponse {
	items := make([]BatchItemResponse, 0, len(res.Results))
	for _, it := range res.Results {
		items = append(items, BatchItemResponse{
			Domain:  it.Domain,
			Success: it.Success,
			ID:      it.ProviderID,
			Status:  it.Status,
			Error:   it.Error,
		})
	}
	return BatchResponse{
		Message: message,
		Summary: BatchSummaryResponse{
			Total:      res.Summary.Total,
			Successful: res.Summary.Successful,
			Failed:     res.Summary.Failed,
		},
		Results: items,
	}
}

// toStructureResponse converts a StructureResult to its JSON representation.
func toStructureResponse(out application.StructureResult) StructureResponse {
	resp := StructureResponse{
		Message:   "Structure created successfully",
		Lander:    toExecutionResponse(out.Lander.Result, out.Lander.URL),
		Prelander: toExecutionResponse(out.Prelander.Result, out.Prelander.URL),
	}
	if out.Domain.ExternalID != "" {
		info := NewDomainInfoResponse(out.Domain)
		resp.Domain = &info
	}
	if !out.Lander.Result.Success || !out.Prelander.Result.Success {
		resp.Message = "Structure created with errors"
	}
	return resp
}
