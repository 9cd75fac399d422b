package driven

import (
	"context"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
)

// LandingWriter defines the driven port for one write channel to the
// platform's session-authenticated landings endpoint. Both the direct HTTP
// channel and the browser-automation channel implement it.
type LandingWriter interface {
	// CreateLanding submits payload using cred and returns the platform's id
	// for the new landing. Any failure is returned as a *model.APIError whose
	// StatusCode is the HTTP status the platform answered with (0 if none).
	CreateLanding(ctx context.Context, cred model.Credential, payload model.LandingPayload) (string, error)
}
