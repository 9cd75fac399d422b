package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// RTPROVISION_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set RTPROVISION_SECRET_KEY")

// CredentialStore defines the driven port for session credential persistence.
// The adapter is responsible for encryption at rest; this interface operates
// on plaintext values at the domain boundary.
type CredentialStore interface {
	// Save deactivates every active credential and stores cred as the single
	// active one, atomically. The stored record (with ID) is returned.
	Save(ctx context.Context, cred model.Credential) (model.Credential, error)

	// GetActive returns the active credential whose expiry is after now.
	// Returns (nil, nil) when there is none.
	GetActive(ctx context.Context, now time.Time) (*model.Credential, error)

	// List returns every stored credential, newest first.
	List(ctx context.Context) ([]model.Credential, error)

	// PurgeAll deletes every credential regardless of state and returns the
	// number removed.
	PurgeAll(ctx context.Context) (int64, error)
}
