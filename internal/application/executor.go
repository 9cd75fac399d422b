package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
	"github.com/ericfisherdev/rtprovision/internal/monitoring"
)

// CredentialSource yields the live session credential, or nil when none is valid.
type CredentialSource interface {
	GetValid(ctx context.Context) (*model.Credential, error)
}

// DualChannelExecutor performs one landing write: the direct channel first,
// then the automated channel only when the direct attempt is rejected with
// HTTP 403. There are no retries within a channel.
type DualChannelExecutor struct {
	creds     CredentialSource
	direct    driven.LandingWriter
	automated driven.LandingWriter
	metrics   *monitoring.Metrics
	logger    *slog.Logger
}

// NewDualChannelExecutor creates a DualChannelExecutor. automated may be nil,
// in which case a 403 from the direct channel is terminal.
func NewDualChannelExecutor(creds CredentialSource, direct, automated driven.LandingWriter, metrics *monitoring.Metrics, logger *slog.Logger) *DualChannelExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DualChannelExecutor{
		creds:     creds,
		direct:    direct,
		automated: automated,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute runs payload through the channels and returns the terminal result.
// Failures are reported in the result, never as a Go error.
func (e *DualChannelExecutor) Execute(ctx context.Context, payload model.LandingPayload) model.ExecutionResult {
	cred, err := e.creds.GetValid(ctx)
	if err != nil {
		e.logger.Error("credential lookup failed", "error", err)
		return failed(model.ChannelDirect, model.NormalizeTransportError(err, "Failed to load credential"))
	}
	if cred == nil {
		return failed(model.ChannelDirect, model.NewNoCredentialError())
	}

	id, err := e.direct.CreateLanding(ctx, *cred, payload)
	e.metrics.IncWriteAttempt(string(model.ChannelDirect), err == nil)
	if err == nil {
		e.logger.Info("landing created", "channel", model.ChannelDirect, "id", id, "title", payload.Title)
		return model.ExecutionResult{Success: true, ProviderID: id, Channel: model.ChannelDirect}
	}

	directErr := model.NormalizeTransportError(err, "Failed to create landing")
	if !directErr.PermissionDenied() || e.automated == nil {
		e.logger.Warn("direct write failed", "code", directErr.Code, "status", directErr.StatusCode, "error", directErr.Message)
		return failed(model.ChannelDirect, directErr)
	}

	e.logger.Warn("direct write rejected, falling back to automated channel", "title", payload.Title)
	e.metrics.IncFallback()

	id, err = e.automated.CreateLanding(ctx, *cred, payload)
	e.metrics.IncWriteAttempt(string(model.ChannelAutomated), err == nil)
	if err == nil {
		e.logger.Info("landing created", "channel", model.ChannelAutomated, "id", id, "title", payload.Title)
		return model.ExecutionResult{Success: true, ProviderID: id, Channel: model.ChannelAutomated}
	}

	e.logger.Error("automated write failed", "error", err)
	return failed(model.ChannelAutomated, directErr)
}

func failed(ch model.Channel, err *model.APIError) model.ExecutionResult {
	return model.ExecutionResult{Success: false, Error: err, Channel: ch}
}
