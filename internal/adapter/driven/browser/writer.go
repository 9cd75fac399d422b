// Package browser implements the automated write channel: the landing write
// is replayed as a same-origin fetch from inside a real Chrome page.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LandingWriter = (*Writer)(nil)

// DefaultUserAgent is presented by the automated browser.
const DefaultUserAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36`

// Options configures the automated channel.
type Options struct {
	AppOrigin string // e.g. https://app.redtrack.io
	AppAPIURL string // e.g. https://app.redtrack.io/api
	Headless  bool
	UserAgent string
	// Timeout bounds one whole session (launch, navigate, fetch). Zero leaves
	// only the browser engine's own defaults.
	Timeout time.Duration
}

// Writer launches an isolated browser per call. Nothing is pooled: each
// session belongs to exactly one CreateLanding invocation.
type Writer struct {
	opts   Options
	logger *slog.Logger
}

// NewWriter creates the automated channel.
func NewWriter(opts Options, logger *slog.Logger) *Writer {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	opts.AppOrigin = strings.TrimRight(opts.AppOrigin, "/")
	opts.AppAPIURL = strings.TrimRight(opts.AppAPIURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{opts: opts, logger: logger}
}

// fetchResult is what the in-page script resolves to.
type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// CreateLanding opens the app, then posts payload from the page's origin with
// the session's bearer token. Browser, context and page are torn down on
// every return path.
func (w *Writer) CreateLanding(ctx context.Context, cred model.Credential, payload model.LandingPayload) (string, error) {
	script, err := FetchScript(w.opts.AppAPIURL+"/landings", cred.Token, payload)
	if err != nil {
		return "", model.NormalizeTransportError(err, "build in-page request")
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", w.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(w.opts.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx, chromedp.WithLogf(w.debugf))
	defer cancelTask()

	if w.opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		taskCtx, cancelTimeout = context.WithTimeout(taskCtx, w.opts.Timeout)
		defer cancelTimeout()
	}

	start := time.Now()
	var result fetchResult
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(w.opts.AppOrigin+"/landers"),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(script, &result, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		w.logger.Error("browser session failed", "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
		return "", model.NormalizeTransportError(err, "Automated landing creation failed")
	}

	w.logger.Info("browser landing write finished",
		"status", result.Status,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return classify(result)
}

// classify turns the in-page response into a landing id or a normalized
// error, the same way the direct channel treats its HTTP response.
func classify(res fetchResult) (string, error) {
	if res.Status < 200 || res.Status > 299 {
		return "", model.NormalizeAPIError(res.Status, []byte(res.Body), "Automated landing creation failed")
	}
	return model.LandingIDFromResponse([]byte(res.Body)), nil
}

func (w *Writer) debugf(format string, args ...any) {
	w.logger.Debug(fmt.Sprintf(format, args...))
}

// FetchScript renders the in-page request. Endpoint, token and payload are
// embedded as JSON literals so no value can break out of the script.
func FetchScript(endpoint, token string, payload model.LandingPayload) (string, error) {
	endpointJSON, err := json.Marshal(endpoint)
	if err != nil {
		return "", err
	}
	authJSON, err := json.Marshal("Bearer " + token)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`(async () => {
  const res = await fetch(%s, {
    method: "POST",
    credentials: "include",
    headers: {
      "Authorization": %s,
      "Content-Type": "application/json",
      "Accept": "application/json"
    },
    body: JSON.stringify(%s)
  });
  return { status: res.status, body: await res.text() };
})()`, endpointJSON, authJSON, payloadJSON), nil
}
