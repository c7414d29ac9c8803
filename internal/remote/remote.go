// Package remote is the HTTP adapter for remote transformation stages.
//
// The wire contract is deliberately generic: POST {"text","model"} and read
// {"text"} back. Provider-specific protocols belong in a proxy behind the
// configured URL. Failures are classified into REMOTE_* errors so the
// pipeline can wrap them as STAGE_FAILED with a meaningful cause.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hpungsan/clipflow/internal/config"
	"github.com/hpungsan/clipflow/internal/errors"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// Options configures an HTTPStage.
type Options struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPStage calls a remote transformation endpoint.
type HTTPStage struct {
	opts Options
}

type request struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type response struct {
	Text  *string `json:"text"`
	Error string  `json:"error,omitempty"`
}

// New creates an HTTPStage.
func New(opts Options) *HTTPStage {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &HTTPStage{opts: opts}
}

// FromConfig builds the stage from cfg.Remote, reading the API key from
// the configured environment variable.
func FromConfig(cfg *config.Config) (*HTTPStage, error) {
	rc := cfg.Remote
	if strings.TrimSpace(rc.URL) == "" {
		return nil, errors.NewInvalidRequest("remote.url is required for the remote stage")
	}
	var key string
	if rc.APIKeyEnv != "" {
		key = os.Getenv(rc.APIKeyEnv)
	}
	return New(Options{
		URL:     rc.URL,
		APIKey:  key,
		Model:   rc.Model,
		Timeout: time.Duration(rc.TimeoutMs) * time.Millisecond,
	}), nil
}

func (s *HTTPStage) ID() string { return config.StageRemote }

func (s *HTTPStage) Name() string {
	if s.opts.Model != "" {
		return "Remote (" + s.opts.Model + ")"
	}
	return "Remote"
}

// Transform sends text to the endpoint. When ctx itself ends, ctx.Err() is
// returned unclassified so the caller can tell cancellation from failure.
func (s *HTTPStage) Transform(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(request{Text: text, Model: s.opts.Model})
	if err != nil {
		return "", errors.NewInternal(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.opts.URL, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid remote url: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyTransport(callCtx, err, s.opts.Timeout)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyTransport(callCtx, err, s.opts.Timeout)
	}

	if err := classifyStatus(resp, raw); err != nil {
		return "", err
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.NewRemote(errors.ErrRemoteBadResponse, "remote returned malformed JSON", err)
	}
	if out.Text == nil {
		return "", errors.NewRemote(errors.ErrRemoteBadResponse, "remote response has no text field", nil)
	}
	return *out.Text, nil
}

func classifyTransport(callCtx context.Context, err error, timeout time.Duration) error {
	var netErr net.Error
	if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewRemote(errors.ErrRemoteTimeout,
			fmt.Sprintf("remote did not answer within %s", timeout), err)
	}
	return errors.NewRemote(errors.ErrRemoteNetwork, "remote unreachable", err)
}

func classifyStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	msg := fmt.Sprintf("remote returned %d", code)
	if detail := strings.TrimSpace(string(body)); detail != "" && len(detail) < 200 {
		msg += ": " + detail
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.NewRemote(errors.ErrRemoteAuth, msg, nil)
	case code == http.StatusTooManyRequests:
		e := errors.NewRemote(errors.ErrRemoteRateLimited, msg, nil)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			e.Details = map[string]any{"retry_after": ra}
		}
		return e
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return errors.NewRemote(errors.ErrRemoteTimeout, msg, nil)
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable:
		return errors.NewRemote(errors.ErrRemoteNetwork, msg, nil)
	default:
		return errors.NewRemote(errors.ErrRemoteBadResponse, msg, nil)
	}
}
