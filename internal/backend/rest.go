package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// retryDelay is the pause before the single retry of an unavailable call.
var retryDelay = 250 * time.Millisecond

// restClient is the shared JSON-over-HTTP transport for all backends.
type restClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func newRESTClient(name, baseURL string, timeout time.Duration) restClient {
	return restClient{
		name:    name,
		logger:  zap.NewNop(),
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// postJSON sends in as JSON to path and decodes the response into out,
// retrying once if the backend is unavailable.
func (c restClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", c.name, err)
	}
	return c.withRetry(ctx, path, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build %s request: %w", c.name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, path, out)
	})
}

// getJSON issues a GET to path and decodes the response into out, retrying
// once if the backend is unavailable.
func (c restClient) getJSON(ctx context.Context, path string, out any) error {
	return c.withRetry(ctx, path, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build %s request: %w", c.name, err)
		}
		req.Header.Set("Accept", "application/json")
		return c.do(req, path, out)
	})
}

func (c restClient) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &UnavailableError{Backend: c.name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &UnavailableError{Backend: c.name, Op: op, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", c.name, op, ErrNotApplicable)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s: %w", c.name, op, resp.StatusCode, strings.TrimSpace(string(body)), ErrRejected)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

// withRetry runs fn, retrying it at most once when it fails with an
// UnavailableError. The retry is charged to the Budget carried by ctx.
func (c restClient) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(retryDelay))
	budget := budgetFrom(ctx)
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if err := budget.Take(); err != nil {
				return err
			}
		}
		err := fn(ctx)
		if IsUnavailable(err) {
			c.logger.Debug("backend unavailable",
				zap.String("backend", c.name),
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}
