package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/codefionn/flagrunner/internal/logger"
)

// retryClient wraps another Client, bounding every attempt with a timeout and
// retrying transient failures with exponential backoff.
type retryClient struct {
	delegate   Client
	timeout    time.Duration
	maxRetries int
	initial    time.Duration
}

// RetryOption customizes NewRetryClient.
type RetryOption func(*retryClient)

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *retryClient) { c.initial = d }
}

// NewRetryClient returns a Client that applies a per-attempt timeout and up to
// maxRetries additional attempts.
func NewRetryClient(base Client, timeout time.Duration, maxRetries int, opts ...RetryOption) Client {
	if base == nil {
		return base
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	c := &retryClient{
		delegate:   base,
		timeout:    timeout,
		maxRetries: maxRetries,
		initial:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *retryClient) GetModelName() string {
	return c.delegate.GetModelName()
}

func (c *retryClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := c.do(ctx, func(attemptCtx context.Context) error {
		var err error
		out, err = c.delegate.Complete(attemptCtx, prompt)
		return err
	})
	return out, err
}

func (c *retryClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var out *CompletionResponse
	err := c.do(ctx, func(attemptCtx context.Context) error {
		var err error
		out, err = c.delegate.CompleteWithRequest(attemptCtx, req)
		return err
	})
	return out, err
}

func (c *retryClient) do(ctx context.Context, call func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := c.attemptContext(ctx)
		defer cancel()

		err := call(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("model call timed out after %s: %w", c.timeout, err)
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("model %s attempt %d failed, retrying in %s: %v", c.delegate.GetModelName(), attempt, wait, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)
	return backoff.RetryNotify(op, b, notify)
}

func (c *retryClient) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// isRetryable treats authentication and request-shape errors as permanent.
func isRetryable(err error) bool {
	status := 0
	var anthropicErr *anthropic.Error
	var openaiErr *openai.Error
	switch {
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	}
	return true
}
