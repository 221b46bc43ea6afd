package llm

import (
	"context"

	loomerrors "loom/internal/errors"
	"loom/internal/logging"
)

// retryClient wraps a Client with bounded exponential-backoff retries for
// transport-level failures. Model-call failures are the only task-level
// failure class inside the reasoning loop, so this decorator is where
// transient provider trouble gets absorbed before it costs a task attempt.
type retryClient struct {
	underlying Client
	config     loomerrors.RetryConfig
	logger     logging.Logger
}

// NewRetryClient decorates client with retry logic.
func NewRetryClient(client Client, config loomerrors.RetryConfig, logger logging.Logger) Client {
	return &retryClient{
		underlying: client,
		config:     config,
		logger:     logging.OrNop(logger),
	}
}

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return loomerrors.RetryWithResult(ctx, c.config, c.logger, func(ctx context.Context) (*CompletionResponse, error) {
		return c.underlying.Complete(ctx, req)
	})
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}
