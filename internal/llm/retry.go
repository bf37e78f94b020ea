package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
)

type retryingModel struct {
	next       Model
	retries    int
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// WithRetry retries retryable provider errors up to retries extra times with
// exponential backoff. Non-retryable errors return immediately.
func WithRetry(next Model, retries int, logger *slog.Logger) Model {
	if retries <= 0 {
		return next
	}
	return &retryingModel{
		next:    next,
		retries: retries,
		logger:  logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = config.ModelRetryMaxWait
			return b
		},
	}
}

func (m *retryingModel) Generate(ctx context.Context, prompt string) (string, error) {
	operation := func() (string, error) {
		out, err := m.next.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	notify := func(err error, wait time.Duration) {
		observability.IncrementModelRetries()
		if m.logger != nil {
			m.logger.WarnContext(ctx, "model call failed, retrying",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("wait", wait.String()),
				slog.Any("error", err),
			)
		}
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithMaxTries(uint(m.retries+1)),
		backoff.WithNotify(notify),
	)
}
