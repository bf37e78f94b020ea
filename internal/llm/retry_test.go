package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func TestWithRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	model := fastRetry(ModelFunc(func(context.Context, string) (string, error) {
		calls++
		if calls < 3 {
			return "", &ProviderError{Provider: "fake", StatusCode: http.StatusServiceUnavailable, Message: "busy"}
		}
		return "ok", nil
	}), 2)

	out, err := model.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Fatalf("out=%q calls=%d", out, calls)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	model := fastRetry(ModelFunc(func(context.Context, string) (string, error) {
		calls++
		return "", &ProviderError{Provider: "fake", StatusCode: http.StatusUnauthorized, Message: "bad key"}
	}), 5)

	_, err := model.Generate(context.Background(), "p")
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Generate() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetryGivesUpAfterConfiguredAttempts(t *testing.T) {
	calls := 0
	model := fastRetry(ModelFunc(func(context.Context, string) (string, error) {
		calls++
		return "", &ProviderError{Provider: "fake", Err: errors.New("timeout")}
	}), 2)

	if _, err := model.Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetryZeroReturnsModelUnchanged(t *testing.T) {
	base := ModelFunc(func(context.Context, string) (string, error) { return "x", nil })
	if _, ok := WithRetry(base, 0, nil).(ModelFunc); !ok {
		t.Fatal("WithRetry(0) should not wrap")
	}
}

func fastRetry(next Model, retries int) Model {
	model := WithRetry(next, retries, slog.New(slog.NewTextHandler(io.Discard, nil))).(*retryingModel)
	model.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return model
}
