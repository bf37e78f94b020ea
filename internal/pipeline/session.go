package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
)

// NotConnectedReply is recorded when a question arrives before any database
// has been connected.
const NotConnectedReply = "Database is not connected yet."

const outcomeNotConnected = "not_connected"

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrSessionClosed = errors.New("session is closed")
)

// Session is one chat: a transcript plus at most one live database handle.
// Questions are answered one at a time so the transcript stays strictly
// alternating.
type Session struct {
	Pipeline *Pipeline
	Logger   *slog.Logger

	mu         sync.Mutex
	transcript *conversation.Transcript
	db         database.Database
	descriptor database.Descriptor
	closed     bool
}

func NewSession(p *Pipeline, greeting string, logger *slog.Logger) *Session {
	return &Session{
		Pipeline:   p,
		Logger:     logger,
		transcript: conversation.New(greeting),
	}
}

// Connect opens a handle through connector and swaps it in. The previous
// handle is closed only after the new one is usable; on failure it stays.
func (s *Session) Connect(ctx context.Context, connector database.Connector, descriptor database.Descriptor) error {
	db, err := connector.Connect(ctx, descriptor)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = db.Close()
		return ErrSessionClosed
	}
	previous := s.db
	s.db = db
	s.descriptor = descriptor.Redacted()
	s.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			s.logger(ctx).Warn("close replaced database handle failed", "error", err)
		}
	}
	s.logger(ctx).Info("database connected", "driver", descriptor.Driver, "target", descriptor.Target())
	return nil
}

type Reply struct {
	Answer string
	SQL    string
	Err    error
}

// Ask records question and exactly one assistant reply. Pipeline failures
// become the reply text; they are reported in Reply.Err, not as the
// returned error, which is reserved for questions that were never recorded.
func (s *Session) Ask(ctx context.Context, question string) (Reply, error) {
	if strings.TrimSpace(question) == "" {
		return Reply{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Reply{}, ErrSessionClosed
	}

	history := s.transcript.Turns()
	s.transcript.AppendHuman(question)

	if s.db == nil {
		s.transcript.AppendAssistant(NotConnectedReply)
		observability.IncrementAnswers(outcomeNotConnected)
		return Reply{Answer: NotConnectedReply}, nil
	}

	started := time.Now()
	result, err := s.Pipeline.Answer(ctx, question, history, s.db)
	if err != nil {
		reply := Reply{Answer: failureReply(err), Err: err}
		s.transcript.AppendAssistant(reply.Answer)
		observability.IncrementAnswers(observability.OutcomeError)
		s.logger(ctx).Warn("question failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
		return reply, nil
	}

	s.transcript.AppendAssistant(result.Answer)
	observability.IncrementAnswers(observability.OutcomeOK)
	s.logger(ctx).Info("question answered", "sql", result.SQL, "duration_ms", time.Since(started).Milliseconds())
	return Reply{Answer: result.Answer, SQL: result.SQL}, nil
}

func failureReply(err error) string {
	var execErr *database.ExecutionError
	if errors.As(err, &execErr) {
		return fmt.Sprintf("I could not run that query: %v", execErr.Err)
	}
	return fmt.Sprintf("I could not answer that: %v", err)
}

func (s *Session) Transcript() []conversation.Turn {
	return s.transcript.Turns()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

// Descriptor returns the redacted descriptor of the live handle.
func (s *Session) Descriptor() (database.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor, s.db != nil
}

// Close releases the database handle. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.closed = true
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	if s.Logger == nil {
		return observability.WithTrace(ctx, slog.Default())
	}
	return observability.WithTrace(ctx, s.Logger)
}
