// Package session keeps live chat sessions in memory and expires idle ones.
package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
)

var ErrNotFound = errors.New("session not found")

// Entry is one stored chat session and the principal that created it.
type Entry struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	Session   *pipeline.Session
}

type Factory func() *pipeline.Session

type Store struct {
	cache   *cache.Cache
	factory Factory
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore expires sessions idle for ttl and sweeps every cleanupInterval.
// An evicted session has its database handle closed.
func NewStore(ttl, cleanupInterval time.Duration, factory Factory, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		cache:   cache.New(ttl, cleanupInterval),
		factory: factory,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.cache.OnEvicted(s.evicted)
	return s
}

func (s *Store) Create(owner string) *Entry {
	entry := &Entry{
		ID:        uuid.NewString(),
		Owner:     owner,
		CreatedAt: s.now(),
		Session:   s.factory(),
	}
	s.cache.Set(entry.ID, entry, cache.DefaultExpiration)
	observability.SetActiveSessions(s.cache.ItemCount())
	s.logger.Info("session created", "session_id", entry.ID, "owner", owner)
	return entry
}

// Get returns the session if owner created it and slides its expiry.
// Another owner's session is reported as not found.
func (s *Store) Get(id, owner string) (*Entry, error) {
	value, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	entry := value.(*Entry)
	if entry.Owner != owner {
		return nil, ErrNotFound
	}
	// Replace fails once the entry is gone, so a concurrent Delete cannot
	// be undone by the expiry refresh.
	if err := s.cache.Replace(id, entry, cache.DefaultExpiration); err != nil {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Delete removes the session and closes it. Closing waits for a question
// already running in that session; other sessions are not affected.
func (s *Store) Delete(id, owner string) error {
	value, ok := s.cache.Get(id)
	if !ok || value.(*Entry).Owner != owner {
		return ErrNotFound
	}
	s.cache.Delete(id)
	return nil
}

func (s *Store) Count() int {
	return s.cache.ItemCount()
}

// Flush closes every session, for shutdown.
func (s *Store) Flush() {
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}

func (s *Store) evicted(id string, value interface{}) {
	entry, ok := value.(*Entry)
	if !ok {
		return
	}
	if err := entry.Session.Close(); err != nil {
		s.logger.Warn("close evicted session failed", "session_id", id, "error", err)
	}
	observability.SetActiveSessions(s.cache.ItemCount())
	s.logger.Info("session closed", "session_id", id)
}
