// Package repomem provides the in-memory session store. It stands in for
// tab-scoped browser storage and doubles as the test store.
package repomem

import (
	"sync"
	"time"

	"github.com/pensionhub/go-portal-auth/session"
)

// Store is a mutex-guarded in-memory session.Repo.
type Store struct {
	mu            sync.RWMutex
	tokens        *session.TokenPair
	realm         string
	data          *session.Data
	lastKeepAlive time.Time
}

var _ session.Repo = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) Tokens() *session.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return nil
	}
	pair := *s.tokens
	return &pair
}

func (s *Store) SetTokens(pair *session.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pair == nil {
		s.tokens = nil
		return
	}
	copied := *pair
	s.tokens = &copied
}

func (s *Store) Realm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.realm
}

func (s *Store) SetRealm(realm string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realm = realm
}

func (s *Store) Data() *session.Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil
	}
	data := *s.data
	return &data
}

func (s *Store) SetData(data *session.Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data == nil {
		s.data = nil
		return
	}
	copied := *data
	s.data = &copied
}

func (s *Store) LastKeepAlive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKeepAlive
}

func (s *Store) SetLastKeepAlive(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKeepAlive = at
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	s.realm = ""
	s.data = nil
	s.lastKeepAlive = time.Time{}
}
