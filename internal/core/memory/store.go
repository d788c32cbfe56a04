// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrSessionNotFound  = errors.New("session not found")
)

// Store keeps one conversation window per session.
type Store interface {
	// Load returns a copy of the session's window. Unknown sessions yield an
	// empty window.
	Load(ctx context.Context, sessionID string) (*ConversationMemory, error)
	// Append adds messages to the session's window, evicting the oldest.
	Append(ctx context.Context, sessionID string, messages ...model.Message) error
	// Clear empties the session's window and stamps ClearedAt. The session
	// itself is kept.
	Clear(ctx context.Context, sessionID string) error
	// Get returns the session, or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	// Touch records activity, creating the session when it does not exist.
	// created reports whether this call created it.
	Touch(ctx context.Context, sessionID string) (session *model.Session, created bool, err error)
	// Sessions lists known sessions, most recently active first.
	Sessions(ctx context.Context) ([]*model.Session, error)
	// Evict removes sessions idle for longer than idleFor and returns their ids.
	Evict(ctx context.Context, idleFor time.Duration) ([]string, error)
}

type sessionEntry struct {
	session  model.Session
	messages *ConversationMemory
}

// InMemoryStore is a process local Store.
type InMemoryStore struct {
	mu       sync.RWMutex
	maxPairs int
	sessions map[string]*sessionEntry
	now      func() time.Time
}

// NewInMemoryStore creates an empty store whose windows hold maxPairs pairs.
func NewInMemoryStore(maxPairs int) *InMemoryStore {
	return &InMemoryStore{
		maxPairs: maxPairs,
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

// WithClock replaces the time source; it is used by tests.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (*ConversationMemory, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := NewConversationMemory(s.maxPairs)
	if e, ok := s.sessions[sessionID]; ok {
		out.Append(e.messages.messages...)
	}
	return out, nil
}

// entry returns the session's entry, creating it stamped with now.
func (s *InMemoryStore) entry(sessionID string, now time.Time) (*sessionEntry, bool) {
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &sessionEntry{
			session:  model.Session{ID: sessionID, CreatedAt: now, LastActivity: now},
			messages: NewConversationMemory(s.maxPairs),
		}
		s.sessions[sessionID] = e
	}
	return e, !ok
}

func (s *InMemoryStore) Append(_ context.Context, sessionID string, messages ...model.Message) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, _ := s.entry(sessionID, now)
	e.messages.Append(messages...)
	e.session.LastActivity = now
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		e.messages.Clear()
		e.session.ClearedAt = s.now()
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session := e.session
	return &session, nil
}

func (s *InMemoryStore) Touch(_ context.Context, sessionID string) (*model.Session, bool, error) {
	if sessionID == "" {
		return nil, false, ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, created := s.entry(sessionID, now)
	e.session.LastActivity = now
	session := e.session
	return &session, created, nil
}

func (s *InMemoryStore) Sessions(_ context.Context) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		session := e.session
		out = append(out, &session)
	}
	sortByActivity(out)
	return out, nil
}

func (s *InMemoryStore) Evict(_ context.Context, idleFor time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-idleFor)
	var evicted []string
	for id, e := range s.sessions {
		if e.session.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted, nil
}

func sortByActivity(sessions []*model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].LastActivity.Equal(sessions[j].LastActivity) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
}
