package storefakes

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-core/session"
)

var _ session.Store = (*FakeSessionStore)(nil)

// FakeSessionStore is an in-memory session.Store for tests. InsertErr and
// ByAccessTokenErr let tests force durable-tier failures.
type FakeSessionStore struct {
	lock     sync.RWMutex
	sessions map[string]*session.Session

	InsertErr        error
	ByAccessTokenErr error
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{sessions: make(map[string]*session.Session)}
}

func (s *FakeSessionStore) Insert(_ context.Context, sess *session.Session) error {
	if s.InsertErr != nil {
		return s.InsertErr
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if sess.ID == "" {
		return errors.New("missing session id")
	}
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *FakeSessionStore) UpdateStatus(_ context.Context, id string, status session.Status) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.Status = status
	return nil
}

func (s *FakeSessionStore) UpdateStatusByAccessToken(_ context.Context, accessToken string, status session.Status) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var affected int64
	for _, sess := range s.sessions {
		if sess.AccessToken == accessToken {
			sess.Status = status
			affected++
		}
	}
	return affected, nil
}

func (s *FakeSessionStore) UpdateRefreshTokens(_ context.Context, oldRefreshToken string, rotation session.Rotation) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, sess := range s.sessions {
		if sess.RefreshToken == oldRefreshToken && sess.Status == session.StatusActive {
			sess.AccessToken = rotation.AccessToken
			sess.RefreshToken = rotation.RefreshToken
			sess.TokenFingerprint = rotation.TokenFingerprint
			sess.AccessExpiresAt = rotation.AccessExpiresAt
			sess.RefreshExpiresAt = rotation.RefreshExpiresAt
			sess.LastActivity = rotation.LastActivity
			return 1, nil
		}
	}
	return 0, nil
}

func (s *FakeSessionStore) UpdateLastActivity(_ context.Context, id string, at time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.LastActivity = at
	return nil
}

func (s *FakeSessionStore) ByID(_ context.Context, id string) (*session.Session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *FakeSessionStore) ByAccessToken(_ context.Context, accessToken string) (*session.Session, error) {
	if s.ByAccessTokenErr != nil {
		return nil, s.ByAccessTokenErr
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, sess := range s.sessions {
		if sess.AccessToken == accessToken {
			clone := *sess
			return &clone, nil
		}
	}
	return nil, session.ErrSessionNotFound
}

func (s *FakeSessionStore) ByRefreshToken(_ context.Context, refreshToken string) (*session.Session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, sess := range s.sessions {
		if sess.RefreshToken == refreshToken && sess.Status == session.StatusActive {
			clone := *sess
			return &clone, nil
		}
	}
	return nil, session.ErrSessionNotFound
}

func (s *FakeSessionStore) ByUserUUID(_ context.Context, userUUID string) ([]*session.Session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var result []*session.Session
	for _, sess := range s.sessions {
		if sess.UserUUID == userUUID {
			clone := *sess
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *FakeSessionStore) ExpireBefore(_ context.Context, cutoff time.Time) ([]*session.Session, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var expired []*session.Session
	for _, sess := range s.sessions {
		if sess.Status == session.StatusActive && sess.RefreshExpiresAt.Before(cutoff) {
			sess.Status = session.StatusExpired
			clone := *sess
			expired = append(expired, &clone)
		}
	}
	return expired, nil
}

func (s *FakeSessionStore) Count(_ context.Context, status session.Status) (int64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var count int64
	for _, sess := range s.sessions {
		if sess.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *FakeSessionStore) WithTx(_ context.Context, fn func(session.Store) error) error {
	return fn(s)
}
