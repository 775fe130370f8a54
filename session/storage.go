package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Cache is the slice of the cache tier the storage service needs. The
// session cache manager satisfies it.
type Cache interface {
	PutSession(ctx context.Context, rec *Record) error
	GetSession(ctx context.Context, id string) (*Record, error)
	GetSessionByToken(ctx context.Context, accessToken string) (*Record, error)
	DestroySession(ctx context.Context, id string) error
}

// StorageService keeps the durable session row and its cache projection
// consistent. The durable store is the source of truth: a failed durable
// write aborts everything, while a failed cache write after a durable
// commit is logged and swallowed. That asymmetry is intentional — reads
// degrade to the durable store, so a missing cache entry costs latency,
// never correctness.
type StorageService struct {
	store   Store
	cache   Cache
	nowFunc func() time.Time
}

// StorageServiceOption modifies a StorageService instance.
type StorageServiceOption func(*StorageService)

// WithStorageNowFunc sets the time source (primarily for testing).
func WithStorageNowFunc(now func() time.Time) StorageServiceOption {
	return func(s *StorageService) {
		s.nowFunc = now
	}
}

// NewStorageService creates the two-tier storage service.
func NewStorageService(store Store, cache Cache, options ...StorageServiceOption) (*StorageService, error) {
	if store == nil {
		return nil, errors.New("[NewStorageService] session store is required")
	}
	if cache == nil {
		return nil, errors.New("[NewStorageService] session cache is required")
	}

	service := &StorageService{store: store, cache: cache, nowFunc: time.Now}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// StoreSession persists the session row and populates the cache mirror as
// one logical transaction. Nothing is cached unless the durable write
// committed first.
func (s *StorageService) StoreSession(ctx context.Context, rec *Record) error {
	err := s.store.WithTx(ctx, func(tx Store) error {
		return tx.Insert(ctx, &rec.Session)
	})
	if err != nil {
		return errors.Wrap(err, "[StorageService.StoreSession] durable insert")
	}

	if err := s.cache.PutSession(ctx, rec); err != nil {
		log.Warn().Err(err).Str("session_id", rec.ID).
			Msg("cache population failed after durable commit")
	}
	return nil
}

// GetSession reads a session by id, preferring the cache and degrading to
// the durable store when the cache misses or errors.
func (s *StorageService) GetSession(ctx context.Context, id string) (*Record, error) {
	if rec, err := s.cache.GetSession(ctx, id); err == nil {
		return rec, nil
	}

	sess, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Record{Session: *sess}, nil
}

// CleanupExpiredSessions transitions rows whose refresh window has closed
// to StatusExpired and purges their cache entries. Intended for periodic
// background invocation, not the request path.
func (s *StorageService) CleanupExpiredSessions(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireBefore(ctx, s.nowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "[StorageService.CleanupExpiredSessions] ExpireBefore")
	}

	for _, sess := range expired {
		if err := s.cache.DestroySession(ctx, sess.ID); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("expired session cache purge failed")
		}
	}
	return len(expired), nil
}

// ConsistencyReport describes durable-vs-cache drift for one session.
type ConsistencyReport struct {
	SessionID      string
	InCache        bool
	TokensMatch    bool
	StatusDurable  Status
	RefreshDurable string
	RefreshCached  string
}

// ValidateStorageConsistency compares the durable row against its cache
// projection for drift detection. The identifier may be a session id or an
// access token.
func (s *StorageService) ValidateStorageConsistency(ctx context.Context, identifier string) (*ConsistencyReport, error) {
	durable, err := s.store.ByID(ctx, identifier)
	if errors.Is(errors.Cause(err), ErrSessionNotFound) {
		durable, err = s.store.ByAccessToken(ctx, identifier)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[StorageService.ValidateStorageConsistency] durable lookup")
	}

	report := &ConsistencyReport{
		SessionID:      durable.ID,
		StatusDurable:  durable.Status,
		RefreshDurable: durable.RefreshToken,
	}

	cached, err := s.cache.GetSession(ctx, durable.ID)
	if err != nil {
		return report, nil
	}
	report.InCache = true
	report.RefreshCached = cached.RefreshToken
	report.TokensMatch = cached.AccessToken == durable.AccessToken &&
		cached.RefreshToken == durable.RefreshToken
	return report, nil
}
