// Package postgres provides the durable session store over a PostgreSQL
// database. It is the authority for session existence and status: revocation
// checks always land here, never in a cache.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-core/session"
)

const sessionColumns = `id, user_uuid, access_token, refresh_token, token_fingerprint,
	provider, status, created_at, access_expires_at, refresh_expires_at,
	ip_address, user_agent, remember_me, last_activity`

// querier is satisfied by both *sql.DB and *sql.Tx so the same statement
// code serves transactional and non-transactional paths.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements session.Store over PostgreSQL.
type Store struct {
	db *sql.DB
	q  querier
}

var _ session.Store = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Open] sql.Open")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "[postgres.Open] ping")
	}
	return NewStore(db), nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, sess *session.Session) error {
	_, err := s.q.ExecContext(ctx,
		`insert into sessions(`+sessionColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sess.ID, sess.UserUUID, sess.AccessToken, sess.RefreshToken, sess.TokenFingerprint,
		sess.Provider, sess.Status, sess.CreatedAt, sess.AccessExpiresAt, sess.RefreshExpiresAt,
		sess.IPAddress, sess.UserAgent, sess.RememberMe, sess.LastActivity,
	)
	return errors.Wrap(err, "[Store.Insert] insert session")
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status session.Status) error {
	res, err := s.q.ExecContext(ctx,
		`update sessions set status=$1 where id=$2`, status, id)
	if err != nil {
		return errors.Wrap(err, "[Store.UpdateStatus] update")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *Store) UpdateStatusByAccessToken(ctx context.Context, accessToken string, status session.Status) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`update sessions set status=$1 where access_token=$2`, status, accessToken)
	if err != nil {
		return 0, errors.Wrap(err, "[Store.UpdateStatusByAccessToken] update")
	}
	rows, err := res.RowsAffected()
	return rows, errors.Wrap(err, "[Store.UpdateStatusByAccessToken] RowsAffected")
}

// UpdateRefreshTokens rotates the token pair with a compare-and-swap on the
// old refresh token. The status=active predicate makes concurrent refresh
// exchanges race on the row itself: exactly one update reports a row.
func (s *Store) UpdateRefreshTokens(ctx context.Context, oldRefreshToken string, rotation session.Rotation) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`update sessions
		 set access_token=$1, refresh_token=$2, token_fingerprint=$3,
		     access_expires_at=$4, refresh_expires_at=$5, last_activity=$6
		 where refresh_token=$7 and status=$8`,
		rotation.AccessToken, rotation.RefreshToken, rotation.TokenFingerprint,
		rotation.AccessExpiresAt, rotation.RefreshExpiresAt, rotation.LastActivity,
		oldRefreshToken, session.StatusActive,
	)
	if err != nil {
		return 0, errors.Wrap(err, "[Store.UpdateRefreshTokens] update")
	}
	rows, err := res.RowsAffected()
	return rows, errors.Wrap(err, "[Store.UpdateRefreshTokens] RowsAffected")
}

func (s *Store) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`update sessions set last_activity=$1 where id=$2`, at, id)
	return errors.Wrap(err, "[Store.UpdateLastActivity] update")
}

func (s *Store) ByID(ctx context.Context, id string) (*session.Session, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, id))
}

func (s *Store) ByAccessToken(ctx context.Context, accessToken string) (*session.Session, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where access_token=$1`, accessToken))
}

func (s *Store) ByRefreshToken(ctx context.Context, refreshToken string) (*session.Session, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where refresh_token=$1 and status=$2`,
		refreshToken, session.StatusActive))
}

func (s *Store) ByUserUUID(ctx context.Context, userUUID string) ([]*session.Session, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+sessionColumns+` from sessions where user_uuid=$1 order by created_at asc`, userUUID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.ByUserUUID] query")
	}
	defer rows.Close()

	var res []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	return res, errors.Wrap(rows.Err(), "[Store.ByUserUUID] rows")
}

func (s *Store) ExpireBefore(ctx context.Context, cutoff time.Time) ([]*session.Session, error) {
	rows, err := s.q.QueryContext(ctx,
		`update sessions set status=$1
		 where status=$2 and refresh_expires_at < $3
		 returning `+sessionColumns,
		session.StatusExpired, session.StatusActive, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.ExpireBefore] update returning")
	}
	defer rows.Close()

	var res []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	return res, errors.Wrap(rows.Err(), "[Store.ExpireBefore] rows")
}

func (s *Store) Count(ctx context.Context, status session.Status) (int64, error) {
	var count int64
	err := s.q.QueryRowContext(ctx,
		`select count(*) from sessions where status=$1`, status).Scan(&count)
	return count, errors.Wrap(err, "[Store.Count] scan")
}

// WithTx runs fn against a transactional view of the store. An error from fn
// rolls the transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(session.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[Store.WithTx] BeginTx")
	}

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "[Store.WithTx] rollback also failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "[Store.WithTx] Commit")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row *sql.Row) (*session.Session, error) {
	sess, err := scanSession(row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, session.ErrSessionNotFound
	}
	return sess, err
}

func scanSession(row rowScanner) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(
		&sess.ID, &sess.UserUUID, &sess.AccessToken, &sess.RefreshToken, &sess.TokenFingerprint,
		&sess.Provider, &sess.Status, &sess.CreatedAt, &sess.AccessExpiresAt, &sess.RefreshExpiresAt,
		&sess.IPAddress, &sess.UserAgent, &sess.RememberMe, &sess.LastActivity,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan session row")
	}
	return &sess, nil
}
