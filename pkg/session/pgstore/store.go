// Package pgstore provides a session.Storage backed by PostgreSQL via a
// pgx connection pool. Intended for apps that already run Postgres and
// want sessions co-located with their own data.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborlane/shopkit/pkg/session"
)

type Storage struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Connect opens a pool for the DSN and ensures the sessions schema
// exists.
func Connect(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	s := &Storage{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool. Only call when the Storage owns it (Connect).
func (s *Storage) Close() { s.pool.Close() }

// EnsureSchema creates the sessions table when it does not exist yet.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS harbor_sessions (
			id             TEXT PRIMARY KEY,
			shop           TEXT NOT NULL,
			state          TEXT NOT NULL DEFAULT '',
			is_online      BOOLEAN NOT NULL DEFAULT FALSE,
			scope          TEXT NOT NULL DEFAULT '',
			access_token   TEXT NOT NULL DEFAULT '',
			expires        TIMESTAMPTZ,
			user_id        BIGINT,
			first_name     TEXT,
			last_name      TEXT,
			email          TEXT,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			account_owner  BOOLEAN NOT NULL DEFAULT FALSE,
			locale         TEXT,
			collaborator   BOOLEAN NOT NULL DEFAULT FALSE,
			user_scope     TEXT,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_harbor_sessions_shop ON harbor_sessions (shop);`

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

func (s *Storage) Store(ctx context.Context, sess *session.Session) error {
	const q = `
		INSERT INTO harbor_sessions (
			id, shop, state, is_online, scope, access_token, expires,
			user_id, first_name, last_name, email, email_verified,
			account_owner, locale, collaborator, user_scope,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			shop = EXCLUDED.shop,
			state = EXCLUDED.state,
			is_online = EXCLUDED.is_online,
			scope = EXCLUDED.scope,
			access_token = EXCLUDED.access_token,
			expires = EXCLUDED.expires,
			user_id = EXCLUDED.user_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			email_verified = EXCLUDED.email_verified,
			account_owner = EXCLUDED.account_owner,
			locale = EXCLUDED.locale,
			collaborator = EXCLUDED.collaborator,
			user_scope = EXCLUDED.user_scope,
			updated_at = EXCLUDED.updated_at`

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var (
		userID        *int64
		firstName     *string
		lastName      *string
		email         *string
		emailVerified bool
		accountOwner  bool
		locale        *string
		collaborator  bool
		userScope     *string
	)
	if u := sess.User; u != nil {
		userID = &u.ID
		firstName = optStr(u.FirstName)
		lastName = optStr(u.LastName)
		email = optStr(u.Email)
		emailVerified = u.EmailVerified
		accountOwner = u.AccountOwner
		locale = optStr(u.Locale)
		collaborator = u.Collaborator
		userScope = optStr(u.Scope)
	}

	_, err := s.pool.Exec(ctx, q,
		sess.ID, sess.Shop, sess.State, sess.IsOnline, sess.Scope,
		sess.AccessToken, sess.Expires,
		userID, firstName, lastName, email, emailVerified,
		accountOwner, locale, collaborator, userScope,
		createdAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("pgstore: store %q: %w", sess.ID, err)
	}
	return nil
}

const selectColumns = `
	id, shop, state, is_online, scope, access_token, expires,
	user_id, first_name, last_name, email, email_verified,
	account_owner, locale, collaborator, user_scope,
	created_at, updated_at`

func (s *Storage) Load(ctx context.Context, id string) (*session.Session, error) {
	q := `SELECT` + selectColumns + ` FROM harbor_sessions WHERE id = $1`

	sess, err := scanSession(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: load %q: %w", id, err)
	}
	return sess, nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM harbor_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("pgstore: delete %q: %w", id, err)
	}
	return nil
}

func (s *Storage) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM harbor_sessions WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("pgstore: delete many: %w", err)
	}
	return nil
}

func (s *Storage) FindByShop(ctx context.Context, shop string) ([]*session.Session, error) {
	q := `SELECT` + selectColumns + ` FROM harbor_sessions WHERE shop = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, q, shop)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find by shop %q: %w", shop, err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: find by shop %q: %w", shop, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(sc rowScanner) (*session.Session, error) {
	var (
		sess          session.Session
		expires       *time.Time
		userID        *int64
		firstName     *string
		lastName      *string
		email         *string
		emailVerified bool
		accountOwner  bool
		locale        *string
		collaborator  bool
		userScope     *string
	)

	err := sc.Scan(
		&sess.ID, &sess.Shop, &sess.State, &sess.IsOnline, &sess.Scope,
		&sess.AccessToken, &expires,
		&userID, &firstName, &lastName, &email, &emailVerified,
		&accountOwner, &locale, &collaborator, &userScope,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Expires = expires
	if userID != nil {
		sess.User = &session.OnlineUser{
			ID:            *userID,
			FirstName:     deref(firstName),
			LastName:      deref(lastName),
			Email:         deref(email),
			EmailVerified: emailVerified,
			AccountOwner:  accountOwner,
			Locale:        deref(locale),
			Collaborator:  collaborator,
			Scope:         deref(userScope),
		}
	}
	return &sess, nil
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
