// Package sqlitestore provides a session.Storage backed by SQLite. It is
// the zero-infrastructure option: a single file (or :memory: for tests)
// with schema management handled by embedded migrations.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harborlane/shopkit/pkg/session"

	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dsn and applies pending
// migrations. Use ":memory:" for an ephemeral store.
func New(dsn string) (*Storage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	s := &Storage{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Store(ctx context.Context, sess *session.Session) error {
	const q = `
		INSERT INTO sessions (
			id, shop, state, is_online, scope, access_token, expires,
			user_id, first_name, last_name, email, email_verified,
			account_owner, locale, collaborator, user_scope,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			shop = excluded.shop,
			state = excluded.state,
			is_online = excluded.is_online,
			scope = excluded.scope,
			access_token = excluded.access_token,
			expires = excluded.expires,
			user_id = excluded.user_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			email_verified = excluded.email_verified,
			account_owner = excluded.account_owner,
			locale = excluded.locale,
			collaborator = excluded.collaborator,
			user_scope = excluded.user_scope,
			updated_at = excluded.updated_at`

	row := toRow(sess)
	_, err := s.db.ExecContext(ctx, q,
		row.id, row.shop, row.state, row.isOnline, row.scope,
		row.accessToken, row.expires,
		row.userID, row.firstName, row.lastName, row.email,
		row.emailVerified, row.accountOwner, row.locale, row.collaborator,
		row.userScope,
		row.createdAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: store %q: %w", sess.ID, err)
	}
	return nil
}

const selectColumns = `
	id, shop, state, is_online, scope, access_token, expires,
	user_id, first_name, last_name, email, email_verified,
	account_owner, locale, collaborator, user_scope,
	created_at, updated_at`

func (s *Storage) Load(ctx context.Context, id string) (*session.Session, error) {
	q := `SELECT` + selectColumns + ` FROM sessions WHERE id = ?`

	sess, err := scanSession(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load %q: %w", id, err)
	}
	return sess, nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlitestore: delete %q: %w", id, err)
	}
	return nil
}

func (s *Storage) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	q := `DELETE FROM sessions WHERE id IN (` + placeholders + `)`
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("sqlitestore: delete many: %w", err)
	}
	return nil
}

func (s *Storage) FindByShop(ctx context.Context, shop string) ([]*session.Session, error) {
	q := `SELECT` + selectColumns + ` FROM sessions WHERE shop = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, shop)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find by shop %q: %w", shop, err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: find by shop %q: %w", shop, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// row mirrors the sessions table with database/sql null handling.
type row struct {
	id, shop, state    string
	isOnline           bool
	scope, accessToken string
	expires            sql.NullTime
	userID             sql.NullInt64
	firstName          sql.NullString
	lastName           sql.NullString
	email              sql.NullString
	emailVerified      bool
	accountOwner       bool
	locale             sql.NullString
	collaborator       bool
	userScope          sql.NullString
	createdAt          time.Time
	updatedAt          time.Time
}

func toRow(sess *session.Session) row {
	r := row{
		id:          sess.ID,
		shop:        sess.Shop,
		state:       sess.State,
		isOnline:    sess.IsOnline,
		scope:       sess.Scope,
		accessToken: sess.AccessToken,
		expires:     optTime(sess.Expires),
		createdAt:   sess.CreatedAt,
	}
	if r.createdAt.IsZero() {
		r.createdAt = time.Now().UTC()
	}

	if u := sess.User; u != nil {
		r.userID = sql.NullInt64{Int64: u.ID, Valid: true}
		r.firstName = optString(u.FirstName)
		r.lastName = optString(u.LastName)
		r.email = optString(u.Email)
		r.emailVerified = u.EmailVerified
		r.accountOwner = u.AccountOwner
		r.locale = optString(u.Locale)
		r.collaborator = u.Collaborator
		r.userScope = optString(u.Scope)
	}
	return r
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*session.Session, error) {
	var r row
	err := sc.Scan(
		&r.id, &r.shop, &r.state, &r.isOnline, &r.scope, &r.accessToken,
		&r.expires,
		&r.userID, &r.firstName, &r.lastName, &r.email, &r.emailVerified,
		&r.accountOwner, &r.locale, &r.collaborator, &r.userScope,
		&r.createdAt, &r.updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		ID:          r.id,
		Shop:        r.shop,
		State:       r.state,
		IsOnline:    r.isOnline,
		Scope:       r.scope,
		AccessToken: r.accessToken,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
	if r.expires.Valid {
		e := r.expires.Time
		sess.Expires = &e
	}
	if r.userID.Valid {
		sess.User = &session.OnlineUser{
			ID:            r.userID.Int64,
			FirstName:     r.firstName.String,
			LastName:      r.lastName.String,
			Email:         r.email.String,
			EmailVerified: r.emailVerified,
			AccountOwner:  r.accountOwner,
			Locale:        r.locale.String,
			Collaborator:  r.collaborator,
			Scope:         r.userScope.String,
		}
	}
	return sess, nil
}

func optString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func optTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
