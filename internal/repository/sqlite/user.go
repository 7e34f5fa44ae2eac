package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, display_name, provider_username, oauth_provider, access_token,
	refresh_token, access_token_expire_at, guesses, hidden, version`

// Upsert inserts a new user or updates an existing one.
//
// OPTIMISTIC CONCURRENCY:
// Every row carries a version counter. A user read from the store remembers
// the version it saw (model.User.Version); the UPDATE only matches when the row
// still has that version. If another request wrote in between, zero rows match
// and we return apperror.ErrConflict instead of overwriting its guess.
//
// A user with Version 0 has never been stored. Its INSERT uses ON CONFLICT DO
// NOTHING, so two first logins racing for the same ID also surface as a
// conflict.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	guesses, err := json.Marshal(user.Guesses)
	if err != nil {
		return apperror.Store("encoding guesses", err)
	}
	if user.Guesses == nil {
		guesses = []byte("{}")
	}

	var expireAt sql.NullTime
	if user.AccessTokenExpireAt != nil {
		expireAt = sql.NullTime{Time: user.AccessTokenExpireAt.UTC(), Valid: true}
	}

	var res sql.Result
	if user.Version == 0 {
		res, err = db.conn.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			 ON CONFLICT(id) DO NOTHING`,
			user.ID,
			user.DisplayName,
			user.ProviderUsername,
			user.OAuthProvider,
			user.AccessToken,
			user.RefreshToken,
			expireAt,
			string(guesses),
			user.Hidden,
		)
	} else {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE users SET display_name = ?, provider_username = ?, oauth_provider = ?,
			     access_token = ?, refresh_token = ?, access_token_expire_at = ?,
			     guesses = ?, hidden = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			user.DisplayName,
			user.ProviderUsername,
			user.OAuthProvider,
			user.AccessToken,
			user.RefreshToken,
			expireAt,
			string(guesses),
			user.Hidden,
			user.ID,
			user.Version,
		)
	}
	if err != nil {
		return apperror.Store("writing users", fmt.Errorf("sqlite: upserting user %s: %w", user.ID, err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Store("writing users", fmt.Errorf("sqlite: checking rows affected: %w", err))
	}
	if n == 0 {
		return apperror.Conflict("user", user.ID)
	}

	user.Version++
	return nil
}

// GetByID retrieves a user by their provider ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, apperror.Store("reading users", fmt.Errorf("sqlite: getting user %s: %w", id, err))
	}
	return u, nil
}

// GetByAccessToken retrieves the user currently holding accessToken.
func (db *DB) GetByAccessToken(ctx context.Context, accessToken string) (*model.User, error) {
	if accessToken == "" {
		return nil, apperror.NotFound("session", "(empty)")
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE access_token = ?`, accessToken)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Never echo the token back in the message.
			return nil, apperror.NotFound("session", "(bearer)")
		}
		return nil, apperror.Store("reading users", fmt.Errorf("sqlite: getting user by token: %w", err))
	}
	return u, nil
}

// List returns every user ordered by ID.
//
// ALWAYS CLOSE ROWS:
// sql.Rows holds a connection from the pool until it is closed. With a pool
// of one, forgetting rows.Close() would deadlock the next query.
func (db *DB) List(ctx context.Context) ([]*model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, apperror.Store("reading users", fmt.Errorf("sqlite: listing users: %w", err))
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperror.Store("reading users", fmt.Errorf("sqlite: scanning user: %w", err))
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Store("reading users", fmt.Errorf("sqlite: iterating users: %w", err))
	}
	return users, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u        model.User
		expireAt sql.NullTime
		guesses  string
	)
	err := s.Scan(
		&u.ID,
		&u.DisplayName,
		&u.ProviderUsername,
		&u.OAuthProvider,
		&u.AccessToken,
		&u.RefreshToken,
		&expireAt,
		&guesses,
		&u.Hidden,
		&u.Version,
	)
	if err != nil {
		return nil, err
	}

	if expireAt.Valid {
		t := expireAt.Time
		u.AccessTokenExpireAt = &t
	}
	u.Guesses = make(map[model.Day]model.GuessEntry)
	if err := json.Unmarshal([]byte(guesses), &u.Guesses); err != nil {
		return nil, fmt.Errorf("decoding guesses of %s: %w", u.ID, err)
	}
	return &u, nil
}
