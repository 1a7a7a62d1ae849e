package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
  id         BIGSERIAL PRIMARY KEY,
  username   TEXT NOT NULL,
  email      TEXT NOT NULL UNIQUE,
  password   TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the users table if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (User, error) {
	const q = `
SELECT id, username, email, password
FROM users
WHERE id = $1;
`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (User, error) {
	const q = `
SELECT id, username, email, password
FROM users
WHERE email = $1;
`
	return s.scanOne(s.db.QueryRowContext(ctx, q, email))
}

func (s *PostgresStore) Save(ctx context.Context, u User) (User, error) {
	if u.ID == 0 {
		return s.insert(ctx, u)
	}
	return s.update(ctx, u)
}

func (s *PostgresStore) insert(ctx context.Context, u User) (User, error) {
	const q = `
INSERT INTO users (username, email, password)
VALUES ($1, $2, $3)
RETURNING id;
`
	err := s.db.QueryRowContext(ctx, q, u.Username, u.Email, u.Password).Scan(&u.ID)
	if err != nil {
		return User{}, mapWriteErr(err)
	}
	return u, nil
}

func (s *PostgresStore) update(ctx context.Context, u User) (User, error) {
	const q = `
UPDATE users
SET username = $2, email = $3, password = $4, updated_at = now()
WHERE id = $1;
`
	res, err := s.db.ExecContext(ctx, q, u.ID, u.Username, u.Email, u.Password)
	if err != nil {
		return User{}, mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return User{}, err
	}
	if n == 0 {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM users WHERE id = $1;`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) scanOne(row *sql.Row) (User, error) {
	var out User
	if err := row.Scan(&out.ID, &out.Username, &out.Email, &out.Password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return out, nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
