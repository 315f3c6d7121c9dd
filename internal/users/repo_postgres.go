package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo persists users.
//
// NOTE: assumes the following table exists:
//
//	CREATE TABLE users (
//	  id       TEXT PRIMARY KEY,
//	  username TEXT NOT NULL UNIQUE,
//	  password TEXT NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	const q = `INSERT INTO users (id, username, password) VALUES ($1,$2,$3)`
	if _, err := r.db.ExecContext(ctx, q, u.ID, u.Username, u.Password); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrConflict
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (User, error) {
	const q = `SELECT id, username, password FROM users WHERE id = $1`
	return r.scan(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	const q = `SELECT id, username, password FROM users WHERE username = $1`
	return r.scan(r.db.QueryRowContext(ctx, q, username))
}

func (r *PostgresRepo) scan(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}
