package contacts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// PostgresRepo persists contacts.
//
// NOTE: assumes the following table exists:
//
//	CREATE TABLE contacts (
//	  id           TEXT PRIMARY KEY,
//	  user_id      TEXT NOT NULL,
//	  name         TEXT NOT NULL,
//	  phone_number TEXT NOT NULL,
//	  company      TEXT,
//	  email        TEXT
//	);
//	CREATE INDEX contacts_user_idx ON contacts (user_id);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, c Contact) (Contact, error) {
	if c.OwnerUserID == "" || c.Name == "" || c.PhoneNumber == "" {
		return Contact{}, ErrInvalidArgument
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const q = `
INSERT INTO contacts (id, user_id, name, phone_number, company, email)
VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''))
`
	if _, err := r.db.ExecContext(ctx, q, c.ID, c.OwnerUserID, c.Name, c.PhoneNumber, c.Company, c.Email); err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, userID string) ([]Contact, error) {
	const q = `
SELECT id, user_id, name, phone_number, company, email
FROM contacts
WHERE user_id = $1
ORDER BY name
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Contact, 0)
	for rows.Next() {
		var (
			c       Contact
			company sql.NullString
			email   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.OwnerUserID, &c.Name, &c.PhoneNumber, &company, &email); err != nil {
			return nil, err
		}
		c.Company = company.String
		c.Email = email.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
