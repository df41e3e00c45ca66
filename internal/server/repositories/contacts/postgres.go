package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/dbx"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

const contactColumns = `id, first_name, last_name, email, phone_number, birth_date, additional_data,
		 owner_id, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	query := `
		INSERT INTO contacts (first_name, last_name, email, phone_number, birth_date, additional_data, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.BirthDate, nullString(c.AdditionalData), c.OwnerID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id, ownerID int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND owner_id = $2`
	c, err := scanContact(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) List(ctx context.Context, ownerID int64, f ListFilter) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		 WHERE owner_id = $1
		   AND ($2 = '' OR first_name ILIKE '%' || $2 || '%' OR last_name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		 ORDER BY id
		 OFFSET $3 LIMIT $4`
	return r.query(ctx, query, ownerID, f.Search, f.Skip, f.Limit)
}

func (r *PostgresRepository) Update(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	query := `
		UPDATE contacts
		SET first_name = $3, last_name = $4, email = $5, phone_number = $6, birth_date = $7,
		    additional_data = $8, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.OwnerID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.BirthDate, nullString(c.AdditionalData),
	).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, classify(err)
	}
	return c, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) BirthdaysBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		 WHERE owner_id = $1
		   AND (($2 <= $3 AND to_char(birth_date, 'MMDD') BETWEEN $2 AND $3)
		     OR ($2 > $3 AND (to_char(birth_date, 'MMDD') >= $2 OR to_char(birth_date, 'MMDD') <= $3)))`
	return r.query(ctx, query, ownerID, from.Format("0102"), to.Format("0102"))
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select contacts: %w", err)
	}
	defer rows.Close()

	var result []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (*models.Contact, error) {
	var (
		c     models.Contact
		extra sql.NullString
	)
	if err := s.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber, &c.BirthDate, &extra,
		&c.OwnerID, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.AdditionalData = extra.String
	return &c, nil
}

func classify(err error) error {
	if dbx.IsUniqueViolation(err, "contacts_email_key") {
		return ErrEmailTaken
	}
	return fmt.Errorf("db error: %w", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
