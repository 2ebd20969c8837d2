package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"certwallet/internal/issuer/models"
	"certwallet/pkg/platform/sentinel"
	"certwallet/pkg/platform/tx"
)

const profileColumns = `id, name, public_key_id, introduction_url, url, email, description, image, verified, created_at`

// PostgresStore persists trusted issuers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed trust store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save upserts by id.
func (s *PostgresStore) Save(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO issuers (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			public_key_id = EXCLUDED.public_key_id,
			introduction_url = EXCLUDED.introduction_url,
			url = EXCLUDED.url,
			email = EXCLUDED.email,
			description = EXCLUDED.description,
			image = EXCLUDED.image,
			verified = EXCLUDED.verified
	`
	_, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		p.ID, p.Name, p.PublicKeyID, p.IntroductionURL, p.URL, p.Email, p.Description, p.Image, p.Verified, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save issuer: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	row := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM issuers WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find issuer by id: %w", err)
	}
	return p, nil
}

// FindByPublicKeyID returns the earliest registered issuer with the key.
func (s *PostgresStore) FindByPublicKeyID(ctx context.Context, publicKeyID string) (*models.Profile, error) {
	row := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM issuers WHERE public_key_id = $1 ORDER BY created_at, id LIMIT 1`, publicKeyID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find issuer by public key: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM issuers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete issuer: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete issuer: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Profile, error) {
	rows, err := tx.QuerierFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+profileColumns+` FROM issuers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list issuers: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issuer: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Name, &p.PublicKeyID, &p.IntroductionURL, &p.URL, &p.Email,
		&p.Description, &p.Image, &p.Verified, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
