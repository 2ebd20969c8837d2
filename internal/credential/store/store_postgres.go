package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"certwallet/internal/credential/models"
	"certwallet/pkg/platform/sentinel"
	"certwallet/pkg/platform/tx"
)

const uniqueViolation = "23505"

const credentialColumns = `id, content_hash, issuer, issuer_id, unverified_issuer, document, raw_json,
	source, source_url, file_name, file_size, title, recipient_name, types, issued_on, expires_at,
	verification, added_at, updated_at`

// selectColumns reads types as its text literal, which pq.Array parses
// independently of the driver's wire format.
const selectColumns = `id, content_hash, issuer, issuer_id, unverified_issuer, document, raw_json,
	source, source_url, file_name, file_size, title, recipient_name, types::text, issued_on, expires_at,
	verification, added_at, updated_at`

// PostgresStore persists credentials in PostgreSQL. The primary key on id
// makes Save atomic with respect to concurrent imports of the same credential.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, c *models.Credential) error {
	issuer, err := json.Marshal(c.Issuer)
	if err != nil {
		return fmt.Errorf("marshal credential issuer: %w", err)
	}
	verification, err := json.Marshal(c.Verification)
	if err != nil {
		return fmt.Errorf("marshal credential verification: %w", err)
	}
	query := `INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err = tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		c.ID, c.ContentHash, issuer, nullString(c.IssuerID), c.UnverifiedIssuer, string(c.Document), c.RawJSON,
		string(c.Source), c.SourceURL, c.FileName, c.FileSize, c.Title, c.RecipientName, pq.Array(c.Types),
		nullTime(c.IssuedOn), nullTime(c.ExpiresAt), verification, c.AddedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Credential, error) {
	row := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE id = $1`, id)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by id: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindByContentHash(ctx context.Context, hash string) (*models.Credential, error) {
	row := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE content_hash = $1 LIMIT 1`, hash)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by content hash: %w", err)
	}
	return c, nil
}

// Update locks the row, merges the patch and writes the mutable columns back.
func (s *PostgresStore) Update(ctx context.Context, id string, patch models.Patch) (*models.Credential, error) {
	var updated *models.Credential
	err := tx.Run(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		row := q.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM credentials WHERE id = $1 FOR UPDATE`, id)
		c, err := scanCredential(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock credential: %w", err)
		}
		patch.Apply(c, now(ctx))
		verification, err := json.Marshal(c.Verification)
		if err != nil {
			return fmt.Errorf("marshal credential verification: %w", err)
		}
		_, err = q.ExecContext(ctx, `UPDATE credentials
			SET title = $2, issuer_id = $3, unverified_issuer = $4, verification = $5, updated_at = $6
			WHERE id = $1`,
			c.ID, c.Title, nullString(c.IssuerID), c.UnverifiedIssuer, verification, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update credential: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Credential, error) {
	var (
		where []string
		args  []any
	)
	if filter.IssuerID != "" {
		args = append(args, filter.IssuerID)
		where = append(where, fmt.Sprintf("issuer_id = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR issuer->>'name' ILIKE $%d OR recipient_name ILIKE $%d)", n, n, n))
	}
	query := `SELECT ` + selectColumns + ` FROM credentials`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY added_at DESC, id"

	rows, err := tx.QuerierFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByIssuer(ctx context.Context) (map[string]int, error) {
	rows, err := tx.QuerierFrom(ctx, s.db).QueryContext(ctx,
		`SELECT issuer_id, COUNT(*) FROM credentials WHERE issuer_id IS NOT NULL GROUP BY issuer_id`)
	if err != nil {
		return nil, fmt.Errorf("count credentials by issuer: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			issuerID string
			n        int
		)
		if err := rows.Scan(&issuerID, &n); err != nil {
			return nil, fmt.Errorf("scan issuer count: %w", err)
		}
		counts[issuerID] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		c            models.Credential
		issuer       []byte
		issuerID     sql.NullString
		document     []byte
		source       string
		types        []string
		issuedOn     sql.NullTime
		expiresAt    sql.NullTime
		verification []byte
	)
	err := row.Scan(
		&c.ID, &c.ContentHash, &issuer, &issuerID, &c.UnverifiedIssuer, &document, &c.RawJSON,
		&source, &c.SourceURL, &c.FileName, &c.FileSize, &c.Title, &c.RecipientName, pq.Array(&types),
		&issuedOn, &expiresAt, &verification, &c.AddedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(issuer, &c.Issuer); err != nil {
		return nil, fmt.Errorf("unmarshal credential issuer: %w", errors.Join(sentinel.ErrInvalidState, err))
	}
	if len(verification) > 0 {
		if err := json.Unmarshal(verification, &c.Verification); err != nil {
			return nil, fmt.Errorf("unmarshal credential verification: %w", errors.Join(sentinel.ErrInvalidState, err))
		}
	}
	if issuerID.Valid {
		id := issuerID.String
		c.IssuerID = &id
	}
	c.Document = json.RawMessage(document)
	c.Source = models.Source(source)
	c.Types = types
	c.IssuedOn = timePtr(issuedOn)
	c.ExpiresAt = timePtr(expiresAt)
	return &c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
