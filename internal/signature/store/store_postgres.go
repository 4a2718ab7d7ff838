package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"openletter/internal/signature/models"
	id "openletter/pkg/domain"
)

// PostgresStore persists signatures in the signatures table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert inserts a signature or, when the nation has already signed under any
// spelling of its name, replaces its checksum, timestamp and display name. The
// row id is kept.
func (s *PostgresStore) Upsert(ctx context.Context, nation, checksum string, signedAt time.Time) (*models.Signature, error) {
	query := `
		INSERT INTO signatures (nation, checksum, signed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (nation_key) DO UPDATE SET
			nation = EXCLUDED.nation,
			checksum = EXCLUDED.checksum,
			signed_at = EXCLUDED.signed_at
		RETURNING id, nation, checksum, signed_at
	`
	var sig models.Signature
	err := s.db.QueryRowContext(ctx, query, nation, checksum, signedAt).
		Scan(&sig.ID, &sig.Nation, &sig.Checksum, &sig.SignedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert signature: %w", err)
	}
	return &sig, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Signature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nation, checksum, signed_at FROM signatures ORDER BY signed_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var out []models.Signature
	for rows.Next() {
		var sig models.Signature
		if err := rows.Scan(&sig.ID, &sig.Nation, &sig.Checksum, &sig.SignedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}

// Delete removes the signature with sigID. A missing id is not an error; the
// returned bool reports whether a row was removed.
func (s *PostgresStore) Delete(ctx context.Context, sigID id.SignatureID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM signatures WHERE id = $1`, int64(sigID))
	if err != nil {
		return false, fmt.Errorf("delete signature: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete signature: %w", err)
	}
	return n > 0, nil
}
