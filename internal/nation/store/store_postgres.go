package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"openletter/internal/nation/models"
	id "openletter/pkg/domain"
	"openletter/pkg/platform/strings"
)

// PostgresStore persists the nation cache in the nation_cache table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, name string) (*models.Entry, error) {
	var e models.Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT name, flag_url, region, updated_at FROM nation_cache WHERE name_key = $1`,
		id.NationKey(name),
	).Scan(&e.Name, &e.FlagURL, &e.Region, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get nation cache entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) GetMany(ctx context.Context, names []string) (map[string]models.Entry, error) {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = id.NationKey(name)
	}
	keys = strings.DedupeAndTrim(keys)
	out := make(map[string]models.Entry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, flag_url, region, updated_at FROM nation_cache WHERE name_key = ANY($1::text[])`,
		pq.Array(keys),
	)
	if err != nil {
		return nil, fmt.Errorf("get nation cache entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.Name, &e.FlagURL, &e.Region, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan nation cache entry: %w", err)
		}
		out[id.NationKey(e.Name)] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nation cache entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, entry models.Entry) error {
	query := `
		INSERT INTO nation_cache (name, flag_url, region, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name_key) DO UPDATE SET
			name = EXCLUDED.name,
			flag_url = EXCLUDED.flag_url,
			region = EXCLUDED.region,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, entry.Name, entry.FlagURL, entry.Region, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert nation cache entry: %w", err)
	}
	return nil
}

// UpsertBatch writes the whole batch in a single round trip by passing each
// column as an array parameter and unnesting them server-side.
func (s *PostgresStore) UpsertBatch(ctx context.Context, entries []models.Entry, updatedAt time.Time) error {
	entries = strings.DedupeLastBy(entries, func(e models.Entry) string { return id.NationKey(e.Name) })
	if len(entries) == 0 {
		return nil
	}

	names := make([]string, len(entries))
	flags := make([]string, len(entries))
	regions := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
		flags[i] = e.FlagURL
		regions[i] = e.Region
	}

	query := `
		INSERT INTO nation_cache (name, flag_url, region, updated_at)
		SELECT t.name, t.flag_url, t.region, $4
		FROM unnest($1::text[], $2::text[], $3::text[]) AS t(name, flag_url, region)
		ON CONFLICT (name_key) DO UPDATE SET
			name = EXCLUDED.name,
			flag_url = EXCLUDED.flag_url,
			region = EXCLUDED.region,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, pq.Array(names), pq.Array(flags), pq.Array(regions), updatedAt)
	if err != nil {
		return fmt.Errorf("upsert nation cache batch of %d: %w", len(entries), err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nation_cache WHERE name_key = $1`, id.NationKey(name)); err != nil {
		return fmt.Errorf("delete nation cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM nation_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nation cache entries: %w", err)
	}
	return n, nil
}
