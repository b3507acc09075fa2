package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genericweather/gateway/internal/weather"
)

// Schema creates the outcome table.
const Schema = `
	CREATE TABLE IF NOT EXISTS weather_outcomes (
		id          TEXT PRIMARY KEY,
		provider    INTEGER NOT NULL,
		outcome     TEXT NOT NULL,
		lat_scaled  BIGINT NOT NULL,
		lon_scaled  BIGINT NOT NULL,
		duration_ms BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS weather_outcomes_created_at_idx ON weather_outcomes (created_at DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL outcome repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the outcome table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create outcome schema: %w", err)
	}
	return nil
}

// Record stores an outcome.
func (r *PostgresRepository) Record(ctx context.Context, outcome *weather.Outcome) error {
	if outcome.ID == "" {
		outcome.ID = newID()
	}

	query := `
		INSERT INTO weather_outcomes (
			id, provider, outcome, lat_scaled, lon_scaled, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		outcome.ID,
		int(outcome.Provider),
		string(outcome.Kind),
		outcome.Latitude,
		outcome.Longitude,
		outcome.Duration.Milliseconds(),
		outcome.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*weather.Outcome, error) {
	query := `
		SELECT id, provider, outcome, lat_scaled, lon_scaled, duration_ms, created_at
		FROM weather_outcomes
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*weather.Outcome
	for rows.Next() {
		var (
			o          weather.Outcome
			provider   int
			kind       string
			durationMs int64
		)
		if err := rows.Scan(&o.ID, &provider, &kind, &o.Latitude, &o.Longitude, &durationMs, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Provider = weather.ProviderID(provider)
		o.Kind = weather.OutcomeKind(kind)
		o.Duration = time.Duration(durationMs) * time.Millisecond
		outcomes = append(outcomes, &o)
	}

	return outcomes, rows.Err()
}
