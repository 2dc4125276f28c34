package canvas

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds the connection parameters read from the
// PG_HOST/PG_DBNAME/PG_USER/PG_PASSWORD/PG_PORT environment variables.
type PostgresConfig struct {
	Host     string
	DBName   string
	User     string
	Password string
	Port     int
}

// DSN builds a libpq-style connection string from the config.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.DBName, c.User, c.Password,
	)
}

// PostgresStore persists pixels in a single canvas(x, y, colour,
// updated) table keyed by (x, y).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool against cfg.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("canvas: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("canvas: ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetAll(ctx context.Context) ([]Pixel, error) {
	rows, err := s.pool.Query(ctx, `SELECT x, y, colour, updated FROM canvas`)
	if err != nil {
		return nil, fmt.Errorf("canvas: get_pixels: %w", err)
	}
	defer rows.Close()

	var pixels []Pixel
	for rows.Next() {
		var p Pixel
		if err := rows.Scan(&p.X, &p.Y, &p.Colour, &p.Updated); err != nil {
			return nil, fmt.Errorf("canvas: scan pixel: %w", err)
		}
		pixels = append(pixels, p)
	}
	return pixels, rows.Err()
}

// Upsert mirrors the original's ON CONFLICT (x, y) DO UPDATE, guarding
// the update with the LWW predicate so the write is atomic with
// respect to concurrent upserts of the same key.
func (s *PostgresStore) Upsert(ctx context.Context, p Pixel) error {
	const stmt = `
		INSERT INTO canvas (x, y, colour, updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (x, y) DO UPDATE
		SET colour = EXCLUDED.colour, updated = EXCLUDED.updated
		WHERE canvas.updated < EXCLUDED.updated`

	_, err := s.pool.Exec(ctx, stmt, p.X, p.Y, p.Colour, p.Updated)
	if err != nil {
		return fmt.Errorf("canvas: upsert pixel: %w", err)
	}
	return nil
}

// ReplaceAll truncates the table and bulk-inserts pixels inside one
// transaction, mirroring the original's update_all.
func (s *PostgresStore) ReplaceAll(ctx context.Context, pixels []Pixel) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("canvas: begin replace_all: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE canvas`); err != nil {
		return fmt.Errorf("canvas: truncate: %w", err)
	}

	batch := make([][]any, 0, len(pixels))
	for _, p := range pixels {
		batch = append(batch, []any{p.X, p.Y, p.Colour, p.Updated})
	}
	if len(batch) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgxCanvasIdentifier(),
			[]string{"x", "y", "colour", "updated"},
			&pgxCopySource{rows: batch},
		); err != nil {
			return fmt.Errorf("canvas: bulk insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("canvas: commit replace_all: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
