/*
Package postgres provides a PostgreSQL-backed registry.Journal.

PURPOSE:
  Same contract as store/sqlite, for deployments where several processes
  or operators need to reach the journal. Uses a pgx connection pool.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements exist in this package
  - A trigger raises on UPDATE or DELETE issued by other tools
  - Unique (kind, product_id, subject_id) maps to ErrDuplicateRecord

MIGRATION:
  goose runs the embedded migrations over a database/sql handle borrowed
  from the pool (pgx stdlib adapter).

SEE ALSO:
  - registry/journal.go: Interface and replay
  - store/sqlite: SQLite implementation
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jimlawless/whereami"
	"github.com/pressly/goose/v3"
	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/registry"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrDuplicateRecord is returned when the same command is journaled twice.
var ErrDuplicateRecord = errors.New("duplicate journal record")

const uniqueViolation = "23505"

// Journal implements registry.Journal on PostgreSQL.
type Journal struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn, checks it and applies migrations.
func Connect(ctx context.Context, dsn string) (*Journal, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, wrap(err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap(err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, wrap(fmt.Errorf("failed to migrate database: %w", err))
	}
	return &Journal{pool: pool}, nil
}

func migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.Up(db, "migrations")
}

// Close releases the pool.
func (j *Journal) Close() error {
	j.pool.Close()
	return nil
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

// =============================================================================
// JOURNAL (registry.Journal interface)
// =============================================================================

func (j *Journal) Append(ctx context.Context, rec registry.Record) (registry.Record, error) {
	if !rec.Kind.Valid() {
		return registry.Record{}, wrap(fmt.Errorf("unknown record kind %q", rec.Kind))
	}

	query := `
		INSERT INTO journal
		(kind, product_id, subject_id, actor, name, category, start_at, stop_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`

	var seq int64
	err := j.pool.QueryRow(ctx, query,
		string(rec.Kind),
		int64(rec.ProductID),
		int64(rec.SubjectID),
		rec.Actor.String(),
		rec.Name,
		int16(rec.Category),
		int64(rec.Start),
		int64(rec.Stop),
		rec.RecordedAt.UTC(),
	).Scan(&seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return registry.Record{}, fmt.Errorf("%s %d/%d: %w", rec.Kind, rec.ProductID, rec.SubjectID, ErrDuplicateRecord)
		}
		return registry.Record{}, wrap(fmt.Errorf("failed to append record: %w", err))
	}

	rec.Seq = uint64(seq)
	return rec, nil
}

func (j *Journal) Load(ctx context.Context) ([]registry.Record, error) {
	query := `
		SELECT seq, kind, product_id, subject_id, actor, name, category, start_at, stop_at, recorded_at
		FROM journal
		ORDER BY seq ASC
	`
	rows, err := j.pool.Query(ctx, query)
	if err != nil {
		return nil, wrap(fmt.Errorf("failed to query journal: %w", err))
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, wrap(err)
	}
	return records, nil
}

// LoadProduct returns the records of one product in Seq order.
func (j *Journal) LoadProduct(ctx context.Context, productID uint64) ([]registry.Record, error) {
	query := `
		SELECT seq, kind, product_id, subject_id, actor, name, category, start_at, stop_at, recorded_at
		FROM journal
		WHERE product_id = $1
		ORDER BY seq ASC
	`
	rows, err := j.pool.Query(ctx, query, int64(productID))
	if err != nil {
		return nil, wrap(fmt.Errorf("failed to query journal: %w", err))
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, wrap(err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (registry.Record, error) {
	var (
		seq, productID, subjectID, startAt, stopAt int64
		category                                   int16
		kind, actor, name                          string
		recordedAt                                 time.Time
	)
	if err := row.Scan(&seq, &kind, &productID, &subjectID, &actor, &name, &category, &startAt, &stopAt, &recordedAt); err != nil {
		return registry.Record{}, err
	}
	return registry.Record{
		Seq:        uint64(seq),
		Kind:       registry.RecordKind(kind),
		ProductID:  uint64(productID),
		SubjectID:  uint64(subjectID),
		Actor:      booking.Address(actor),
		Name:       name,
		Category:   registry.Category(category),
		Start:      uint64(startAt),
		Stop:       uint64(stopAt),
		RecordedAt: recordedAt.UTC(),
	}, nil
}

func wrap(err error) error {
	return fmt.Errorf("%s: %w", whereami.WhereAmI(2), err)
}
