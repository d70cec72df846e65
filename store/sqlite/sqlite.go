/*
Package sqlite provides a SQLite-backed registry.Journal.

PURPOSE:
  Persists the registry's write-ahead records so a restarted server can
  rebuild its catalog and calendars with registry.Restore.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements exist in this package
  - Triggers abort any UPDATE or DELETE issued by other tools
  - A unique index on (kind, product_id, subject_id) rejects a command
    journaled twice with ErrDuplicateRecord

KEY TABLES:
  journal: seq (autoincrement), kind, product_id, subject_id, actor,
           name, category, start_at, stop_at, recorded_at

UNSIGNED VALUES:
  SQLite integers are signed 64-bit. Ids and timestamps are stored as
  int64(v) and read back as uint64(v), which round-trips every uint64.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is versioned with goose. Migrations are embedded and applied on
  New().

USAGE:
  journal, err := sqlite.New("./data/rental.db")
  if err != nil {
      log.Fatal(err)
  }
  defer journal.Close()

  reg, err := registry.Restore(ctx, registry.Config{Journal: journal})

SEE ALSO:
  - registry/journal.go: Interface and replay
  - registry/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jimlawless/whereami"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/registry"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrDuplicateRecord is returned when the same command is journaled twice.
var ErrDuplicateRecord = errors.New("duplicate journal record")

// Journal implements registry.Journal using SQLite.
type Journal struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, wrap(fmt.Errorf("failed to open database: %w", err))
	}
	// A second connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, wrap(fmt.Errorf("failed to migrate database: %w", err))
	}

	return &Journal{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.Up(db, "migrations")
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Ping checks the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// =============================================================================
// JOURNAL (registry.Journal interface)
// =============================================================================

// Append inserts rec and returns it with its assigned Seq.
func (j *Journal) Append(ctx context.Context, rec registry.Record) (registry.Record, error) {
	if !rec.Kind.Valid() {
		return registry.Record{}, wrap(fmt.Errorf("unknown record kind %q", rec.Kind))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	query := `
		INSERT INTO journal
		(kind, product_id, subject_id, actor, name, category, start_at, stop_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := j.db.ExecContext(ctx, query,
		string(rec.Kind),
		int64(rec.ProductID),
		int64(rec.SubjectID),
		rec.Actor.String(),
		rec.Name,
		int64(rec.Category),
		int64(rec.Start),
		int64(rec.Stop),
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return registry.Record{}, fmt.Errorf("%s %d/%d: %w", rec.Kind, rec.ProductID, rec.SubjectID, ErrDuplicateRecord)
		}
		return registry.Record{}, wrap(fmt.Errorf("failed to append record: %w", err))
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return registry.Record{}, wrap(err)
	}
	rec.Seq = uint64(seq)
	return rec, nil
}

// Load returns every record in Seq order.
func (j *Journal) Load(ctx context.Context) ([]registry.Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	query := `
		SELECT seq, kind, product_id, subject_id, actor, name, category, start_at, stop_at, recorded_at
		FROM journal
		ORDER BY seq ASC
	`
	return j.queryRecords(ctx, query)
}

// LoadProduct returns the records of one product in Seq order.
func (j *Journal) LoadProduct(ctx context.Context, productID uint64) ([]registry.Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	query := `
		SELECT seq, kind, product_id, subject_id, actor, name, category, start_at, stop_at, recorded_at
		FROM journal
		WHERE product_id = ?
		ORDER BY seq ASC
	`
	return j.queryRecords(ctx, query, int64(productID))
}

func (j *Journal) queryRecords(ctx context.Context, query string, args ...any) ([]registry.Record, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(fmt.Errorf("failed to query journal: %w", err))
	}
	defer rows.Close()

	records := []registry.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (registry.Record, error) {
	var (
		rec                         registry.Record
		seq, productID, subjectID   int64
		category, startAt, stopAt   int64
		kind, actor, name, recorded string
	)

	err := rows.Scan(&seq, &kind, &productID, &subjectID, &actor, &name, &category, &startAt, &stopAt, &recorded)
	if err != nil {
		return rec, wrap(fmt.Errorf("failed to scan record: %w", err))
	}

	at, err := time.Parse(time.RFC3339Nano, recorded)
	if err != nil {
		return rec, wrap(fmt.Errorf("record %d: bad recorded_at %q: %w", seq, recorded, err))
	}

	rec = registry.Record{
		Seq:        uint64(seq),
		Kind:       registry.RecordKind(kind),
		ProductID:  uint64(productID),
		SubjectID:  uint64(subjectID),
		Actor:      booking.Address(actor),
		Name:       name,
		Category:   registry.Category(category),
		Start:      uint64(startAt),
		Stop:       uint64(stopAt),
		RecordedAt: at,
	}
	return rec, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func wrap(err error) error {
	return fmt.Errorf("%s: %w", whereami.WhereAmI(2), err)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
