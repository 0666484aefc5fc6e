package checkpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS checkpoint_entries (
				checkpoint VARCHAR(255) NOT NULL,
				coordinate VARCHAR(1024) NOT NULL,
				recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (checkpoint, coordinate)
			);
		`,
	}
}

type entry struct {
	Checkpoint string `db:"checkpoint"`
	Coordinate string `db:"coordinate"`
}

// SQL keeps checkpoints in a table shared by all pipelines, one row per materialised
// dataset. It runs on PostgreSQL and SQLite.
type SQL struct {
	db     *sqlx.DB
	name   string
	logger *slog.Logger
}

// NewSQL opens the database, runs migrations and stores the checkpoint for name.
func NewSQL(ctx context.Context, logger *slog.Logger, driver, dsn, name string) (*SQL, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, &Error{Op: "Open", Location: driver, Err: fmt.Errorf("failed to connect to database: %w", err)}
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, &Error{Op: "Open", Location: driver, Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	logger = logger.With("module", "sql_checkpoint", "driver", driver, "checkpoint", name)

	err = NewMigrationManager(logger, db, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = db.Close()

		return nil, &Error{Op: "Open", Location: driver, Err: fmt.Errorf("failed to run migrations: %w", err)}
	}

	return &SQL{db: db, name: name, logger: logger}, nil
}

func (s *SQL) Load(ctx context.Context) (Set, error) {
	var coordinates []string

	err := s.db.SelectContext(ctx, &coordinates,
		s.db.Rebind("SELECT coordinate FROM checkpoint_entries WHERE checkpoint = ? ORDER BY coordinate"), s.name)
	if err != nil {
		return nil, &Error{Op: "Load", Location: s.name, Err: err}
	}

	set, err := parseSet(coordinates)
	if err != nil {
		return nil, &Error{Op: "Load", Location: s.name, Err: err}
	}

	return set, nil
}

// Save replaces the rows of this checkpoint in a single transaction.
func (s *SQL) Save(ctx context.Context, set Set) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &Error{Op: "Save", Location: s.name, Err: err}
	}

	_, err = tx.ExecContext(ctx, s.db.Rebind("DELETE FROM checkpoint_entries WHERE checkpoint = ?"), s.name)
	if err != nil {
		_ = tx.Rollback()

		return &Error{Op: "Save", Location: s.name, Err: err}
	}

	if len(set) > 0 {
		rows := make([]entry, 0, len(set))
		for _, c := range set.Strings() {
			rows = append(rows, entry{Checkpoint: s.name, Coordinate: c})
		}

		_, err = tx.NamedExecContext(ctx,
			"INSERT INTO checkpoint_entries (checkpoint, coordinate) VALUES (:checkpoint, :coordinate)", rows)
		if err != nil {
			_ = tx.Rollback()

			return &Error{Op: "Save", Location: s.name, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "Save", Location: s.name, Err: err}
	}

	s.logger.DebugContext(ctx, "Checkpoint saved", "entries", len(set))

	return nil
}

func (s *SQL) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
