package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID serializes concurrent migrators across processes.
const migrationLockID = 0x52534b4d // "RSKM"

// ErrMigrationModified is returned when an applied migration file no longer
// matches the checksum recorded when it ran.
var ErrMigrationModified = errors.New("applied migration was modified")

// Migration is one numbered SQL file, e.g. "001_patient_health_summary.sql".
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
	// Modified is set when the file changed after it was applied.
	Modified bool
}

// Migrator applies numbered SQL files to one schema and records each
// applied version, with its checksum, in that schema's _migrations table.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

// NewMigrator reads migrations from a directory on disk.
func NewMigrator(pool *pgxpool.Pool, migrationsDir string) *Migrator {
	return NewMigratorFS(pool, os.DirFS(migrationsDir))
}

// NewMigratorFS reads migrations from the root of fsys.
func NewMigratorFS(pool *pgxpool.Pool, fsys fs.FS) *Migrator {
	return &Migrator{pool: pool, fsys: fsys}
}

// LoadMigrations returns the .sql files with a numeric prefix, ordered by
// version. Two files with the same version are an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, other, name)
		}
		seen[version] = name

		content, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

func ensureMigrationsTable(ctx context.Context, q pgx.Tx, schema string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s._migrations (
    version    INTEGER PRIMARY KEY,
    name       VARCHAR(255) NOT NULL,
    checksum   CHAR(64) NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, schema))
	if err != nil {
		return fmt.Errorf("create _migrations table in %s: %w", schema, err)
	}
	return nil
}

func loadApplied(ctx context.Context, q pgx.Tx, schema string) (map[int]appliedMigration, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT version, checksum, applied_at FROM %s._migrations`, schema))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations in %s: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var (
			v int
			a appliedMigration
		)
		if err := rows.Scan(&v, &a.checksum, &a.appliedAt); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[v] = a
	}
	return applied, rows.Err()
}

// Up applies every pending migration to schema in version order and returns
// how many ran. The whole run holds an advisory lock and a single
// transaction, so a failure leaves the schema unchanged.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	if !schemaPattern.MatchString(schema) {
		return 0, fmt.Errorf("invalid schema name: %q", schema)
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	count := 0
	err = RunInTx(ctx, m.pool, func(ctx context.Context) error {
		tx := TxFromContext(ctx)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if err := ensureMigrationsTable(ctx, tx, schema); err != nil {
			return err
		}
		applied, err := loadApplied(ctx, tx, schema)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}

		for _, mig := range migrations {
			if prev, ok := applied[mig.Version]; ok {
				if prev.checksum != "" && prev.checksum != mig.Checksum {
					return fmt.Errorf("%w: %s", ErrMigrationModified, mig.Name)
				}
				continue
			}
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO _migrations (version, name, checksum) VALUES ($1, $2, $3)`,
				mig.Version, mig.Name, mig.Checksum,
			); err != nil {
				return fmt.Errorf("record migration %s: %w", mig.Name, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Status lists every migration file with its applied state in schema.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	if !schemaPattern.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name: %q", schema)
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	var applied map[int]appliedMigration
	err = RunInTx(ctx, m.pool, func(ctx context.Context) error {
		tx := TxFromContext(ctx)
		if err := ensureMigrationsTable(ctx, tx, schema); err != nil {
			return err
		}
		applied, err = loadApplied(ctx, tx, schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buildStatus(migrations, applied), nil
}

func buildStatus(migrations []Migration, applied map[int]appliedMigration) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if a, ok := applied[mig.Version]; ok {
			at := a.appliedAt
			st.Applied = true
			st.AppliedAt = &at
			st.Modified = a.checksum != "" && a.checksum != mig.Checksum
		}
		statuses = append(statuses, st)
	}
	return statuses
}
