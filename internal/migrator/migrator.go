package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"migwatch/internal/logging"
	"migwatch/internal/resync"
)

const (
	DefaultPattern = `^\d+[\w.-]*\.sql$`
	DefaultTable   = "migwatch_migrations"

	// appliedAtLayout has a fixed width so the column sorts as text.
	appliedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	ErrAlreadyExecuted   = errors.New("migration already executed")
	ErrNotExecuted       = errors.New("migration not executed")
	ErrUnknownMigration  = errors.New("unknown migration")
	ErrUnsupportedDriver = errors.New("unsupported driver")
	ErrInvalidTable      = errors.New("invalid history table name")
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config describes where migrations live and where their history is kept.
type Config struct {
	Driver    string
	DSN       string
	Path      string
	Recursive bool
	// Pattern is matched against base names; empty means DefaultPattern.
	Pattern string
	// Table defaults to DefaultTable.
	Table  string
	Logger *logging.Logger
}

// Migrator applies SQL migration files. It satisfies resync.Runner.
type Migrator struct {
	db       *sql.DB
	ownsDB   bool
	dialect  Dialect
	settings resync.Settings
	table    string
	cache    *scriptCache
	logger   *logging.Logger
}

// MigrationStatus is one row of Status.
type MigrationStatus struct {
	Name      string
	Path      string
	Applied   bool
	AppliedAt time.Time
	// Missing is set for history entries whose file is gone.
	Missing bool
}

// Open connects using config.Driver and config.DSN. Close releases the
// connection.
func Open(ctx context.Context, config Config) (*Migrator, error) {
	dialect, err := DialectFor(config.Driver)
	if err != nil {
		return nil, err
	}
	if config.DSN == "" {
		return nil, errors.New("dsn is required")
	}
	db, err := sql.Open(dialect.DriverName, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", dialect.Name, err)
	}
	migrator, err := New(db, dialect, config)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	migrator.ownsDB = true
	return migrator, nil
}

// New wraps an existing connection. The caller keeps ownership of db.
func New(db *sql.DB, dialect Dialect, config Config) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if config.Path == "" {
		return nil, resync.ErrNoMigrationsPath
	}
	source := config.Pattern
	if source == "" {
		source = DefaultPattern
	}
	pattern, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", source, err)
	}
	table := config.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Migrator{
		db:      db,
		dialect: dialect,
		settings: resync.Settings{
			Path:      filepath.Clean(config.Path),
			Recursive: config.Recursive,
			Pattern:   pattern,
		},
		table:  table,
		cache:  newScriptCache(),
		logger: logger.With(map[string]string{"component": "migrator"}),
	}, nil
}

func (m *Migrator) Close() error {
	if m == nil || !m.ownsDB {
		return nil
	}
	return m.db.Close()
}

func (m *Migrator) Settings() *resync.Settings {
	settings := m.settings
	return &settings
}

// Discover lists migration files in execution order.
func (m *Migrator) Discover(ctx context.Context) ([]resync.Migration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := discoverFiles(m.settings.Path, m.settings.Recursive, m.settings.Pattern)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", m.settings.Path, err)
	}
	migrations := make([]resync.Migration, 0, len(files))
	for _, found := range files {
		migrations = append(migrations, resync.Migration{Name: found.Name, Path: found.Path})
	}
	return migrations, nil
}

// Executed lists applied migrations in the order they were applied.
func (m *Migrator) Executed(ctx context.Context) ([]resync.Migration, error) {
	rows, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := m.pathsByName(ctx)
	if err != nil {
		return nil, err
	}
	executed := make([]resync.Migration, 0, len(rows))
	for _, row := range rows {
		executed = append(executed, resync.Migration{Name: row.name, Path: paths[row.name]})
	}
	return executed, nil
}

// Up applies the named migrations in the given order, each in its own
// transaction. It stops at the first failure.
func (m *Migrator) Up(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	applied, paths, err := m.state(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		path, ok := paths[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMigration, name)
		}
		if _, ok := applied[name]; ok {
			return fmt.Errorf("%w: %s", ErrAlreadyExecuted, name)
		}
		script, err := m.cache.load(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		insert := m.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES (?, ?)", m.table))
		appliedAt := time.Now().UTC().Format(appliedAtLayout)
		if err := m.inTransaction(ctx, name, script.Up, insert, name, appliedAt); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		applied[name] = struct{}{}
		m.logger.Info("migration applied", map[string]string{
			"migration":  name,
			"statements": strconv.Itoa(len(script.Up)),
		})
	}
	return nil
}

// Down rolls back the named migrations in the given order.
func (m *Migrator) Down(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	applied, paths, err := m.state(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := applied[name]; !ok {
			return fmt.Errorf("%w: %s", ErrNotExecuted, name)
		}
		path, ok := paths[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMigration, name)
		}
		script, err := m.cache.load(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		remove := m.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE name = ?", m.table))
		if err := m.inTransaction(ctx, name, script.Down, remove, name); err != nil {
			return fmt.Errorf("roll back %s: %w", name, err)
		}
		delete(applied, name)
		m.logger.Info("migration rolled back", map[string]string{
			"migration":  name,
			"statements": strconv.Itoa(len(script.Down)),
		})
	}
	return nil
}

// Invalidate drops cached scripts so the next Up or Down rereads them.
func (m *Migrator) Invalidate(paths ...string) {
	m.cache.invalidate(paths...)
}

// Pending lists discovered migrations that have not been applied.
func (m *Migrator) Pending(ctx context.Context) ([]resync.Migration, error) {
	applied, _, err := m.state(ctx)
	if err != nil {
		return nil, err
	}
	discovered, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}
	pending := []resync.Migration{}
	for _, migration := range discovered {
		if _, ok := applied[migration.Name]; !ok {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// UpAll applies every pending migration and returns their names.
func (m *Migrator) UpAll(ctx context.Context) ([]string, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(pending))
	for _, migration := range pending {
		names = append(names, migration.Name)
	}
	if err := m.Up(ctx, names); err != nil {
		return nil, err
	}
	return names, nil
}

// Status reports every discovered migration in order, followed by applied
// migrations whose files no longer exist.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	rows, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	appliedAt := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		appliedAt[row.name] = row.appliedAt
	}
	discovered, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(discovered))
	seen := make(map[string]struct{}, len(discovered))
	for _, migration := range discovered {
		seen[migration.Name] = struct{}{}
		at, applied := appliedAt[migration.Name]
		statuses = append(statuses, MigrationStatus{
			Name:      migration.Name,
			Path:      migration.Path,
			Applied:   applied,
			AppliedAt: at,
		})
	}
	for _, row := range rows {
		if _, ok := seen[row.name]; ok {
			continue
		}
		statuses = append(statuses, MigrationStatus{
			Name:      row.name,
			Applied:   true,
			AppliedAt: row.appliedAt,
			Missing:   true,
		})
	}
	return statuses, nil
}

type historyRow struct {
	name      string
	appliedAt time.Time
}

func (m *Migrator) ensureHistory(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, m.dialect.createHistory(m.table)); err != nil {
		return fmt.Errorf("ensure history table %s: %w", m.table, err)
	}
	return nil
}

func (m *Migrator) history(ctx context.Context) ([]historyRow, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT name, applied_at FROM %s ORDER BY applied_at, name", m.table)
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	history := []historyRow{}
	for rows.Next() {
		var name, appliedAt string
		if err := rows.Scan(&name, &appliedAt); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		parsed, _ := time.Parse(appliedAtLayout, appliedAt)
		history = append(history, historyRow{name: name, appliedAt: parsed})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return history, nil
}

func (m *Migrator) pathsByName(ctx context.Context) (map[string]string, error) {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(discovered))
	for _, migration := range discovered {
		paths[migration.Name] = migration.Path
	}
	return paths, nil
}

func (m *Migrator) state(ctx context.Context) (map[string]struct{}, map[string]string, error) {
	rows, err := m.history(ctx)
	if err != nil {
		return nil, nil, err
	}
	applied := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		applied[row.name] = struct{}{}
	}
	paths, err := m.pathsByName(ctx)
	if err != nil {
		return nil, nil, err
	}
	return applied, paths, nil
}

// inTransaction runs statements followed by the history write in a single
// transaction.
func (m *Migrator) inTransaction(ctx context.Context, name string, statements []string, record string, args ...any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for index, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return rollback(tx, fmt.Errorf("statement %d: %w", index+1, err))
		}
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return rollback(tx, fmt.Errorf("record history for %s: %w", name, err))
	}
	return tx.Commit()
}

func rollback(tx *sql.Tx, err error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("%w (rollback failed: %v)", err, rollbackErr)
	}
	return err
}
