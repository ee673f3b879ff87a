package migrator

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect holds what differs between the supported databases.
type Dialect struct {
	Name string
	// DriverName is the database/sql driver registered for this dialect.
	DriverName   string
	historyTable string
	dollarParams bool
}

var dialects = map[string]Dialect{
	"sqlite": {
		Name:         "sqlite",
		DriverName:   "sqlite",
		historyTable: "CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, applied_at TEXT NOT NULL)",
	},
	"postgres": {
		Name:         "postgres",
		DriverName:   "pgx",
		historyTable: "CREATE TABLE IF NOT EXISTS %s (name VARCHAR(255) PRIMARY KEY, applied_at VARCHAR(64) NOT NULL)",
		dollarParams: true,
	},
	"mysql": {
		Name:         "mysql",
		DriverName:   "mysql",
		historyTable: "CREATE TABLE IF NOT EXISTS %s (name VARCHAR(255) PRIMARY KEY, applied_at VARCHAR(64) NOT NULL)",
	},
}

var dialectAliases = map[string]string{
	"sqlite3":    "sqlite",
	"postgresql": "postgres",
	"pgx":        "postgres",
	"pg":         "postgres",
	"mariadb":    "mysql",
}

// DialectFor resolves a driver name such as "sqlite", "postgres" or "mysql".
func DialectFor(driver string) (Dialect, error) {
	name := strings.ToLower(strings.TrimSpace(driver))
	if alias, ok := dialectAliases[name]; ok {
		name = alias
	}
	dialect, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: %q (use %s)", ErrUnsupportedDriver, driver, strings.Join(Drivers(), ", "))
	}
	return dialect, nil
}

// Drivers lists the supported driver names.
func Drivers() []string {
	return []string{"sqlite", "postgres", "mysql"}
}

// Rebind rewrites ? placeholders for dialects that number their parameters.
func (dialect Dialect) Rebind(query string) string {
	if !dialect.dollarParams {
		return query
	}
	var builder strings.Builder
	builder.Grow(len(query) + 8)
	position := 0
	for _, char := range query {
		if char == '?' {
			position++
			builder.WriteByte('$')
			builder.WriteString(strconv.Itoa(position))
			continue
		}
		builder.WriteRune(char)
	}
	return builder.String()
}

func (dialect Dialect) createHistory(table string) string {
	return fmt.Sprintf(dialect.historyTable, table)
}
