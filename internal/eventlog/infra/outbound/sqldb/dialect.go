package sqldb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"
)

// Dialect encapsula lo poco que cambia entre SQLite y PostgreSQL.
type Dialect struct {
	Name       string
	DriverName string
	Schema     []string
	// numbered indica placeholders $1, $2... en lugar de ?.
	numbered bool
}

var SQLite = Dialect{
	Name:       "sqlite",
	DriverName: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS event_log (
			partition_id INTEGER NOT NULL,
			pos          INTEGER NOT NULL,
			data         BLOB    NOT NULL,
			appended_at  INTEGER NOT NULL,
			PRIMARY KEY (partition_id, pos)
		)`,
		`CREATE TABLE IF NOT EXISTS consumer_offsets (
			partition_id   INTEGER NOT NULL,
			consumer_group TEXT    NOT NULL,
			pos            INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (partition_id, consumer_group)
		)`,
		`CREATE TABLE IF NOT EXISTS log_watermarks (
			partition_id INTEGER PRIMARY KEY,
			low_pos      INTEGER NOT NULL
		)`,
	},
}

var Postgres = Dialect{
	Name:       "postgres",
	DriverName: "pgx",
	numbered:   true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS event_log (
			partition_id INTEGER NOT NULL,
			pos          BIGINT  NOT NULL,
			data         BYTEA   NOT NULL,
			appended_at  BIGINT  NOT NULL,
			PRIMARY KEY (partition_id, pos)
		)`,
		`CREATE TABLE IF NOT EXISTS consumer_offsets (
			partition_id   INTEGER NOT NULL,
			consumer_group TEXT    NOT NULL,
			pos            BIGINT  NOT NULL,
			updated_at     BIGINT  NOT NULL,
			PRIMARY KEY (partition_id, consumer_group)
		)`,
		`CREATE TABLE IF NOT EXISTS log_watermarks (
			partition_id INTEGER PRIMARY KEY,
			low_pos      BIGINT  NOT NULL
		)`,
	},
}

// rebind traduce ? a $n cuando el dialecto lo requiere.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// OpenSQLite abre la base con WAL y synchronous=FULL: un commit implica fsync.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)", path)
	return sql.Open(SQLite.DriverName, dsn)
}

// OpenPostgres abre un pool database/sql sobre pgx.
func OpenPostgres(dsn string) (*sql.DB, error) {
	return sql.Open(Postgres.DriverName, dsn)
}
