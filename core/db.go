package core

import (
	"database/sql"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLiteOptions are the connection options encoded into the DSN.
type SQLiteOptions struct {
	// Mode can be ro | rw | rwc | memory
	Mode string
	// Cache can be shared | private
	Cache string
	// JournalMode can be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF
	JournalMode string
}

func (o *SQLiteOptions) dsn(file string) string {
	var sb strings.Builder
	sb.WriteString("file:")
	sb.WriteString(file)
	if o == nil {
		return sb.String()
	}
	if o.Mode != "" {
		sb.WriteString("?mode=")
		sb.WriteString(o.Mode)
	}
	if o.Cache != "" {
		sb.WriteString("&cache=")
		sb.WriteString(o.Cache)
	}
	if o.JournalMode != "" {
		sb.WriteString("&journal_mode=")
		sb.WriteString(o.JournalMode)
	}
	return sb.String()
}

type SQLiteDB struct {
	*sql.DB
	migrationDir string
}

func NewSQLiteDB(file, migrationDir string, options *SQLiteOptions) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", options.dsn(file))
	if err != nil {
		return nil, err
	}
	return &SQLiteDB{DB: db, migrationDir: migrationDir}, nil
}

func (db *SQLiteDB) Migrate() error {
	goose.SetBaseFS(os.DirFS(db.migrationDir))
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db.DB, ".")
}
