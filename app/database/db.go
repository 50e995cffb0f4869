package database

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle shared by the repositories.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database file at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory for %s", path)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// SQLite allows a single writer; one connection keeps :memory: databases shared too.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{DB: db}, nil
}

// Connect opens the database and applies migrations.
func Connect(path string) (*DB, uint, error) {
	db, err := Open(path)
	if err != nil {
		return nil, 0, err
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		_ = db.Close()
		return nil, 0, err
	}
	if dirty {
		_ = db.Close()
		return nil, 0, errors.Newf("database schema version %d is dirty", version)
	}

	return db, version, nil
}
