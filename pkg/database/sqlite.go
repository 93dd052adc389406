package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spendlens/graphcache/pkg/apperrors"
)

// Open opens the SQLite cache database with referential integrity enabled.
//
// SQLite ships with foreign_keys OFF, which would make every FK in the cache
// schema decorative. The pragma is passed in the DSN so it applies to every
// connection the pool opens, then verified once after open.
func Open(path string, logger *zap.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := buildDSN(path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY between the writer and readers,
	// and keeps an in-memory database from evaporating between pool checkouts.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach cache database: %w", err)
	}

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check foreign_keys pragma: %w", err)
	}
	if fkEnabled != 1 {
		db.Close()
		return nil, fmt.Errorf("%w: foreign key enforcement is disabled", apperrors.ErrStoreIntegrity)
	}

	logger.Info("Opened cache database",
		zap.String("path", path),
		zap.Bool("foreign_keys", true))

	return db, nil
}

func buildDSN(path string) string {
	if path == ":memory:" {
		path = "file::memory:"
	} else if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	v := url.Values{}
	v.Add("_pragma", "foreign_keys(1)")
	v.Add("_pragma", "busy_timeout(5000)")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + v.Encode()
}
