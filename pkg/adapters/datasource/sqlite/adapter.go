// Package sqlite implements the metadata adapter for SQLite sources.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spendlens/graphcache/pkg/adapters/datasource"
	"github.com/spendlens/graphcache/pkg/apperrors"
	"github.com/spendlens/graphcache/pkg/models"
)

// Adapter implements datasource.MetadataAdapter for SQLite.
type Adapter struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens a SQLite source. The DSN is a file path or file: URI.
func NewAdapter(ctx context.Context, dsn string, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite source: %w: %w", apperrors.ErrSourceUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach sqlite source: %w: %w", apperrors.ErrSourceUnavailable, err)
	}

	return &Adapter{db: db, logger: logger}, nil
}

// NewAdapterWithDB wraps an already-open database. Used by tests.
func NewAdapterWithDB(db *sql.DB, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{db: db, logger: logger}
}

// ListTables enumerates user tables sorted by name. SQLite internals
// (sqlite_*) and the cache's reserved graph_* prefix are hidden.
func (a *Adapter) ListTables(ctx context.Context) ([]models.TableInfo, error) {
	query := `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w: %w", apperrors.ErrSourceQueryError, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		if datasource.IsReservedTable(name) {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w: %w", apperrors.ErrSourceQueryError, err)
	}

	tables := make([]models.TableInfo, 0, len(names))
	for _, name := range names {
		count, err := a.Count(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, models.TableInfo{Name: name, RowCountEstimate: count})
	}

	return tables, nil
}

// ListColumns returns columns in declared order with reliable PK flags.
func (a *Adapter) ListColumns(ctx context.Context, table string) ([]models.ColumnInfo, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(table))

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w: %w", table, apperrors.ErrSourceQueryError, err)
	}
	defer rows.Close()

	var columns []models.ColumnInfo
	for rows.Next() {
		var (
			cid      int
			name     string
			dataType string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column for %s: %w", table, err)
		}
		columns = append(columns, models.ColumnInfo{
			Name:         name,
			DataType:     dataType,
			Nullable:     notNull == 0,
			IsPrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns for %s: %w: %w", table, apperrors.ErrSourceQueryError, err)
	}

	return columns, nil
}

// SampleRecords returns records ordered by primary key ascending.
// Tables without a declared PK fall back to rowid order.
func (a *Adapter) SampleRecords(ctx context.Context, table string, limit, offset int) ([]models.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	orderBy, err := a.orderByClause(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s %s LIMIT ? OFFSET ?", quoteIdentifier(table), orderBy)

	rows, err := a.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sample records from %s: %w: %w", table, apperrors.ErrSourceQueryError, err)
	}
	defer rows.Close()

	return datasource.ScanRecords(rows)
}

// Count returns the number of rows in a table.
func (a *Adapter) Count(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdentifier(table))

	var count int64
	if err := a.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w: %w", table, apperrors.ErrSourceQueryError, err)
	}
	return count, nil
}

// Close releases the database connection.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) orderByClause(ctx context.Context, table string) (string, error) {
	columns, err := a.ListColumns(ctx, table)
	if err != nil {
		return "", err
	}

	var pkCols []string
	for _, col := range columns {
		if col.IsPrimaryKey {
			pkCols = append(pkCols, quoteIdentifier(col.Name))
		}
	}
	if len(pkCols) == 0 {
		return "ORDER BY rowid", nil
	}

	sort.Strings(pkCols)
	return "ORDER BY " + strings.Join(pkCols, ", "), nil
}

// quoteIdentifier quotes a SQLite identifier, doubling embedded quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Ensure Adapter implements MetadataAdapter at compile time.
var _ datasource.MetadataAdapter = (*Adapter)(nil)
