package datasource

import (
	"context"
	"strings"

	"github.com/spendlens/graphcache/pkg/models"
)

// ReservedTablePrefix marks the cache's own tables. Adapters must hide
// matching tables from enumeration so the cache never graphs itself.
const ReservedTablePrefix = "graph_"

// IsReservedTable reports whether a table name belongs to the cache schema.
func IsReservedTable(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), ReservedTablePrefix)
}

// MetadataAdapter presents a uniform view of a heterogeneous data source.
// Each implementation owns its connection and must be closed when done.
type MetadataAdapter interface {
	// ListTables enumerates user tables sorted by name, excluding system
	// tables and the cache's own reserved prefix.
	ListTables(ctx context.Context) ([]models.TableInfo, error)

	// ListColumns returns columns for a table in declared order.
	// The primary-key flag must be reliable.
	ListColumns(ctx context.Context, table string) ([]models.ColumnInfo, error)

	// SampleRecords returns up to limit records starting at offset,
	// deterministically ordered by primary key.
	SampleRecords(ctx context.Context, table string, limit, offset int) ([]models.Record, error)

	// Count returns the number of rows in a table.
	Count(ctx context.Context, table string) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
