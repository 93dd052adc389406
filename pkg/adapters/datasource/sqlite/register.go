package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/spendlens/graphcache/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Connect to a SQLite database file",
		},
		Factory: func(ctx context.Context, dsn string, logger *zap.Logger) (datasource.MetadataAdapter, error) {
			return NewAdapter(ctx, dsn, logger)
		},
	})
}
