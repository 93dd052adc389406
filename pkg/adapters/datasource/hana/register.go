package hana

import (
	"context"

	"go.uber.org/zap"

	"github.com/spendlens/graphcache/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "hana",
			DisplayName: "SAP HANA",
			Description: "Connect to SAP HANA 2.0+ or HANA Cloud",
		},
		Factory: func(ctx context.Context, dsn string, logger *zap.Logger) (datasource.MetadataAdapter, error) {
			return NewAdapter(ctx, dsn, logger)
		},
	})
}
