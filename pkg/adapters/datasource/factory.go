package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// AdapterFactory creates metadata adapters from the registry.
type AdapterFactory interface {
	// NewMetadataAdapter creates an adapter for the given type and DSN.
	NewMetadataAdapter(ctx context.Context, dsType, dsn string) (MetadataAdapter, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewAdapterFactory returns a factory backed by the global registry.
func NewAdapterFactory(logger *zap.Logger) AdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

func (f *registryFactory) NewMetadataAdapter(ctx context.Context, dsType, dsn string) (MetadataAdapter, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s", dsType)
	}
	return factory(ctx, dsn, f.logger)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
