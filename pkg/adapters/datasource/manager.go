package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spendlens/graphcache/pkg/config"
	"github.com/spendlens/graphcache/pkg/logging"
	"github.com/spendlens/graphcache/pkg/retry"
)

// AdapterProvider hands out a metadata adapter for a named data source.
// Implemented by Manager; services depend on this seam so tests can
// substitute fakes.
type AdapterProvider interface {
	Adapter(ctx context.Context, dataSource string) (MetadataAdapter, error)
}

// Manager keeps one open adapter per data source name. Adapters pool
// connections through database/sql underneath, so concurrent callers
// never observe interleaved cursor state.
type Manager struct {
	factory  AdapterFactory
	entries  map[string]config.DatasourceConfig
	logger   *zap.Logger
	retryCfg *retry.Config

	mu       sync.Mutex
	adapters map[string]MetadataAdapter
}

// NewManager builds a manager over the configured datasource entries.
func NewManager(factory AdapterFactory, datasources []config.DatasourceConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries := make(map[string]config.DatasourceConfig, len(datasources))
	for _, ds := range datasources {
		entries[ds.Name] = ds
	}

	return &Manager{
		factory:  factory,
		entries:  entries,
		logger:   logger,
		retryCfg: retry.DefaultConfig(),
		adapters: make(map[string]MetadataAdapter),
	}
}

// Adapter returns the shared adapter for a data source, opening it on first use.
func (m *Manager) Adapter(ctx context.Context, dataSource string) (MetadataAdapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if adapter, ok := m.adapters[dataSource]; ok {
		return adapter, nil
	}

	entry, ok := m.entries[dataSource]
	if !ok {
		return nil, fmt.Errorf("unknown datasource: %s", dataSource)
	}

	// Sources behind flaky networks come and go; dial failures are retried
	// with backoff before giving up.
	adapter, err := retry.DoWithResult(ctx, m.retryCfg, func() (MetadataAdapter, error) {
		return m.factory.NewMetadataAdapter(ctx, entry.Type, entry.DSN)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open datasource %s: %w", dataSource, err)
	}

	m.logger.Info("Opened datasource adapter",
		zap.String("datasource", dataSource),
		zap.String("type", entry.Type),
		zap.String("dsn", logging.SanitizeDSN(entry.DSN)))

	m.adapters[dataSource] = adapter
	return adapter, nil
}

// Close releases every open adapter. The manager can be reused afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, adapter := range m.adapters {
		if err := adapter.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close adapter %s: %w", name, err)
		}
		delete(m.adapters, name)
	}
	return firstErr
}

// Ensure Manager implements AdapterProvider at compile time.
var _ AdapterProvider = (*Manager)(nil)
