package datasource

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// AdapterInfo describes a registered adapter type.
type AdapterInfo struct {
	Type        string `json:"type"`         // "sqlite", "hana"
	DisplayName string `json:"display_name"` // "SQLite", "SAP HANA"
	Description string `json:"description"`
}

// AdapterFactoryFunc creates a metadata adapter from an opaque DSN.
type AdapterFactoryFunc func(ctx context.Context, dsn string, logger *zap.Logger) (MetadataAdapter, error)

// AdapterRegistration contains info plus the factory for one adapter type.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory AdapterFactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter package's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapter types.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// GetFactory returns the factory for an adapter type, or nil if unregistered.
func GetFactory(dsType string) AdapterFactoryFunc {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}
