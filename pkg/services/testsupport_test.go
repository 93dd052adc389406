package services

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/spendlens/graphcache/pkg/adapters/datasource"
	"github.com/spendlens/graphcache/pkg/apperrors"
	"github.com/spendlens/graphcache/pkg/models"
)

// fakeAdapter is an in-memory MetadataAdapter for builder and orchestrator
// tests. Records are served in slice order, so tests list them PK-ascending.
type fakeAdapter struct {
	tables  []models.TableInfo
	columns map[string][]models.ColumnInfo
	records map[string][]models.Record

	listTablesErr error
	sampleErr     error

	// calls counts every adapter invocation; cache-hit tests assert it
	// stayed flat. Atomic because singleflight tests hammer it in parallel.
	calls atomic.Int64
}

func (f *fakeAdapter) ListTables(ctx context.Context) ([]models.TableInfo, error) {
	f.calls.Add(1)
	if f.listTablesErr != nil {
		return nil, f.listTablesErr
	}
	out := make([]models.TableInfo, len(f.tables))
	copy(out, f.tables)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeAdapter) ListColumns(ctx context.Context, table string) ([]models.ColumnInfo, error) {
	f.calls.Add(1)
	cols, ok := f.columns[table]
	if !ok {
		return nil, apperrors.ErrSourceQueryError
	}
	return cols, nil
}

func (f *fakeAdapter) SampleRecords(ctx context.Context, table string, limit, offset int) ([]models.Record, error) {
	f.calls.Add(1)
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	records := f.records[table]
	if offset >= len(records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end], nil
}

func (f *fakeAdapter) Count(ctx context.Context, table string) (int64, error) {
	f.calls.Add(1)
	return int64(len(f.records[table])), nil
}

func (f *fakeAdapter) Close() error { return nil }

var _ datasource.MetadataAdapter = (*fakeAdapter)(nil)

// fakeProvider hands out one fake adapter for every data source name.
type fakeProvider struct {
	adapter *fakeAdapter
	err     error
}

func (p *fakeProvider) Adapter(ctx context.Context, dataSource string) (datasource.MetadataAdapter, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.adapter, nil
}

var _ datasource.AdapterProvider = (*fakeProvider)(nil)

var errSourceDown = errors.New("source is down")

// procurementFixture is the two-table source used by the end-to-end scenarios:
// Supplier(Supplier PK, Name) and PurchaseOrder(PurchaseOrder PK, Supplier, Date).
func procurementFixture() *fakeAdapter {
	return &fakeAdapter{
		tables: []models.TableInfo{
			{Name: "PurchaseOrder", RowCountEstimate: 1},
			{Name: "Supplier", RowCountEstimate: 2},
		},
		columns: map[string][]models.ColumnInfo{
			"Supplier": {
				{Name: "Supplier", DataType: "TEXT", IsPrimaryKey: true},
				{Name: "Name", DataType: "TEXT", Nullable: true},
			},
			"PurchaseOrder": {
				{Name: "PurchaseOrder", DataType: "TEXT", IsPrimaryKey: true},
				{Name: "Supplier", DataType: "TEXT", Nullable: true},
				{Name: "Date", DataType: "TEXT", Nullable: true},
			},
		},
		records: map[string][]models.Record{
			"Supplier": {
				{"Supplier": "S1", "Name": "Acme Industrial"},
				{"Supplier": "S2", "Name": "Globex Sourcing"},
			},
			"PurchaseOrder": {
				{"PurchaseOrder": "P1", "Supplier": "S1", "Date": "2025-11-03"},
			},
		},
	}
}
