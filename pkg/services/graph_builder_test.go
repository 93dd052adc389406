package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spendlens/graphcache/pkg/apperrors"
	"github.com/spendlens/graphcache/pkg/models"
)

func newTestBuilder(adapter *fakeAdapter) GraphBuilder {
	return NewGraphBuilder(
		&fakeProvider{adapter: adapter},
		NewRelationshipDiscovery(zap.NewNop()),
		zap.NewNop(),
	)
}

func nodeKeys(nodes []models.Node) []string {
	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.NodeKey)
	}
	return keys
}

func TestBuildSchemaGraph_Scenario(t *testing.T) {
	b := newTestBuilder(procurementFixture())

	out, err := b.BuildSchemaGraph(context.Background(), "erp", nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Supplier", "PurchaseOrder"}, nodeKeys(out.Nodes))
	for _, n := range out.Nodes {
		assert.Equal(t, models.NodeTypeTable, n.NodeType)
		assert.Equal(t, n.NodeKey, n.Label)
	}

	require.Len(t, out.Edges, 1)
	edge := out.Edges[0]
	assert.Equal(t, "PurchaseOrder", edge.SourceNodeKey)
	assert.Equal(t, "Supplier", edge.TargetNodeKey)
	assert.Equal(t, "Supplier", edge.Label)
	assert.Equal(t, models.EdgeTypeForeignKey, edge.EdgeType)
	assert.Equal(t, "high", edge.Properties["confidence"])
}

func TestBuildSchemaGraph_NodeProperties(t *testing.T) {
	b := newTestBuilder(procurementFixture())

	out, err := b.BuildSchemaGraph(context.Background(), "erp", nil)
	require.NoError(t, err)

	var supplier *models.Node
	for i := range out.Nodes {
		if out.Nodes[i].NodeKey == "Supplier" {
			supplier = &out.Nodes[i]
		}
	}
	require.NotNil(t, supplier)

	assert.Equal(t, 2, supplier.Properties["column_count"])
	assert.Equal(t, int64(2), supplier.Properties["row_count_estimate"])
	assert.Equal(t, []string{"Supplier"}, supplier.Properties["primary_key_columns"])
}

func TestBuildSchemaGraph_EmptySource(t *testing.T) {
	b := newTestBuilder(&fakeAdapter{})

	out, err := b.BuildSchemaGraph(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, out.Nodes)
	assert.Empty(t, out.Edges)
}

func TestBuildSchemaGraph_TableSubset(t *testing.T) {
	b := newTestBuilder(procurementFixture())

	out, err := b.BuildSchemaGraph(context.Background(), "erp", []string{"Supplier"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Supplier"}, nodeKeys(out.Nodes))
	assert.Empty(t, out.Edges)
}

func TestBuildSchemaGraph_AdapterFailureAborts(t *testing.T) {
	b := newTestBuilder(&fakeAdapter{listTablesErr: errSourceDown})

	_, err := b.BuildSchemaGraph(context.Background(), "erp", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBuildFailed)
	assert.ErrorIs(t, err, errSourceDown)
}

func TestBuildDataGraph_OrphanFilterScenario(t *testing.T) {
	b := newTestBuilder(procurementFixture())

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, true)
	require.NoError(t, err)

	// S2 has no purchase orders and gets dropped as an orphan.
	assert.ElementsMatch(t, []string{"Supplier-S1", "PurchaseOrder-P1"}, nodeKeys(out.Nodes))
	assert.Equal(t, 1, out.OrphansFiltered)

	require.Len(t, out.Edges, 1)
	edge := out.Edges[0]
	assert.Equal(t, "PurchaseOrder-P1", edge.SourceNodeKey)
	assert.Equal(t, "Supplier-S1", edge.TargetNodeKey)
	assert.Equal(t, "Supplier", edge.Label)
	assert.Equal(t, models.EdgeTypeReference, edge.EdgeType)
}

func TestBuildDataGraph_OrphansKeptWhenFilterOff(t *testing.T) {
	b := newTestBuilder(procurementFixture())

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, false)
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"Supplier-S1", "Supplier-S2", "PurchaseOrder-P1"},
		nodeKeys(out.Nodes))
	assert.Zero(t, out.OrphansFiltered)
}

func TestBuildDataGraph_NodeShape(t *testing.T) {
	b := newTestBuilder(procurementFixture())

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, false)
	require.NoError(t, err)

	var po *models.Node
	for i := range out.Nodes {
		if out.Nodes[i].NodeKey == "PurchaseOrder-P1" {
			po = &out.Nodes[i]
		}
	}
	require.NotNil(t, po)

	assert.Equal(t, models.NodeTypeRecord, po.NodeType)
	assert.Equal(t, "PurchaseOrder\npk:P1", po.Label)
	assert.Equal(t, "PurchaseOrder", po.Properties["group"])

	values, ok := po.Properties["record_values"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "S1", values["Supplier"])
}

func TestBuildDataGraph_ZeroMaxRecords(t *testing.T) {
	adapter := procurementFixture()
	b := newTestBuilder(adapter)

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 0, true)
	require.NoError(t, err)
	assert.Empty(t, out.Nodes)
	assert.Empty(t, out.Edges)
}

func TestBuildDataGraph_NullPrimaryKeysContributeNothing(t *testing.T) {
	adapter := &fakeAdapter{
		tables: []models.TableInfo{{Name: "Draft", RowCountEstimate: 2}},
		columns: map[string][]models.ColumnInfo{
			"Draft": {
				{Name: "Draft", DataType: "TEXT", IsPrimaryKey: true},
				{Name: "Note", DataType: "TEXT"},
			},
		},
		records: map[string][]models.Record{
			"Draft": {
				{"Draft": nil, "Note": "unsaved"},
				{"Draft": "", "Note": "blank key"},
			},
		},
	}
	b := newTestBuilder(adapter)

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, false)
	require.NoError(t, err)
	assert.Empty(t, out.Nodes)
}

func TestBuildDataGraph_TableWithoutPrimaryKeySkipped(t *testing.T) {
	adapter := &fakeAdapter{
		tables: []models.TableInfo{{Name: "AuditTrail", RowCountEstimate: 1}},
		columns: map[string][]models.ColumnInfo{
			"AuditTrail": {{Name: "Message", DataType: "TEXT"}},
		},
		records: map[string][]models.Record{
			"AuditTrail": {{"Message": "hello"}},
		},
	}
	b := newTestBuilder(adapter)

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, false)
	require.NoError(t, err)
	assert.Empty(t, out.Nodes)
}

// stubDiscovery returns fixed hints, bypassing the naming ladder.
type stubDiscovery struct {
	hints []models.RelationshipHint
}

func (s *stubDiscovery) Discover([]models.TableInfo, map[string][]models.ColumnInfo) []models.RelationshipHint {
	return s.hints
}

func TestBuildDataGraph_SelfReference(t *testing.T) {
	adapter := &fakeAdapter{
		tables: []models.TableInfo{{Name: "Category", RowCountEstimate: 2}},
		columns: map[string][]models.ColumnInfo{
			"Category": {
				{Name: "Category", DataType: "TEXT", IsPrimaryKey: true},
				{Name: "ParentCategoryID", DataType: "TEXT", Nullable: true},
			},
		},
		records: map[string][]models.Record{
			"Category": {
				{"Category": "C1", "ParentCategoryID": nil},
				{"Category": "C2", "ParentCategoryID": "C1"},
			},
		},
	}
	// The naming ladder never maps a column back onto its own table, so a
	// self-referencing hint has to come from outside it.
	b := NewGraphBuilder(
		&fakeProvider{adapter: adapter},
		&stubDiscovery{hints: []models.RelationshipHint{{
			SourceTable: "Category",
			FKColumn:    "ParentCategoryID",
			TargetTable: "Category",
			Confidence:  models.ConfidenceHigh,
		}}},
		zap.NewNop(),
	)

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, false)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Category-C1", "Category-C2"}, nodeKeys(out.Nodes))
	require.Len(t, out.Edges, 1)
	assert.Equal(t, "Category-C2", out.Edges[0].SourceNodeKey)
	assert.Equal(t, "Category-C1", out.Edges[0].TargetNodeKey)
}

func TestBuildDataGraph_DanglingReferenceEmitsNoEdge(t *testing.T) {
	adapter := procurementFixture()
	// P2 points at a supplier outside the materialized set.
	adapter.records["PurchaseOrder"] = append(adapter.records["PurchaseOrder"],
		models.Record{"PurchaseOrder": "P2", "Supplier": "S9", "Date": "2025-11-04"})
	b := newTestBuilder(adapter)

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, false)
	require.NoError(t, err)

	require.Len(t, out.Edges, 1)
	assert.Equal(t, "PurchaseOrder-P1", out.Edges[0].SourceNodeKey)
}

func TestBuildDataGraph_NumericKeysStringifyUniformly(t *testing.T) {
	adapter := &fakeAdapter{
		tables: []models.TableInfo{
			{Name: "Plant", RowCountEstimate: 1},
			{Name: "Warehouse", RowCountEstimate: 1},
		},
		columns: map[string][]models.ColumnInfo{
			"Plant": {{Name: "Plant", DataType: "INTEGER", IsPrimaryKey: true}},
			"Warehouse": {
				{Name: "Warehouse", DataType: "INTEGER", IsPrimaryKey: true},
				{Name: "PlantID", DataType: "INTEGER"},
			},
		},
		records: map[string][]models.Record{
			// One side int64, the other float64: drivers disagree on affinity.
			"Plant":     {{"Plant": int64(7)}},
			"Warehouse": {{"Warehouse": float64(1), "PlantID": float64(7)}},
		},
	}
	b := newTestBuilder(adapter)

	out, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, false)
	require.NoError(t, err)

	require.Len(t, out.Edges, 1)
	assert.Equal(t, "Warehouse-1", out.Edges[0].SourceNodeKey)
	assert.Equal(t, "Plant-7", out.Edges[0].TargetNodeKey)
}

func TestBuildDataGraph_SampleFailureAborts(t *testing.T) {
	adapter := procurementFixture()
	adapter.sampleErr = errSourceDown
	b := newTestBuilder(adapter)

	_, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBuildFailed)
}

func TestBuild_Idempotent(t *testing.T) {
	b := newTestBuilder(procurementFixture())
	ctx := context.Background()

	for _, build := range []func() (*BuildOutput, error){
		func() (*BuildOutput, error) { return b.BuildSchemaGraph(ctx, "erp", nil) },
		func() (*BuildOutput, error) { return b.BuildDataGraph(ctx, "erp", nil, 10, true) },
	} {
		first, err := build()
		require.NoError(t, err)
		second, err := build()
		require.NoError(t, err)

		assert.Equal(t, first.Nodes, second.Nodes)
		assert.Equal(t, first.Edges, second.Edges)
		assert.Equal(t, first.SchemaVersion, second.SchemaVersion)
	}
}

func TestSchemaVersion_TracksSchemaChanges(t *testing.T) {
	adapter := procurementFixture()
	b := newTestBuilder(adapter)
	ctx := context.Background()

	before, err := b.BuildSchemaGraph(ctx, "erp", nil)
	require.NoError(t, err)

	adapter.columns["Supplier"] = append(adapter.columns["Supplier"],
		models.ColumnInfo{Name: "Country", DataType: "TEXT"})

	after, err := b.BuildSchemaGraph(ctx, "erp", nil)
	require.NoError(t, err)

	assert.NotEqual(t, before.SchemaVersion, after.SchemaVersion)
}

func TestBuildErrors_DoNotWrapNonAdapterIssues(t *testing.T) {
	b := newTestBuilder(&fakeAdapter{listTablesErr: errSourceDown})

	_, err := b.BuildDataGraph(context.Background(), "erp", nil, 10, true)
	assert.True(t, errors.Is(err, apperrors.ErrBuildFailed))
}
