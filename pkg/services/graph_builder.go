package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spendlens/graphcache/pkg/adapters/datasource"
	"github.com/spendlens/graphcache/pkg/apperrors"
	"github.com/spendlens/graphcache/pkg/models"
)

// sampleBatchSize is how many records each SampleRecords page fetches.
const sampleBatchSize = 100

// BuildOutput is the result of one graph build, ready for the cache store.
type BuildOutput struct {
	Nodes           []models.Node
	Edges           []models.Edge
	Hints           []models.RelationshipHint
	OrphansFiltered int
	SchemaVersion   string
}

// GraphBuilder constructs schema-mode and data-mode graphs from a data
// source's metadata and the discovery output.
type GraphBuilder interface {
	// BuildSchemaGraph emits one table node per table and one foreign_key
	// edge per discovered relationship. A nil table list means all tables.
	BuildSchemaGraph(ctx context.Context, dataSource string, tables []string) (*BuildOutput, error)

	// BuildDataGraph materializes up to maxRecords records per table as
	// record nodes and links them along discovered relationships.
	BuildDataGraph(ctx context.Context, dataSource string, tables []string, maxRecords int, filterOrphans bool) (*BuildOutput, error)
}

type graphBuilder struct {
	adapters  datasource.AdapterProvider
	discovery RelationshipDiscovery
	logger    *zap.Logger
}

// NewGraphBuilder creates a GraphBuilder.
func NewGraphBuilder(adapters datasource.AdapterProvider, discovery RelationshipDiscovery, logger *zap.Logger) GraphBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &graphBuilder{
		adapters:  adapters,
		discovery: discovery,
		logger:    logger,
	}
}

var _ GraphBuilder = (*graphBuilder)(nil)

// sourceMetadata is the uniform build input gathered from an adapter.
type sourceMetadata struct {
	dataSource string
	tables     []models.TableInfo // alphabetical
	columns    map[string][]models.ColumnInfo
}

func (b *graphBuilder) BuildSchemaGraph(ctx context.Context, dataSource string, tables []string) (*BuildOutput, error) {
	meta, err := b.gatherMetadata(ctx, dataSource, tables)
	if err != nil {
		return nil, err
	}

	hints := b.discovery.Discover(meta.tables, meta.columns)

	out := &BuildOutput{
		Hints:         hints,
		SchemaVersion: schemaVersionDigest(meta),
	}

	nodeKeys := make(map[string]bool, len(meta.tables))
	for _, table := range meta.tables {
		cols := meta.columns[table.Name]
		var pkCols []string
		for _, col := range cols {
			if col.IsPrimaryKey {
				pkCols = append(pkCols, col.Name)
			}
		}

		out.Nodes = append(out.Nodes, models.Node{
			DataSource: dataSource,
			Mode:       models.ModeSchema,
			NodeKey:    table.Name,
			NodeType:   models.NodeTypeTable,
			Label:      table.Name,
			Properties: map[string]any{
				"column_count":        len(cols),
				"row_count_estimate":  table.RowCountEstimate,
				"primary_key_columns": pkCols,
			},
		})
		nodeKeys[table.Name] = true
	}

	seen := make(map[string]bool)
	for _, hint := range hints {
		if !nodeKeys[hint.SourceTable] || !nodeKeys[hint.TargetTable] {
			// Hint points outside the selected universe; nothing to connect.
			continue
		}
		edge := models.Edge{
			DataSource:    dataSource,
			Mode:          models.ModeSchema,
			SourceNodeKey: hint.SourceTable,
			TargetNodeKey: hint.TargetTable,
			EdgeType:      models.EdgeTypeForeignKey,
			Label:         hint.FKColumn,
			Properties: map[string]any{
				"confidence": string(hint.Confidence),
			},
		}
		if seen[edge.DedupeKey()] {
			continue
		}
		seen[edge.DedupeKey()] = true
		out.Edges = append(out.Edges, edge)
	}

	b.logger.Info("Built schema-mode graph",
		zap.String("datasource", dataSource),
		zap.Int("nodes", len(out.Nodes)),
		zap.Int("edges", len(out.Edges)),
		zap.Int("hints", len(hints)))

	return out, nil
}

func (b *graphBuilder) BuildDataGraph(ctx context.Context, dataSource string, tables []string, maxRecords int, filterOrphans bool) (*BuildOutput, error) {
	meta, err := b.gatherMetadata(ctx, dataSource, tables)
	if err != nil {
		return nil, err
	}

	hints := b.discovery.Discover(meta.tables, meta.columns)

	out := &BuildOutput{
		Hints:         hints,
		SchemaVersion: schemaVersionDigest(meta),
	}
	if maxRecords <= 0 {
		return out, nil
	}

	adapter, err := b.adapters.Adapter(ctx, dataSource)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBuildFailed, err)
	}

	hintsBySource := make(map[string][]models.RelationshipHint)
	for _, hint := range hints {
		hintsBySource[hint.SourceTable] = append(hintsBySource[hint.SourceTable], hint)
	}

	// Pass one: materialize nodes and the (table, pk) -> node_key lookup.
	recordsByTable := make(map[string][]models.Record, len(meta.tables))
	nodeKeyByPK := make(map[string]string)

	for _, table := range meta.tables {
		pkCol := primaryKeyColumn(meta.columns[table.Name])
		if pkCol == "" {
			b.logger.Debug("Table has no primary key, skipping records",
				zap.String("table", table.Name))
			continue
		}

		records, err := b.fetchRecords(ctx, adapter, table.Name, maxRecords)
		if err != nil {
			return nil, err
		}
		recordsByTable[table.Name] = records

		for _, record := range records {
			pk := stringifyKey(record[pkCol])
			if pk == "" {
				continue
			}

			nodeKey := table.Name + "-" + pk
			if _, exists := nodeKeyByPK[lookupKey(table.Name, pk)]; exists {
				continue
			}

			out.Nodes = append(out.Nodes, models.Node{
				DataSource: dataSource,
				Mode:       models.ModeData,
				NodeKey:    nodeKey,
				NodeType:   models.NodeTypeRecord,
				Label:      table.Name + "\npk:" + pk,
				Properties: map[string]any{
					"group":         table.Name,
					"record_values": map[string]any(record),
				},
			})
			nodeKeyByPK[lookupKey(table.Name, pk)] = nodeKey
		}
	}

	// Pass two: connect records along discovered relationships. A foreign
	// key pointing at a record outside the materialized set emits nothing.
	seen := make(map[string]bool)
	for _, table := range meta.tables {
		tableHints := hintsBySource[table.Name]
		if len(tableHints) == 0 {
			continue
		}
		pkCol := primaryKeyColumn(meta.columns[table.Name])
		if pkCol == "" {
			continue
		}

		for _, record := range recordsByTable[table.Name] {
			pk := stringifyKey(record[pkCol])
			if pk == "" {
				continue
			}
			sourceKey, ok := nodeKeyByPK[lookupKey(table.Name, pk)]
			if !ok {
				continue
			}

			for _, hint := range tableHints {
				value, ok := record[hint.FKColumn]
				if !ok {
					continue
				}
				ref := stringifyKey(value)
				if ref == "" {
					continue
				}
				targetKey, ok := nodeKeyByPK[lookupKey(hint.TargetTable, ref)]
				if !ok {
					continue
				}

				edge := models.Edge{
					DataSource:    dataSource,
					Mode:          models.ModeData,
					SourceNodeKey: sourceKey,
					TargetNodeKey: targetKey,
					EdgeType:      models.EdgeTypeReference,
					Label:         hint.FKColumn,
					Properties: map[string]any{
						"confidence": string(hint.Confidence),
					},
				}
				if seen[edge.DedupeKey()] {
					continue
				}
				seen[edge.DedupeKey()] = true
				out.Edges = append(out.Edges, edge)
			}
		}
	}

	if filterOrphans {
		out.Nodes, out.OrphansFiltered = dropOrphans(out.Nodes, out.Edges)
	}

	b.logger.Info("Built data-mode graph",
		zap.String("datasource", dataSource),
		zap.Int("nodes", len(out.Nodes)),
		zap.Int("edges", len(out.Edges)),
		zap.Int("orphans_filtered", out.OrphansFiltered))

	return out, nil
}

// gatherMetadata enumerates tables and columns through the adapter. Adapter
// failure aborts the build; the caller's cache stays untouched.
func (b *graphBuilder) gatherMetadata(ctx context.Context, dataSource string, selected []string) (*sourceMetadata, error) {
	adapter, err := b.adapters.Adapter(ctx, dataSource)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBuildFailed, err)
	}

	all, err := adapter.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %w", apperrors.ErrBuildFailed, err)
	}

	tables := all
	if len(selected) > 0 {
		want := make(map[string]bool, len(selected))
		for _, name := range selected {
			want[name] = true
		}
		tables = tables[:0:0]
		for _, t := range all {
			if want[t.Name] {
				tables = append(tables, t)
			}
		}
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	columns := make(map[string][]models.ColumnInfo, len(tables))
	for _, t := range tables {
		cols, err := adapter.ListColumns(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: list columns for %s: %w", apperrors.ErrBuildFailed, t.Name, err)
		}
		columns[t.Name] = cols
	}

	return &sourceMetadata{
		dataSource: dataSource,
		tables:     tables,
		columns:    columns,
	}, nil
}

func (b *graphBuilder) fetchRecords(ctx context.Context, adapter datasource.MetadataAdapter, table string, maxRecords int) ([]models.Record, error) {
	var records []models.Record
	for offset := 0; offset < maxRecords; offset += sampleBatchSize {
		limit := sampleBatchSize
		if remaining := maxRecords - offset; remaining < limit {
			limit = remaining
		}

		batch, err := adapter.SampleRecords(ctx, table, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %s: %w", apperrors.ErrBuildFailed, table, err)
		}
		records = append(records, batch...)
		if len(batch) < limit {
			break
		}
	}
	return records, nil
}

// dropOrphans removes nodes with no incident edge and reports how many.
func dropOrphans(nodes []models.Node, edges []models.Edge) ([]models.Node, int) {
	connected := make(map[string]bool, len(edges)*2)
	for _, e := range edges {
		connected[e.SourceNodeKey] = true
		connected[e.TargetNodeKey] = true
	}

	kept := nodes[:0:0]
	dropped := 0
	for _, n := range nodes {
		if connected[n.NodeKey] {
			kept = append(kept, n)
		} else {
			dropped++
		}
	}
	return kept, dropped
}

// primaryKeyColumn returns the first declared PK column, or "".
func primaryKeyColumn(cols []models.ColumnInfo) string {
	for _, col := range cols {
		if col.IsPrimaryKey {
			return col.Name
		}
	}
	return ""
}

func lookupKey(table, pk string) string {
	return table + "\x00" + pk
}

// stringifyKey renders a primary-key or FK value uniformly so both sides of
// the record lookup agree. Drivers hand back integers as int64 or float64
// depending on column affinity.
func stringifyKey(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// schemaVersionDigest fingerprints the table/column universe. A changed
// digest on rebuild signals that the source schema moved underneath a
// cached graph.
func schemaVersionDigest(meta *sourceMetadata) string {
	var sb strings.Builder
	for _, table := range meta.tables {
		sb.WriteString(table.Name)
		sb.WriteByte(':')
		for i, col := range meta.columns[table.Name] {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(col.Name)
		}
		sb.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])[:12]
}
