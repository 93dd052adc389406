package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spendlens/graphcache/pkg/apperrors"
	"github.com/spendlens/graphcache/pkg/models"
)

// GraphRepository is the cache store for ontologies, nodes and edges.
// The store relies on composite foreign keys with cascade-on-delete, so the
// underlying connection must have referential integrity enabled (database.Open
// refuses to hand out one that doesn't).
type GraphRepository interface {
	// UpsertOntology creates or updates the ontology row for a pair.
	// created_at is preserved across updates.
	UpsertOntology(ctx context.Context, dataSource string, mode models.Mode, description, schemaVersion string) (*models.Ontology, error)

	// GetOntology returns the ontology row, or apperrors.ErrNotCached.
	GetOntology(ctx context.Context, dataSource string, mode models.Mode) (*models.Ontology, error)

	// ReplaceGraph swaps the ontology's nodes and edges in one transaction:
	// delete all, insert new, bump updated_at. Fails atomically.
	ReplaceGraph(ctx context.Context, ont *models.Ontology, nodes []models.Node, edges []models.Edge) error

	// LoadGraph returns the cached nodes and edges for a pair,
	// or apperrors.ErrNotCached when no ontology row exists.
	LoadGraph(ctx context.Context, dataSource string, mode models.Mode) ([]models.Node, []models.Edge, error)

	// CacheExists reports whether an ontology row exists for the pair.
	CacheExists(ctx context.Context, dataSource string, mode models.Mode) (bool, error)

	// Clear deletes ontology rows matching the given axes; nil means "all".
	// Nodes and edges go with them via cascade. Returns the ontology count.
	Clear(ctx context.Context, dataSource *string, mode *models.Mode) (int64, error)

	// Statistics returns per-ontology node/edge counts and last update.
	Statistics(ctx context.Context) ([]models.OntologyStats, error)
}

type graphRepository struct {
	db *sql.DB
}

// NewGraphRepository creates a GraphRepository over the cache database.
func NewGraphRepository(db *sql.DB) GraphRepository {
	return &graphRepository{db: db}
}

var _ GraphRepository = (*graphRepository)(nil)

func (r *graphRepository) UpsertOntology(ctx context.Context, dataSource string, mode models.Mode, description, schemaVersion string) (*models.Ontology, error) {
	now := time.Now().UTC()

	query := `
		INSERT INTO graph_ontology (data_source, mode, description, schema_version, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (data_source, mode) DO UPDATE SET
			description = excluded.description,
			schema_version = excluded.schema_version,
			is_active = 1,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		dataSource, string(mode), description, schemaVersion,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, wrapStoreErr("failed to upsert ontology", err)
	}

	return r.GetOntology(ctx, dataSource, mode)
}

func (r *graphRepository) GetOntology(ctx context.Context, dataSource string, mode models.Mode) (*models.Ontology, error) {
	query := `
		SELECT data_source, mode, description, schema_version, is_active, created_at, updated_at
		FROM graph_ontology
		WHERE data_source = ? AND mode = ?`

	var (
		ont                  models.Ontology
		modeStr              string
		isActive             int
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, dataSource, string(mode)).Scan(
		&ont.DataSource, &modeStr, &ont.Description, &ont.SchemaVersion,
		&isActive, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no ontology for (%s, %s)", apperrors.ErrNotCached, dataSource, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ontology: %w", err)
	}

	ont.Mode = models.Mode(modeStr)
	ont.IsActive = isActive != 0
	if ont.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ont.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &ont, nil
}

func (r *graphRepository) ReplaceGraph(ctx context.Context, ont *models.Ontology, nodes []models.Node, edges []models.Edge) error {
	// Every edge endpoint must land on a node in the same batch; the edge
	// table's FK only covers the ontology pair, so dangling keys are caught
	// here before anything is written.
	keys := make(map[string]bool, len(nodes))
	for i := range nodes {
		keys[nodes[i].NodeKey] = true
	}
	for i := range edges {
		if !keys[edges[i].SourceNodeKey] || !keys[edges[i].TargetNodeKey] {
			return fmt.Errorf("%w: edge %s -> %s references a missing node",
				apperrors.ErrStoreIntegrity, edges[i].SourceNodeKey, edges[i].TargetNodeKey)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ds, mode := ont.DataSource, string(ont.Mode)

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_edges WHERE data_source = ? AND mode = ?`, ds, mode); err != nil {
		return wrapStoreErr("failed to delete edges", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE data_source = ? AND mode = ?`, ds, mode); err != nil {
		return wrapStoreErr("failed to delete nodes", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_nodes (data_source, mode, node_key, node_type, label, properties_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	for i := range nodes {
		props, err := nodes[i].PropertiesJSON()
		if err != nil {
			return err
		}
		if _, err := nodeStmt.ExecContext(ctx, ds, mode, nodes[i].NodeKey, nodes[i].NodeType, nodes[i].Label, props); err != nil {
			return wrapStoreErr(fmt.Sprintf("failed to insert node %s", nodes[i].NodeKey), err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_edges (data_source, mode, source_node_key, target_node_key, edge_type, label, properties_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for i := range edges {
		props, err := edges[i].PropertiesJSON()
		if err != nil {
			return err
		}
		if _, err := edgeStmt.ExecContext(ctx, ds, mode, edges[i].SourceNodeKey, edges[i].TargetNodeKey, edges[i].EdgeType, edges[i].Label, props); err != nil {
			return wrapStoreErr(fmt.Sprintf("failed to insert edge %s -> %s", edges[i].SourceNodeKey, edges[i].TargetNodeKey), err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE graph_ontology SET updated_at = ? WHERE data_source = ? AND mode = ?`,
		formatTime(time.Now().UTC()), ds, mode)
	if err != nil {
		return wrapStoreErr("failed to touch ontology", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: no ontology row for (%s, %s)", apperrors.ErrStoreIntegrity, ds, mode)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit graph replacement: %w", err)
	}

	return nil
}

func (r *graphRepository) LoadGraph(ctx context.Context, dataSource string, mode models.Mode) ([]models.Node, []models.Edge, error) {
	if _, err := r.GetOntology(ctx, dataSource, mode); err != nil {
		return nil, nil, err
	}

	nodes, err := r.loadNodes(ctx, dataSource, mode)
	if err != nil {
		return nil, nil, err
	}

	edges, err := r.loadEdges(ctx, dataSource, mode)
	if err != nil {
		return nil, nil, err
	}

	return nodes, edges, nil
}

func (r *graphRepository) loadNodes(ctx context.Context, dataSource string, mode models.Mode) ([]models.Node, error) {
	query := `
		SELECT node_key, node_type, label, properties_json
		FROM graph_nodes
		WHERE data_source = ? AND mode = ?
		ORDER BY node_key`

	rows, err := r.db.QueryContext(ctx, query, dataSource, string(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		node := models.Node{DataSource: dataSource, Mode: mode}
		var props string
		if err := rows.Scan(&node.NodeKey, &node.NodeType, &node.Label, &props); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if node.Properties, err = models.UnmarshalProperties(props); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

func (r *graphRepository) loadEdges(ctx context.Context, dataSource string, mode models.Mode) ([]models.Edge, error) {
	query := `
		SELECT id, source_node_key, target_node_key, edge_type, label, properties_json
		FROM graph_edges
		WHERE data_source = ? AND mode = ?
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, dataSource, string(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []models.Edge
	for rows.Next() {
		edge := models.Edge{DataSource: dataSource, Mode: mode}
		var props string
		if err := rows.Scan(&edge.ID, &edge.SourceNodeKey, &edge.TargetNodeKey, &edge.EdgeType, &edge.Label, &props); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if edge.Properties, err = models.UnmarshalProperties(props); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

func (r *graphRepository) CacheExists(ctx context.Context, dataSource string, mode models.Mode) (bool, error) {
	query := `SELECT COUNT(*) FROM graph_ontology WHERE data_source = ? AND mode = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, dataSource, string(mode)).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check cache existence: %w", err)
	}
	return count > 0, nil
}

func (r *graphRepository) Clear(ctx context.Context, dataSource *string, mode *models.Mode) (int64, error) {
	query := `DELETE FROM graph_ontology WHERE 1 = 1`
	var args []any

	if dataSource != nil {
		query += ` AND data_source = ?`
		args = append(args, *dataSource)
	}
	if mode != nil {
		query += ` AND mode = ?`
		args = append(args, string(*mode))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapStoreErr("failed to clear cache", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared ontologies: %w", err)
	}
	return deleted, nil
}

func (r *graphRepository) Statistics(ctx context.Context) ([]models.OntologyStats, error) {
	query := `
		SELECT o.data_source, o.mode, o.updated_at,
		       (SELECT COUNT(*) FROM graph_nodes n WHERE n.data_source = o.data_source AND n.mode = o.mode),
		       (SELECT COUNT(*) FROM graph_edges e WHERE e.data_source = o.data_source AND e.mode = o.mode)
		FROM graph_ontology o
		ORDER BY o.data_source, o.mode`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	defer rows.Close()

	var stats []models.OntologyStats
	for rows.Next() {
		var (
			s         models.OntologyStats
			modeStr   string
			updatedAt string
		)
		if err := rows.Scan(&s.DataSource, &modeStr, &updatedAt, &s.NodeCount, &s.EdgeCount); err != nil {
			return nil, fmt.Errorf("failed to scan statistics: %w", err)
		}
		s.Mode = models.Mode(modeStr)
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statistics: %w", err)
	}

	return stats, nil
}

// wrapStoreErr maps SQLite constraint failures onto the integrity sentinel
// so callers can distinguish bugs from transient store errors.
func wrapStoreErr(msg string, err error) error {
	if strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%s: %w: %w", msg, apperrors.ErrStoreIntegrity, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}
