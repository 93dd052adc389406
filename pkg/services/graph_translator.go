package services

import (
	"go.uber.org/zap"

	"github.com/spendlens/graphcache/pkg/models"
)

// GraphTranslator converts cached rows into pure-data node/edge sequences.
// It carries semantic properties through untouched and adds nothing visual:
// colors, shapes, sizes and layout are the consumer's concern.
type GraphTranslator interface {
	Translate(nodes []models.Node, edges []models.Edge, mode models.Mode) *models.GraphData
}

type graphTranslator struct {
	logger *zap.Logger
}

// NewGraphTranslator creates a GraphTranslator.
func NewGraphTranslator(logger *zap.Logger) GraphTranslator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &graphTranslator{logger: logger}
}

var _ GraphTranslator = (*graphTranslator)(nil)

func (t *graphTranslator) Translate(nodes []models.Node, edges []models.Edge, mode models.Mode) *models.GraphData {
	out := &models.GraphData{
		Nodes: make([]models.GraphNode, 0, len(nodes)),
		Edges: make([]models.GraphEdge, 0, len(edges)),
	}

	for _, n := range nodes {
		props := make(map[string]any, len(n.Properties)+1)
		for k, v := range n.Properties {
			props[k] = v
		}
		props["node_type"] = n.NodeType

		out.Nodes = append(out.Nodes, models.GraphNode{
			ID:         n.NodeKey,
			Label:      n.Label,
			Properties: props,
		})
	}

	for _, e := range edges {
		props := make(map[string]any, len(e.Properties)+1)
		for k, v := range e.Properties {
			props[k] = v
		}
		props["edge_type"] = e.EdgeType

		out.Edges = append(out.Edges, models.GraphEdge{
			From:       e.SourceNodeKey,
			To:         e.TargetNodeKey,
			Label:      e.Label,
			Properties: props,
		})
	}

	out.Stats = models.GraphStats{
		Mode:      mode,
		NodeCount: len(out.Nodes),
		EdgeCount: len(out.Edges),
	}

	return out
}
