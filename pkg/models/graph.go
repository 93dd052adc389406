package models

import (
	"encoding/json"
	"fmt"

	"github.com/spendlens/graphcache/pkg/apperrors"
)

// MaxRecordsLimit caps per-table record materialization in data mode.
const MaxRecordsLimit = 500

// DefaultMaxRecords is the per-table record budget when the caller does not set one.
const DefaultMaxRecords = 20

// GraphOptions controls a graph request.
type GraphOptions struct {
	Mode          Mode     `json:"mode"`
	UseCache      bool     `json:"use_cache"`
	MaxRecords    int      `json:"max_records"`
	FilterOrphans bool     `json:"filter_orphans"`
	Tables        []string `json:"tables,omitempty"`
}

// DefaultGraphOptions returns the documented defaults for a mode.
func DefaultGraphOptions(mode Mode) GraphOptions {
	return GraphOptions{
		Mode:          mode,
		UseCache:      true,
		MaxRecords:    DefaultMaxRecords,
		FilterOrphans: true,
	}
}

// Validate rejects out-of-range options before any I/O happens.
func (o *GraphOptions) Validate() error {
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	if o.MaxRecords < 0 {
		return fmt.Errorf("%w: max_records must not be negative, got %d", apperrors.ErrInvalidOption, o.MaxRecords)
	}
	if o.MaxRecords > MaxRecordsLimit {
		return fmt.Errorf("%w: max_records must not exceed %d, got %d", apperrors.ErrInvalidOption, MaxRecordsLimit, o.MaxRecords)
	}
	return nil
}

// GraphNode is a translated node: {"id", "label", ...properties}.
// Properties are flattened into the object; no styling keys are ever added.
type GraphNode struct {
	ID         string
	Label      string
	Properties map[string]any
}

// MarshalJSON flattens properties next to id and label.
func (n GraphNode) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Properties)+2)
	for k, v := range n.Properties {
		out[k] = v
	}
	out["id"] = n.ID
	out["label"] = n.Label
	return json.Marshal(out)
}

// GraphEdge is a translated edge: {"from", "to", "label", ...properties}.
type GraphEdge struct {
	From       string
	To         string
	Label      string
	Properties map[string]any
}

// MarshalJSON flattens properties next to from, to and label.
func (e GraphEdge) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Properties)+3)
	for k, v := range e.Properties {
		out[k] = v
	}
	out["from"] = e.From
	out["to"] = e.To
	if e.Label != "" {
		out["label"] = e.Label
	}
	return json.Marshal(out)
}

// GraphStats describes how a translated graph was produced.
type GraphStats struct {
	Mode            Mode   `json:"mode"`
	NodeCount       int    `json:"node_count"`
	EdgeCount       int    `json:"edge_count"`
	FromCache       bool   `json:"from_cache"`
	OrphansFiltered int    `json:"orphans_filtered,omitempty"`
	BuildID         string `json:"build_id,omitempty"`
	DurationMS      int64  `json:"duration_ms"`
}

// GraphData is the translator output handed to consumers.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Stats GraphStats  `json:"stats"`
}

// RefreshResult reports a forced rebuild.
type RefreshResult struct {
	Discovered   int    `json:"discovered"`
	NodesWritten int    `json:"nodes_written"`
	EdgesWritten int    `json:"edges_written"`
	DurationMS   int64  `json:"duration_ms"`
	BuildID      string `json:"build_id"`
}

// ClearResult reports a cache invalidation.
type ClearResult struct {
	Deleted int64 `json:"deleted"`
}
