package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spendlens/graphcache/pkg/apperrors"
)

// Mode selects which partition of the cache a graph lives in.
type Mode string

const (
	// ModeSchema stores tables as nodes and inferred relationships as edges.
	ModeSchema Mode = "schema"
	// ModeData stores individual records as nodes and referential links as edges.
	ModeData Mode = "data"
)

// AllModes lists every mode a data source can be cached under.
var AllModes = []Mode{ModeSchema, ModeData}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSchema:
		return ModeSchema, nil
	case ModeData:
		return ModeData, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", apperrors.ErrInvalidOption, s)
}

// Node type tags.
const (
	NodeTypeTable  = "table"
	NodeTypeRecord = "record"
)

// Edge type tags.
const (
	EdgeTypeForeignKey = "foreign_key"
	EdgeTypeReference  = "reference"
)

// Ontology is the logical container for one graph, keyed by (data_source, mode).
type Ontology struct {
	DataSource    string    `json:"data_source"`
	Mode          Mode      `json:"mode"`
	Description   string    `json:"description"`
	SchemaVersion string    `json:"schema_version"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Node is one cached graph node. NodeKey is unique within (data_source, mode):
// the table name in schema mode, "{table}-{pk}" in data mode.
type Node struct {
	DataSource string         `json:"data_source"`
	Mode       Mode           `json:"mode"`
	NodeKey    string         `json:"node_key"`
	NodeType   string         `json:"node_type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PropertiesJSON marshals the property bag for persistence.
func (n *Node) PropertiesJSON() (string, error) {
	return marshalProperties(n.Properties)
}

// Edge is one cached graph edge. Both node keys must resolve within the
// same ontology; the store enforces this through foreign keys.
type Edge struct {
	ID            int64          `json:"id,omitempty"`
	DataSource    string         `json:"data_source"`
	Mode          Mode           `json:"mode"`
	SourceNodeKey string         `json:"source_node_key"`
	TargetNodeKey string         `json:"target_node_key"`
	EdgeType      string         `json:"edge_type"`
	Label         string         `json:"label"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// PropertiesJSON marshals the property bag for persistence.
func (e *Edge) PropertiesJSON() (string, error) {
	return marshalProperties(e.Properties)
}

// DedupeKey identifies an edge for deduplication within one ontology.
func (e *Edge) DedupeKey() string {
	return e.SourceNodeKey + "\x00" + e.TargetNodeKey + "\x00" + e.Label
}

// OntologyStats summarizes one cached ontology for monitoring.
type OntologyStats struct {
	DataSource string    `json:"data_source"`
	Mode       Mode      `json:"mode"`
	NodeCount  int       `json:"node_count"`
	EdgeCount  int       `json:"edge_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func marshalProperties(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to marshal properties: %w", err)
	}
	return string(data), nil
}

// UnmarshalProperties parses a properties_json column value.
func UnmarshalProperties(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	return props, nil
}
