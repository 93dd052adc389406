package models

// TableInfo describes one user table in a data source.
type TableInfo struct {
	Name             string `json:"name"`
	RowCountEstimate int64  `json:"row_count_estimate"`
}

// ColumnInfo describes one column, in declared order.
type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	Nullable     bool   `json:"nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// Record is one sampled row, keyed by column name.
type Record map[string]any
