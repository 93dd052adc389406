package models

// Confidence expresses how strongly a discovered relationship is believed.
type Confidence string

const (
	// ConfidenceHigh is emitted by the exact-name and suffix-strip rules.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium is emitted by the substring rule.
	ConfidenceMedium Confidence = "medium"
)

// rank orders confidences so duplicates collapse to the strongest.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	}
	return 0
}

// Stronger reports whether c outranks other.
func (c Confidence) Stronger(other Confidence) bool {
	return c.rank() > other.rank()
}

// RelationshipHint is the transient output of relationship discovery:
// column FKColumn of SourceTable appears to reference TargetTable.
type RelationshipHint struct {
	SourceTable string     `json:"source_table"`
	FKColumn    string     `json:"fk_column"`
	TargetTable string     `json:"target_table"`
	Confidence  Confidence `json:"confidence"`
}
