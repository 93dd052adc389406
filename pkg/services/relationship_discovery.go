package services

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spendlens/graphcache/pkg/models"
)

// fkSuffixes are tried in order; the first suffix that resolves wins.
var fkSuffixes = []string{"ID", "Code", "Key", "Number", "UUID"}

// minSubstringTableLen is the length floor for the substring rule. Shorter
// table names once matched into nearly every column and fanned out spurious
// edges, so they participate only in the exact and suffix rules.
const minSubstringTableLen = 4

// RelationshipDiscovery infers FK-like relationships between tables whose
// schemas do not declare them, using a naming-heuristic ladder ordered
// strongest-first: exact column/table name match, recognized FK suffix
// stripped, then substring containment.
type RelationshipDiscovery interface {
	// Discover returns hints for the given table universe. It never fails:
	// tables it cannot analyze are skipped.
	Discover(tables []models.TableInfo, columns map[string][]models.ColumnInfo) []models.RelationshipHint
}

type relationshipDiscovery struct {
	logger *zap.Logger
}

// NewRelationshipDiscovery creates a RelationshipDiscovery.
func NewRelationshipDiscovery(logger *zap.Logger) RelationshipDiscovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &relationshipDiscovery{logger: logger}
}

var _ RelationshipDiscovery = (*relationshipDiscovery)(nil)

func (d *relationshipDiscovery) Discover(tables []models.TableInfo, columns map[string][]models.ColumnInfo) []models.RelationshipHint {
	// Case-insensitive table lookup over the declared universe.
	byLower := make(map[string]string, len(tables))
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		byLower[strings.ToLower(t.Name)] = t.Name
		names = append(names, t.Name)
	}
	sort.Strings(names)

	var hints []models.RelationshipHint
	seen := make(map[string]int) // dedupe key -> index into hints

	emit := func(h models.RelationshipHint) {
		key := h.SourceTable + "\x00" + h.FKColumn + "\x00" + h.TargetTable
		if i, ok := seen[key]; ok {
			if h.Confidence.Stronger(hints[i].Confidence) {
				hints[i].Confidence = h.Confidence
			}
			return
		}
		seen[key] = len(hints)
		hints = append(hints, h)
	}

	for _, table := range names {
		cols, ok := columns[table]
		if !ok {
			d.logger.Debug("No column metadata for table, skipping", zap.String("table", table))
			continue
		}

		for _, col := range cols {
			if strings.EqualFold(col.Name, table) {
				// A column named after its own table is noise, not a reference.
				continue
			}

			if target, ok := d.exactMatch(byLower, table, col.Name); ok {
				emit(models.RelationshipHint{
					SourceTable: table,
					FKColumn:    col.Name,
					TargetTable: target,
					Confidence:  models.ConfidenceHigh,
				})
				continue
			}

			if target, ok := d.suffixMatch(byLower, table, col.Name); ok {
				emit(models.RelationshipHint{
					SourceTable: table,
					FKColumn:    col.Name,
					TargetTable: target,
					Confidence:  models.ConfidenceHigh,
				})
				continue
			}

			if target, ok := d.substringMatch(names, table, col.Name); ok {
				emit(models.RelationshipHint{
					SourceTable: table,
					FKColumn:    col.Name,
					TargetTable: target,
					Confidence:  models.ConfidenceMedium,
				})
			}
		}
	}

	d.logger.Info("Relationship discovery completed",
		zap.Int("tables", len(tables)),
		zap.Int("hints", len(hints)))

	return hints
}

// exactMatch: the column name is exactly another table's name.
func (d *relationshipDiscovery) exactMatch(byLower map[string]string, table, column string) (string, bool) {
	if target, ok := byLower[strings.ToLower(column)]; ok && target != table {
		return target, true
	}
	return "", false
}

// suffixMatch: the column name minus a recognized FK suffix is a table name.
// Suffixes are tried in declared order; the first that resolves wins.
func (d *relationshipDiscovery) suffixMatch(byLower map[string]string, table, column string) (string, bool) {
	for _, suffix := range fkSuffixes {
		if !strings.HasSuffix(column, suffix) {
			continue
		}
		base := column[:len(column)-len(suffix)]
		if base == "" {
			continue
		}
		if target, ok := byLower[strings.ToLower(base)]; ok && target != table {
			return target, true
		}
	}
	return "", false
}

// substringMatch: some table name of length >= 4 appears inside the column
// name. The longest matching table wins; name order breaks length ties.
func (d *relationshipDiscovery) substringMatch(names []string, table, column string) (string, bool) {
	lowerCol := strings.ToLower(column)

	best := ""
	for _, candidate := range names {
		if candidate == table || len(candidate) < minSubstringTableLen {
			continue
		}
		if !strings.Contains(lowerCol, strings.ToLower(candidate)) {
			continue
		}
		if len(candidate) > len(best) {
			best = candidate
		}
	}

	if best == "" {
		return "", false
	}
	return best, true
}
