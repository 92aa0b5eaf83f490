package classify

import "github.com/spherical-ai/spherical/libs/program-engine/internal/program"

// ColumnMap maps each semantic type to the header chosen for it.
type ColumnMap map[ColumnType]string

// BuildColumnMap picks, for each type, the column with the highest
// confidence. On a tie the column whose samples parse as the type more often
// wins, then the column seen first. Unknown columns are ignored.
func BuildColumnMap(cols []DetectedColumn) ColumnMap {
	m := make(ColumnMap)
	best := make(map[ColumnType]DetectedColumn)
	for _, col := range cols {
		if col.Type == TypeUnknown {
			continue
		}
		if cur, ok := best[col.Type]; ok {
			if col.Confidence < cur.Confidence {
				continue
			}
			if col.Confidence == cur.Confidence && valueHitRate(col) <= valueHitRate(cur) {
				continue
			}
		}
		best[col.Type] = col
		m[col.Type] = col.Header
	}
	return m
}

// valueHitRate is the share of samples that parse as the column's type. Types
// without a value parser score 0, so their ties keep the first column.
func valueHitRate(col DetectedColumn) float64 {
	switch col.Type {
	case TypeDate:
		return matchRatio(col.Samples, func(v string) bool { _, _, ok := program.ParseDate(v); return ok })
	case TypeTime:
		return matchRatio(col.Samples, func(v string) bool { _, ok := program.ParseTimeRange(v); return ok })
	case TypeEmail:
		return matchRatio(col.Samples, emailRe.MatchString)
	}
	return 0
}

// Header returns the header mapped to t, or "" when none was detected.
func (m ColumnMap) Header(t ColumnType) string {
	return m[t]
}

// Has reports whether t was detected.
func (m ColumnMap) Has(t ColumnType) bool {
	_, ok := m[t]
	return ok
}

// Missing returns the types in want that have no column.
func (m ColumnMap) Missing(want ...ColumnType) []ColumnType {
	var out []ColumnType
	for _, t := range want {
		if !m.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
