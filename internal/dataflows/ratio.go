package dataflows

import (
	"strings"
	"unicode"

	"github.com/phuslu/log"
)

// NormalizeRatioColumns flattens ratio column labels into identifier-safe names.
// The input is never modified. On a malformed table the input is returned as is.
func NormalizeRatioColumns(t *Table) (out *Table) {
	if t == nil || len(t.Rows) == 0 {
		return t
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("table", t.Name).Msg("ratio column normalization failed")
			out = t
		}
	}()

	for _, row := range t.Rows {
		if len(row) != len(t.Columns) {
			log.Warn().Str("table", t.Name).Int("columns", len(t.Columns)).Int("cells", len(row)).
				Msg("ratio table is malformed, keeping original columns")
			return t
		}
	}

	out = t.Clone()
	out.MultiLevel = false
	for i, c := range t.Columns {
		out.Columns[i] = Column{Metric: normalizeLabel(c, t.MultiLevel)}
	}
	return out
}

func normalizeLabel(c Column, multiLevel bool) string {
	if !multiLevel {
		return sanitizeMetric(c.Metric)
	}
	if c.Category == MetaCategory {
		return c.Metric
	}
	return sanitizeCategory(c.Category) + "_" + sanitizeMetric(c.Metric)
}

func sanitizeCategory(s string) string {
	s = spacesToUnderscore(s)
	return strings.ReplaceAll(s, "-", "_")
}

var metricReplacer = strings.NewReplacer(
	"(", "",
	")", "",
	"%", "Pct",
	".", "",
	"/", "_to_",
)

func sanitizeMetric(s string) string {
	return metricReplacer.Replace(spacesToUnderscore(s))
}

func spacesToUnderscore(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
}
