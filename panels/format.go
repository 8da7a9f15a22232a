package panels

import (
	"fmt"
	"sort"
	"strings"
)

// writeTable writes rows as a pipe table. Missing cells print as "—".
func writeTable(b *strings.Builder, columns []string, rows []map[string]any) {
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString("\n")
	seps := make([]string, len(columns))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString(strings.Join(seps, "|"))
	b.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cell(row[col])
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "—"
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%.3f", x)
	case string:
		if x == "" {
			return "—"
		}
		return x
	default:
		return fmt.Sprint(x)
	}
}

func optFloat(v *float64, format string) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf(format, *v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
