package panels

import (
	"context"
	"fmt"
	"strings"

	"github.com/briangreenhill/mldash/dashapi"
)

// Analytics summarizes per-feature drift between the reference and current
// windows
type Analytics struct {
	src   Source
	query dashapi.AnalyticsQuery
}

func NewAnalytics(src Source, q dashapi.AnalyticsQuery) *Analytics {
	return &Analytics{src: src, query: q}
}

func (a *Analytics) Name() string {
	return "analytics"
}

// Render ignores fresh; analytics are never cached.
func (a *Analytics) Render(ctx context.Context, _ bool) (string, error) {
	stats, err := a.src.AnalyticsStats(ctx, a.query)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## Drift\n")
	fmt.Fprintf(&b, "Split: %s (%d before, %d after, %d total)\n\n",
		stats.SplitLabel, stats.BeforeCount, stats.AfterCount, stats.TotalRows)

	b.WriteString("Feature | KS | p-value | PSI | Drifted\n")
	b.WriteString("---|---|---|---|---\n")
	drifted := 0
	for _, name := range sortedKeys(stats.Features) {
		d := stats.Features[name].Drift
		mark := "no"
		if d.Drifted {
			mark = "YES"
			drifted++
		}
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s\n", name,
			optFloat(d.KSStatistic, "%.3f"),
			optFloat(d.KSPValue, "%.4f"),
			optFloat(d.PSI, "%.3f"),
			mark,
		)
	}
	fmt.Fprintf(&b, "\n%d of %d features drifted\n", drifted, len(stats.Features))
	return b.String(), nil
}
