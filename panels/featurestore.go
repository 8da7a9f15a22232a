package panels

import (
	"context"
	"fmt"
	"strings"
)

// FeatureStore shows the feature store configuration, its views and a sample
// of materialized rows
type FeatureStore struct {
	src      Source
	pageSize int
}

func NewFeatureStore(src Source, pageSize int) *FeatureStore {
	return &FeatureStore{src: src, pageSize: pageSize}
}

func (f *FeatureStore) Name() string {
	return "feature-store"
}

func (f *FeatureStore) Render(ctx context.Context, fresh bool) (string, error) {
	cfg, err := f.src.FeatureStoreConfig(ctx, !fresh)
	if err != nil {
		return "", err
	}
	views, err := f.src.FeatureStoreViews(ctx, !fresh)
	if err != nil {
		return "", err
	}
	data, err := f.src.FeatureStoreData(ctx, 1, f.pageSize, !fresh)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Feature store: %s\n", cfg.Project)
	fmt.Fprintf(&b, "Provider: %s\n", cfg.Provider)
	if t, ok := cfg.OnlineStore["type"]; ok {
		fmt.Fprintf(&b, "Online store: %v\n", t)
	}
	if t, ok := cfg.OfflineStore["type"]; ok {
		fmt.Fprintf(&b, "Offline store: %v\n", t)
	}

	b.WriteString("\n### Views\n")
	for _, v := range views.Views {
		fmt.Fprintf(&b, "- %s [%s] ttl=%s, %d fields\n", v.Name, strings.Join(v.Entities, ", "), v.TTL, len(v.Fields))
	}

	fmt.Fprintf(&b, "\n### Materialized rows (%d total)\n", data.Total)
	if len(data.Data) == 0 {
		b.WriteString("Nothing materialized yet\n")
		return b.String(), nil
	}
	writeTable(&b, data.Columns, data.Data)
	return b.String(), nil
}
