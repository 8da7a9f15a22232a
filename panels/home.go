package panels

import (
	"context"
	"fmt"
	"strings"
)

// Home summarizes the serving model and the dataset version
type Home struct {
	src Source
}

func NewHome(src Source) *Home {
	return &Home{src: src}
}

func (h *Home) Name() string {
	return "home"
}

func (h *Home) Render(ctx context.Context, fresh bool) (string, error) {
	model, err := h.src.ModelInfo(ctx)
	if err != nil {
		return "", err
	}
	dvc, err := h.src.DVCInfo(ctx, !fresh)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## Model\n")
	if model.Loaded {
		fmt.Fprintf(&b, "Serving: %s v%s", model.ModelName, model.Version)
		if model.Alias != "" {
			fmt.Fprintf(&b, " @%s", model.Alias)
		}
		b.WriteString("\n")
		for _, k := range sortedKeys(model.Tags) {
			fmt.Fprintf(&b, "- %s: %s\n", k, model.Tags[k])
		}
	} else {
		b.WriteString("No model loaded\n")
	}

	b.WriteString("\n## Data version\n")
	if !dvc.Tracked {
		b.WriteString("Dataset is not tracked by DVC\n")
		if dvc.Message != "" {
			fmt.Fprintf(&b, "%s\n", dvc.Message)
		}
		return b.String(), nil
	}
	if dvc.Remote != "" {
		fmt.Fprintf(&b, "Remote: %s\n", dvc.Remote)
	}
	if dvc.Modified {
		b.WriteString("Working copy has uncommitted changes\n")
	}
	for _, f := range dvc.Files {
		fmt.Fprintf(&b, "- %s (%s, %d bytes)\n", f.Path, shortHash(f.MD5), f.Size)
	}
	if len(dvc.Commits) > 0 {
		c := dvc.Commits[0]
		fmt.Fprintf(&b, "Last commit: %s %s %s\n", shortHash(c.Hash), c.Date, c.Message)
	}
	return b.String(), nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
