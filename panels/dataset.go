package panels

import (
	"context"
	"fmt"
	"strings"

	"github.com/briangreenhill/mldash/dashapi"
)

// Dataset shows one page of the raw training dataset
type Dataset struct {
	src   Source
	query dashapi.DatasetQuery
}

func NewDataset(src Source, q dashapi.DatasetQuery) *Dataset {
	return &Dataset{src: src, query: q}
}

func (d *Dataset) Name() string {
	return "dataset"
}

func (d *Dataset) Render(ctx context.Context, fresh bool) (string, error) {
	page, err := d.src.Dataset(ctx, d.query, !fresh)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Dataset (%d rows)\n", page.Total)
	fmt.Fprintf(&b, "Page %d of %d\n\n", page.Page, page.TotalPages)
	if len(page.Data) == 0 {
		b.WriteString("No rows match the current filters\n")
		return b.String(), nil
	}
	writeTable(&b, page.Columns, page.Data)
	return b.String(), nil
}
