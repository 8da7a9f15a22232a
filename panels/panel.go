// Package panels renders the dashboard's data panels on top of the data-access layer
package panels

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/briangreenhill/mldash/dashapi"
	"github.com/briangreenhill/mldash/internal/metrics"
)

// ErrUnknownPanel is returned when no panel is registered under a name
var ErrUnknownPanel = errors.New("unknown panel")

// MsgGenericFailure is shown for failures that were never classified
const MsgGenericFailure = "Something went wrong while loading this panel."

// Panel is one independently rendered section of the dashboard
type Panel interface {
	// Name returns the panel name (e.g., "home", "dataset")
	Name() string

	// Render produces the panel's text. fresh bypasses the request cache.
	Render(ctx context.Context, fresh bool) (string, error)
}

// Source is the part of the data-access layer panels read from
type Source interface {
	ModelInfo(ctx context.Context) (*dashapi.ModelInfo, error)
	DVCInfo(ctx context.Context, useCache bool) (*dashapi.DVCInfo, error)
	Dataset(ctx context.Context, q dashapi.DatasetQuery, useCache bool) (*dashapi.DatasetPage, error)
	FeatureStoreConfig(ctx context.Context, useCache bool) (*dashapi.FeatureStoreConfig, error)
	FeatureStoreViews(ctx context.Context, useCache bool) (*dashapi.FeatureViews, error)
	FeatureStoreData(ctx context.Context, page, pageSize int, useCache bool) (*dashapi.DatasetPage, error)
	AnalyticsStats(ctx context.Context, q dashapi.AnalyticsQuery) (*dashapi.AnalyticsStats, error)
}

// Failure is what a panel shows instead of its content. Retry controls the
// "Try Again" action, which re-renders the panel with fresh set.
type Failure struct {
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

// FailureBlock turns a render error into the block shown to the user
func FailureBlock(err error) Failure {
	var ce *dashapi.ClassifiedError
	if errors.As(err, &ce) {
		return Failure{Message: ce.Message, Retry: ce.Recoverable()}
	}
	return Failure{Message: MsgGenericFailure}
}

// Result is the outcome of rendering one panel
type Result struct {
	Name    string   `json:"name"`
	Output  string   `json:"output,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Registry manages the dashboard's panels
type Registry struct {
	mu     sync.RWMutex
	panels map[string]Panel
}

// NewRegistry creates a new panel registry
func NewRegistry() *Registry {
	return &Registry{panels: make(map[string]Panel)}
}

// Register adds a panel, replacing any panel with the same name
func (r *Registry) Register(p Panel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panels[p.Name()] = p
}

// Get retrieves a panel by name
func (r *Registry) Get(name string) (Panel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.panels[name]
	return p, ok
}

// List returns all registered panel names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.panels))
	for name := range r.panels {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Render renders a single panel. A render error is reported as a Failure,
// not as err; err is only ErrUnknownPanel.
func (r *Registry) Render(ctx context.Context, name string, fresh bool) (Result, error) {
	p, ok := r.Get(name)
	if !ok {
		return Result{Name: name}, ErrUnknownPanel
	}
	return render(ctx, p, fresh), nil
}

// RenderAll renders every panel concurrently. Each panel fails on its own;
// results come back in List order.
func (r *Registry) RenderAll(ctx context.Context, fresh bool) []Result {
	names := r.List()
	results := make([]Result, len(names))

	var g errgroup.Group
	for i, name := range names {
		p, ok := r.Get(name)
		if !ok {
			results[i] = Result{Name: name, Failure: &Failure{Message: MsgGenericFailure}}
			continue
		}
		g.Go(func() error {
			results[i] = render(ctx, p, fresh)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func render(ctx context.Context, p Panel, fresh bool) Result {
	out, err := p.Render(ctx, fresh)
	if err != nil {
		f := FailureBlock(err)
		metrics.IncPanelFailure(p.Name(), f.Retry)
		return Result{Name: p.Name(), Failure: &f}
	}
	return Result{Name: p.Name(), Output: out}
}

// Defaults registers the standard dashboard panels backed by src
func Defaults(src Source) *Registry {
	r := NewRegistry()
	r.Register(NewHome(src))
	r.Register(NewDataset(src, dashapi.DatasetQuery{Page: 1, PageSize: 20}))
	r.Register(NewFeatureStore(src, 10))
	r.Register(NewAnalytics(src, dashapi.AnalyticsQuery{}))
	return r
}
