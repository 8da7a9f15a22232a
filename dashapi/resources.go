package dashapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/briangreenhill/mldash/cache"
)

// Cached endpoints
const (
	EndpointDataset            = "/api/dataset"
	EndpointDVCInfo            = "/api/dvc-info"
	EndpointFeatureStoreConfig = "/api/feature-store/config"
	EndpointFeatureStoreViews  = "/api/feature-store/views"
	EndpointFeatureStoreData   = "/api/feature-store/data"
)

const (
	DefaultPageSize = 50
	SortAsc         = "asc"
	SortDesc        = "desc"
)

// DatasetQuery selects a page of the raw dataset. Filters map a column name to
// either an exact value or a "lo:hi" range, with either bound optional.
type DatasetQuery struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Filters   map[string]string
}

func (q DatasetQuery) params() map[string]string {
	p := pageParams(q.Page, q.PageSize)
	if q.SortBy != "" {
		p["sort_by"] = q.SortBy
		order := q.SortOrder
		if order != SortDesc {
			order = SortAsc
		}
		p["sort_order"] = order
	}
	for col, v := range q.Filters {
		if v != "" {
			p["filter_"+col] = v
		}
	}
	return p
}

func pageParams(page, pageSize int) map[string]string {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return map[string]string{
		"page":     strconv.Itoa(page),
		"pageSize": strconv.Itoa(pageSize),
	}
}

// Dataset returns one page of the raw dataset
func (c *Client) Dataset(ctx context.Context, q DatasetQuery, useCache bool) (*DatasetPage, error) {
	return getCached[DatasetPage](ctx, c, EndpointDataset, q.params(), useCache)
}

// DVCInfo returns the data-versioning state of the dataset
func (c *Client) DVCInfo(ctx context.Context, useCache bool) (*DVCInfo, error) {
	return getCached[DVCInfo](ctx, c, EndpointDVCInfo, nil, useCache)
}

func (c *Client) FeatureStoreConfig(ctx context.Context, useCache bool) (*FeatureStoreConfig, error) {
	return getCached[FeatureStoreConfig](ctx, c, EndpointFeatureStoreConfig, nil, useCache)
}

func (c *Client) FeatureStoreViews(ctx context.Context, useCache bool) (*FeatureViews, error) {
	return getCached[FeatureViews](ctx, c, EndpointFeatureStoreViews, nil, useCache)
}

// FeatureStoreData returns one page of materialized features
func (c *Client) FeatureStoreData(ctx context.Context, page, pageSize int, useCache bool) (*DatasetPage, error) {
	return getCached[DatasetPage](ctx, c, EndpointFeatureStoreData, pageParams(page, pageSize), useCache)
}

// getCached serves a GET from the cache when allowed and fresh, otherwise
// fetches it and refreshes the cache entry. Failures are never cached.
func getCached[T any](ctx context.Context, c *Client, endpoint string, params map[string]string, useCache bool) (*T, error) {
	key := cache.KeyFor(endpoint, params)

	if useCache {
		if raw, ok := c.cache.Get(key); ok {
			c.logger.Debug().Str("key", key).Msg("cache hit")
			return decode[T](key, raw)
		}
	}

	epoch := c.cache.Epoch()
	raw, err := c.do(ctx, request{method: http.MethodGet, path: key, retry: true})
	if err != nil {
		return nil, err
	}
	out, err := decode[T](key, raw)
	if err != nil {
		return nil, err
	}
	if !c.cache.SetIfCurrent(key, raw, epoch) {
		c.logger.Debug().Str("key", key).Msg("cache invalidated while fetching, not stored")
	}
	return out, nil
}
