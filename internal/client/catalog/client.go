package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/repository"
	"github.com/prakyath/spree-commerse/pkg/httpclient"
)

const serviceName = "catalog"

// Client loads variants from the catalog service through a read-through
// cache. Soft-deleted variants are returned so existing line items keep
// resolving their variant.
type Client struct {
	http    httpclient.Doer
	baseURL string
	cache   repository.VariantCache
	logger  *slog.Logger
}

// NewClient creates a catalog client. cache may be nil.
func NewClient(doer httpclient.Doer, baseURL string, cache repository.VariantCache, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache,
		logger:  logger,
	}
}

// Variant returns the variant with the given id.
func (c *Client) Variant(ctx context.Context, id string) (*domain.Variant, error) {
	if c.cache != nil {
		v, err := c.cache.Get(ctx, id)
		if err != nil {
			c.logger.WarnContext(ctx, "variant cache read failed",
				slog.String("variant_id", id),
				slog.String("error", err.Error()),
			)
		}
		if v != nil {
			return v, nil
		}
	}

	v, err := c.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, v); err != nil {
			c.logger.WarnContext(ctx, "variant cache write failed",
				slog.String("variant_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return v, nil
}

func (c *Client) fetch(ctx context.Context, id string) (*domain.Variant, error) {
	endpoint := fmt.Sprintf("%s/api/v1/variants/%s?include_deleted=true", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create variant request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call catalog service: %w", err)
	}

	var v domain.Variant
	if err := httpclient.DecodeData(resp, serviceName, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
