package stock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/pkg/httpclient"
)

const serviceName = "inventory"

type checkItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type checkRequest struct {
	Items []checkItem `json:"items"`
}

type checkResult struct {
	VariantID string `json:"variant_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	InStock   bool   `json:"in_stock"`
}

type checkResponse struct {
	Items        []checkResult `json:"items"`
	AllAvailable bool          `json:"all_available"`
}

// Client reads stock levels from the inventory service.
type Client struct {
	http    httpclient.Doer
	baseURL string
}

// NewClient creates a stock client for the inventory service at baseURL.
func NewClient(doer httpclient.Doer, baseURL string) *Client {
	return &Client{http: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

// Available returns the count the inventory service can supply for v.
func (c *Client) Available(ctx context.Context, v *domain.Variant) (int, error) {
	body, err := json.Marshal(checkRequest{Items: []checkItem{{
		ProductID: v.ProductID,
		VariantID: v.ID,
		Quantity:  1,
	}}})
	if err != nil {
		return 0, fmt.Errorf("marshal stock check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/inventory/check", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create stock check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("call inventory service: %w", err)
	}

	var out checkResponse
	if err := httpclient.DecodeData(resp, serviceName, &out); err != nil {
		return 0, err
	}

	for _, item := range out.Items {
		if item.VariantID == v.ID {
			return item.Available, nil
		}
	}
	return 0, nil
}
