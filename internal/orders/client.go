// Package orders provides a typed client for the order-management backend
// that holds draft orders and the product catalog (variants, specs, tags).
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"salesops_backend/platform/apperr"
	"salesops_backend/platform/config"
)

const (
	httpHeaderContentType     = "Content-Type"
	httpHeaderAccept          = "Accept"
	httpHeaderAuthorization   = "Authorization"
	mimeApplicationJSON       = "application/json"
	authorizationBearerPrefix = "Bearer "
)

// Variant is a sellable product variant. Tags is the raw comma-delimited tag
// string as the order system stores it.
type Variant struct {
	SKU   string `json:"sku"`
	Title string `json:"title"`
	Price string `json:"price"`
	Tags  string `json:"tags"`
}

// ProductSpec carries the physical attributes needed for freight quoting plus
// the long-form description used for marketing copy.
type ProductSpec struct {
	SKU           string  `json:"sku"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	ImageURL      string  `json:"imageUrl"`
	WeightLbs     float64 `json:"weightLbs"`
	LengthIn      float64 `json:"lengthIn"`
	WidthIn       float64 `json:"widthIn"`
	HeightIn      float64 `json:"heightIn"`
	FreightClass  string  `json:"freightClass"`
	CommodityCode string  `json:"commodityCode"`
}

// DraftOrderItem is one line pushed onto a draft order.
type DraftOrderItem struct {
	SKU             string  `json:"sku"`
	Title           string  `json:"title"`
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	DiscountPercent float64 `json:"discountPercent"`
}

// ShippingLine is the resolved shipping cost attached to a draft order. A nil
// shipping line leaves the order system's own shipping in place.
type ShippingLine struct {
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

// Client talks to the order-system REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an order-system client from configuration.
func NewClient(cfg config.OrdersConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.GetOrdersBaseURL(), "/"),
		token:      cfg.GetOrdersAccessToken(),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

type updateDraftOrderBody struct {
	LineItems    []DraftOrderItem `json:"lineItems"`
	ShippingLine *ShippingLine    `json:"shippingLine,omitempty"`
}

// UpdateDraftOrder replaces the draft order's line items and, when present,
// its shipping line.
func (c *Client) UpdateDraftOrder(ctx context.Context, draftOrderID string, items []DraftOrderItem, shipping *ShippingLine) error {
	body := updateDraftOrderBody{LineItems: items, ShippingLine: shipping}
	endpoint := fmt.Sprintf("%s/admin/draft_orders/%s", c.baseURL, draftOrderID)
	return c.do(ctx, http.MethodPut, endpoint, body, nil, "draft order update failed")
}

// FetchVariant looks up a variant (including its tag string) by SKU.
func (c *Client) FetchVariant(ctx context.Context, sku string) (*Variant, error) {
	endpoint := fmt.Sprintf("%s/admin/variants?sku=%s", c.baseURL, url.QueryEscape(sku))
	var parsed struct {
		Variants []Variant `json:"variants"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &parsed, "variant lookup failed"); err != nil {
		return nil, err
	}
	if len(parsed.Variants) == 0 {
		return nil, apperr.NotFound(fmt.Sprintf("no variant found for sku %q", sku))
	}
	return &parsed.Variants[0], nil
}

// SearchProducts resolves the full product spec for a SKU, including
// description, image and freight attributes.
func (c *Client) SearchProducts(ctx context.Context, sku string) (*ProductSpec, error) {
	endpoint := fmt.Sprintf("%s/admin/products/search?sku=%s", c.baseURL, url.QueryEscape(sku))
	var parsed struct {
		Products []ProductSpec `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &parsed, "product search failed"); err != nil {
		return nil, err
	}
	if len(parsed.Products) == 0 {
		return nil, apperr.NotFound(fmt.Sprintf("no product found for sku %q", sku))
	}
	return &parsed.Products[0], nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any, failureMsg string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal orders request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build orders request: %w", err)
	}
	req.Header.Set(httpHeaderAuthorization, authorizationBearerPrefix+c.token)
	req.Header.Set(httpHeaderAccept, mimeApplicationJSON)
	if body != nil {
		req.Header.Set(httpHeaderContentType, mimeApplicationJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Upstream(failureMsg, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		details := strings.TrimSpace(string(respBody))
		if details == "" {
			return apperr.Upstream(failureMsg, nil)
		}
		return apperr.Upstream(fmt.Sprintf("%s: %s", failureMsg, details), nil)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode orders response: %w", err)
		}
	}
	return nil
}
