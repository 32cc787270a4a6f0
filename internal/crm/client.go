// Package crm provides a typed client for the CRM platform that owns deals,
// contacts, quotes and their line items.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
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

// QuoteStatus is the external status of a quote.
type QuoteStatus string

const (
	// StatusDraft marks a quote as editable.
	StatusDraft QuoteStatus = "DRAFT"
	// StatusApproved marks a quote as published.
	StatusApproved QuoteStatus = "APPROVED"
)

// LineItem is a quote/deal line item as the CRM stores it.
type LineItem struct {
	ID              string  `json:"id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	DiscountPercent float64 `json:"discountPercent"`
	UnitPrice       float64 `json:"unitPrice"`
	ProductID       *string `json:"productId,omitempty"`
	DealID          string  `json:"dealId"`
}

// Client talks to the CRM REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a CRM client from configuration.
func NewClient(cfg config.CRMConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		token:      cfg.GetCRMAccessToken(),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// SetQuoteStatus transitions the quote's external status.
func (c *Client) SetQuoteStatus(ctx context.Context, quoteID string, status QuoteStatus) error {
	body := map[string]any{
		"properties": map[string]string{"status": string(status)},
	}
	endpoint := fmt.Sprintf("%s/crm/v3/quotes/%s", c.baseURL, quoteID)
	return c.do(ctx, http.MethodPatch, endpoint, body, nil, "quote status update failed")
}

// PatchProperties updates arbitrary properties on a deal.
func (c *Client) PatchProperties(ctx context.Context, dealID string, props map[string]string) error {
	body := map[string]any{"properties": props}
	endpoint := fmt.Sprintf("%s/crm/v3/deals/%s", c.baseURL, dealID)
	return c.do(ctx, http.MethodPatch, endpoint, body, nil, "deal property update failed")
}

type listLineItemsResponse struct {
	Results []LineItem `json:"results"`
}

// ListLineItems returns the line items currently associated with a deal.
func (c *Client) ListLineItems(ctx context.Context, dealID string) ([]LineItem, error) {
	endpoint := fmt.Sprintf("%s/crm/v3/deals/%s/line-items", c.baseURL, dealID)
	var parsed listLineItemsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &parsed, "line item listing failed"); err != nil {
		return nil, err
	}
	return parsed.Results, nil
}

type replaceLineItemsBody struct {
	Remove []string   `json:"remove"`
	Add    []LineItem `json:"add"`
}

// ReplaceLineItems detaches the removed ids from the quote and attaches the
// new items in one call.
func (c *Client) ReplaceLineItems(ctx context.Context, quoteID string, removeIDs []string, add []LineItem) error {
	if removeIDs == nil {
		removeIDs = []string{}
	}
	body := replaceLineItemsBody{Remove: removeIDs, Add: add}
	endpoint := fmt.Sprintf("%s/crm/v3/quotes/%s/line-items:replace", c.baseURL, quoteID)
	return c.do(ctx, http.MethodPost, endpoint, body, nil, "line item replacement failed")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any, failureMsg string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal crm request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
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
			return fmt.Errorf("decode crm response: %w", err)
		}
	}
	return nil
}
