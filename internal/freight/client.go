// Package freight provides a typed client for the freight-rate quoting
// provider used for computed (non-free) shipping.
package freight

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

// Address is the destination of a freight quote.
type Address struct {
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
}

// Commodity describes one line item's freight attributes.
type Commodity struct {
	Description   string  `json:"description"`
	WeightLbs     float64 `json:"weight"`
	LengthIn      float64 `json:"length"`
	WidthIn       float64 `json:"width"`
	HeightIn      float64 `json:"height"`
	FreightClass  string  `json:"freightClass"`
	CommodityCode string  `json:"nmfc,omitempty"`
	Quantity      int     `json:"quantity"`
}

// RateRequest is one quote request to the freight provider.
type RateRequest struct {
	ShipDate    string      `json:"shipDate"`
	Destination Address     `json:"destination"`
	Commodities []Commodity `json:"items"`
}

// Rate is a single carrier quote. EstimatedDeliveryDate is nil when the
// carrier does not commit to a delivery estimate.
type Rate struct {
	CarrierSCAC           string     `json:"carrierScac"`
	CostLoaded            float64    `json:"costLoaded"`
	EstimatedDeliveryDate *time.Time `json:"estimatedDeliveryDate,omitempty"`
}

// Client talks to the freight provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a freight client from configuration.
func NewClient(cfg config.FreightConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.GetFreightBaseURL(), "/"),
		apiKey:     cfg.GetFreightAPIKey(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// QuoteRates requests carrier rates for the given shipment.
func (c *Client) QuoteRates(ctx context.Context, rateReq RateRequest) ([]Rate, error) {
	raw, err := json.Marshal(rateReq)
	if err != nil {
		return nil, fmt.Errorf("marshal freight request: %w", err)
	}

	endpoint := c.baseURL + "/v2/rates"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build freight request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream("freight rate request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		details := strings.TrimSpace(string(respBody))
		if details == "" {
			return nil, apperr.Upstream("freight rate request failed", nil)
		}
		return nil, apperr.Upstream(fmt.Sprintf("freight rate request failed: %s", details), nil)
	}

	var parsed struct {
		Rates []Rate `json:"rates"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode freight response: %w", err)
	}
	return parsed.Rates, nil
}
