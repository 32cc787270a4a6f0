// Package transport defines the request/response contracts for the quote
// finalization saga endpoint.
package transport

import "time"

// Flow selects which deal flow the saga runs for. The three flows share one
// orchestrator; the variant only controls which optional steps apply.
type Flow string

const (
	// FlowCompleteSystem finalizes a full-system quote (content generation applies).
	FlowCompleteSystem Flow = "complete-system"
	// FlowSingleProduct finalizes a single-product quote (content generation applies).
	FlowSingleProduct Flow = "single-product"
	// FlowEditQuote re-publishes an already finalized quote after edits
	// (content generation never runs).
	FlowEditQuote Flow = "edit-quote"
)

// LineItemInput is one line item supplied fresh on every invocation.
type LineItemInput struct {
	ID              string  `json:"id"`
	SKU             string  `json:"sku" validate:"required"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity" validate:"required,min=1"`
	DiscountPercent float64 `json:"discountPercent" validate:"min=0,max=100"`
	UnitPrice       float64 `json:"unitPrice" validate:"min=0"`
	ProductID       *string `json:"productId,omitempty"`
	IsMain          bool    `json:"isMain"`
}

// FinalizeRequest is the single input to one saga invocation.
type FinalizeRequest struct {
	Flow                   Flow            `json:"flow" validate:"required,oneof=complete-system single-product edit-quote"`
	DealID                 string          `json:"dealId" validate:"required"`
	ContactID              string          `json:"contactId" validate:"required"`
	QuoteID                string          `json:"quoteId" validate:"required"`
	QuoteLink              string          `json:"quoteLink" validate:"required,url"`
	DraftOrderID           string          `json:"draftOrderId" validate:"required"`
	PriorLineItemIDs       []string        `json:"priorLineItemIds"`
	LineItems              []LineItemInput `json:"lineItems" validate:"required,min=1,dive"`
	MainProductSKU         string          `json:"mainProductSku"`
	PreviousMainProductSKU string          `json:"previousMainProductSku"`
	Country                string          `json:"country" validate:"required"`
	PostalCode             string          `json:"postalCode"`
	City                   string          `json:"city"`
	State                  string          `json:"state"`
}

// MainLineItem returns the line item flagged as main, or nil when none is.
func (r FinalizeRequest) MainLineItem() *LineItemInput {
	for i := range r.LineItems {
		if r.LineItems[i].IsMain {
			return &r.LineItems[i]
		}
	}
	return nil
}

// RunResponse is one persisted saga run in the run history listing.
type RunResponse struct {
	ID           string     `json:"id"`
	QuoteID      string     `json:"quoteId"`
	DealID       string     `json:"dealId"`
	Flow         string     `json:"flow"`
	State        string     `json:"state"`
	ErrorKind    *string    `json:"errorKind,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// ListRunsResponse wraps the run history listing.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}
