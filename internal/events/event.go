// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"salesops_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Quote Saga Domain Events
// =============================================================================

// QuoteFinalized is published when a finalize/update run completes. The
// surrounding application invalidates cached views of the contact, deal and
// quote in response.
type QuoteFinalized struct {
	BaseEvent
	QuoteID   string `json:"quoteId"`
	DealID    string `json:"dealId"`
	ContactID string `json:"contactId"`
	QuoteURL  string `json:"quoteUrl"`
}

func (e QuoteFinalized) EventName() string { return "saga.quote.finalized" }

// QuoteSagaFailed is published when a run terminates with an error event.
type QuoteSagaFailed struct {
	BaseEvent
	QuoteID   string `json:"quoteId"`
	DealID    string `json:"dealId"`
	ContactID string `json:"contactId"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

func (e QuoteSagaFailed) EventName() string { return "saga.quote.failed" }
