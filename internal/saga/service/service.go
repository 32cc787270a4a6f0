// Package service implements the quote finalization/update saga: one fixed
// step sequence shared by all deal flows, with branch decisions and failure
// handling owned by the orchestrator.
package service

import (
	"context"

	"salesops_backend/internal/copywriter"
	"salesops_backend/internal/crm"
	"salesops_backend/internal/events"
	"salesops_backend/internal/freight"
	"salesops_backend/internal/orders"
	"salesops_backend/internal/saga/repository"
	"salesops_backend/internal/saga/transport"
	"salesops_backend/internal/storage"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

// CRM is the subset of the CRM client the saga uses.
type CRM interface {
	SetQuoteStatus(ctx context.Context, quoteID string, status crm.QuoteStatus) error
	PatchProperties(ctx context.Context, dealID string, props map[string]string) error
	ListLineItems(ctx context.Context, dealID string) ([]crm.LineItem, error)
	ReplaceLineItems(ctx context.Context, quoteID string, removeIDs []string, add []crm.LineItem) error
}

// Orders is the subset of the order-system client the saga uses.
type Orders interface {
	UpdateDraftOrder(ctx context.Context, draftOrderID string, items []orders.DraftOrderItem, shipping *orders.ShippingLine) error
	FetchVariant(ctx context.Context, sku string) (*orders.Variant, error)
	SearchProducts(ctx context.Context, sku string) (*orders.ProductSpec, error)
}

// Freight quotes carrier rates for computed shipping.
type Freight interface {
	QuoteRates(ctx context.Context, rateReq freight.RateRequest) ([]freight.Rate, error)
}

// Copywriter generates slogan and description text for the main product.
type Copywriter interface {
	Describe(ctx context.Context, productName, productDescription string) (*copywriter.Copy, error)
}

// Locker serializes concurrent runs against one quote.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// RunStore persists the run audit log.
type RunStore interface {
	InsertRun(ctx context.Context, run repository.Run) error
	FinishRun(ctx context.Context, id uuid.UUID, state string, errorKind, errorMessage *string) error
	ListRunsByDeal(ctx context.Context, dealID string, limit int) ([]repository.Run, error)
}

// Service owns the saga pipeline. All state is request-scoped; the service
// itself holds only collaborators and is safe for concurrent use.
type Service struct {
	crm     CRM
	orders  Orders
	freight Freight
	log     *logger.Logger

	copywriter      Copywriter
	assets          storage.Service
	schematicBucket string
	locker          Locker
	runs            RunStore
	bus             events.Bus
}

// New creates the saga service with its required collaborators. Optional
// collaborators (copywriter, asset store, locker, run store, event bus) are
// injected with setters from the composition root.
func New(crmClient CRM, ordersClient Orders, freightClient Freight, log *logger.Logger) *Service {
	return &Service{
		crm:     crmClient,
		orders:  ordersClient,
		freight: freightClient,
		log:     log,
	}
}

// SetCopywriter wires the text-generation collaborator. Without it, content
// generation fails as a validation error when a flow requires it.
func (s *Service) SetCopywriter(gen Copywriter) {
	s.copywriter = gen
}

// SetAssetStore wires object storage for schematic assets.
func (s *Service) SetAssetStore(svc storage.Service, bucket string) {
	s.assets = svc
	s.schematicBucket = bucket
}

// SetLocker wires the per-quote advisory lock.
func (s *Service) SetLocker(locker Locker) {
	s.locker = locker
}

// SetRunStore wires the run audit log.
func (s *Service) SetRunStore(runs RunStore) {
	s.runs = runs
}

// SetEventBus wires the domain event bus used for cache invalidation.
func (s *Service) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// ListRuns returns the persisted run history for a deal.
func (s *Service) ListRuns(ctx context.Context, dealID string, limit int) (*transport.ListRunsResponse, error) {
	if s.runs == nil {
		return &transport.ListRunsResponse{Runs: []transport.RunResponse{}}, nil
	}

	runs, err := s.runs.ListRunsByDeal(ctx, dealID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]transport.RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, transport.RunResponse{
			ID:           run.ID.String(),
			QuoteID:      run.QuoteID,
			DealID:       run.DealID,
			Flow:         run.Flow,
			State:        run.State,
			ErrorKind:    run.ErrorKind,
			ErrorMessage: run.ErrorMessage,
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
		})
	}
	return &transport.ListRunsResponse{Runs: out}, nil
}
