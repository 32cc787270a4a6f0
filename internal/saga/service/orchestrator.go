package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salesops_backend/internal/crm"
	"salesops_backend/internal/events"
	"salesops_backend/internal/freight"
	"salesops_backend/internal/orders"
	"salesops_backend/internal/saga/repository"
	"salesops_backend/internal/saga/stream"
	"salesops_backend/internal/saga/transport"
	"salesops_backend/platform/apperr"

	"github.com/google/uuid"
)

// state is the orchestrator's position in the fixed step sequence.
type state string

const (
	stateInit              state = "INIT"
	stateStatusDrafted     state = "STATUS_DRAFTED"
	stateLineItemsSynced   state = "LINE_ITEMS_SYNCED"
	stateContentGenerated  state = "CONTENT_GENERATED"
	stateShippingResolved  state = "SHIPPING_RESOLVED"
	stateDraftOrderUpdated state = "DRAFT_ORDER_UPDATED"
	stateApproved          state = "APPROVED"
	stateComplete          state = "COMPLETE"
)

// Step labels shown to the agent while the run progresses. Percentages are
// hardcoded per step so values within one run are non-decreasing by
// construction.
const (
	stepStatusDraft      = "Updating quote status"
	stepFetchLineItems   = "Collecting deal line items"
	stepSyncLineItems    = "Syncing quote line items"
	stepSelectSchematic  = "Selecting schematic"
	stepFetchDescription = "Fetching product description"
	stepGenerateCopy     = "Generating marketing copy"
	stepResolveShipping  = "Resolving shipping cost"
	stepUpdateDraftOrder = "Updating draft order"
	stepApproveQuote     = "Approving quote"
	stepDone             = "Finishing up"
)

const (
	pctStatusDrafted     = 5
	pctLineItemsFetched  = 25
	pctLineItemsSynced   = 35
	pctSchematicSelected = 40
	pctDescriptionFetched = 50
	pctCopyGenerated     = 60
	pctShippingResolved  = 75
	pctDraftOrderUpdated = 85
	pctApproved          = 95
	pctDone              = 100
)

const quoteLockKeyPrefix = "saga:quote:"

// Run executes one saga invocation. All outcomes are communicated through the
// sink: a sequence of progress events followed by exactly one terminal event.
// Steps run strictly sequentially; the first terminal failure short-circuits
// everything that remains. Nothing is retried and nothing is compensated.
func (s *Service) Run(ctx context.Context, req transport.FinalizeRequest, sink stream.Sink) {
	runID := uuid.New()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, quoteLockKeyPrefix+req.QuoteID)
		if err != nil {
			s.terminate(ctx, req, sink, nil, "acquire quote lock", err)
			return
		}
		defer release()
	}

	s.recordStart(ctx, runID, req)

	if failedStep, err := s.execute(ctx, req, sink); err != nil {
		s.terminate(ctx, req, sink, &runID, failedStep, err)
		return
	}

	s.recordFinish(ctx, runID, repository.RunStateComplete, nil, nil)
	if s.bus != nil {
		s.bus.Publish(ctx, events.QuoteFinalized{
			BaseEvent: events.NewBaseEvent(),
			QuoteID:   req.QuoteID,
			DealID:    req.DealID,
			ContactID: req.ContactID,
			QuoteURL:  req.QuoteLink,
		})
	}
}

// execute walks the fixed step sequence. On failure it returns the label of
// the step that failed; the caller owns the terminal error event.
func (s *Service) execute(ctx context.Context, req transport.FinalizeRequest, sink stream.Sink) (string, error) {
	cur := stateInit

	// Step 1: draft status is the idempotent precondition for edits.
	if err := s.crm.SetQuoteStatus(ctx, req.QuoteID, crm.StatusDraft); err != nil {
		return stepStatusDraft, err
	}
	cur = stateStatusDrafted
	s.progress(req, sink, cur, stepStatusDraft, pctStatusDrafted)

	// Step 2: the deal's current line items are the authoritative new set.
	items, err := s.crm.ListLineItems(ctx, req.DealID)
	if err != nil {
		return stepFetchLineItems, err
	}
	s.warnOnDealMismatch(items, req.DealID)
	s.progress(req, sink, cur, stepFetchLineItems, pctLineItemsFetched)

	if err := s.reconcileLineItems(ctx, req.QuoteID, req.PriorLineItemIDs, items); err != nil {
		return stepSyncLineItems, err
	}
	cur = stateLineItemsSynced
	s.progress(req, sink, cur, stepSyncLineItems, pctLineItemsSynced)

	// Step 3: content generation only when the main product changed.
	if s.contentGenerationDue(req) {
		content, err := s.generateMainProductContent(ctx, req, sink)
		if err != nil {
			return stepGenerateCopy, err
		}
		if err := s.crm.PatchProperties(ctx, req.DealID, content.dealProperties(req.MainProductSKU)); err != nil {
			return stepGenerateCopy, err
		}
		cur = stateContentGenerated
	}

	// Steps 4 and 5 work from the caller's submitted items, not the CRM set
	// fetched in step 2: commodity quantities come from the submission, and
	// after reconciliation the two sets describe the same quote anyway.

	// Step 4: shipping failures degrade to "no rate" and never abort the run.
	rates := s.resolveShippingRates(ctx, req)
	cur = stateShippingResolved
	s.progress(req, sink, cur, stepResolveShipping, pctShippingResolved)

	// Step 5
	if err := s.orders.UpdateDraftOrder(ctx, req.DraftOrderID, draftOrderItems(req.LineItems), shippingLine(rates)); err != nil {
		return stepUpdateDraftOrder, err
	}
	cur = stateDraftOrderUpdated
	s.progress(req, sink, cur, stepUpdateDraftOrder, pctDraftOrderUpdated)

	// Step 6
	if err := s.crm.SetQuoteStatus(ctx, req.QuoteID, crm.StatusApproved); err != nil {
		return stepApproveQuote, err
	}
	cur = stateApproved
	s.progress(req, sink, cur, stepApproveQuote, pctApproved)

	// Step 7
	cur = stateComplete
	s.progress(req, sink, cur, stepDone, pctDone)
	sink.Complete(req.QuoteLink, contactRedirect(req))
	return "", nil
}

// contentGenerationDue reports whether the optional content step applies:
// never for quote edits, and only when the caller's main SKU differs from the
// deal's previously recorded one.
func (s *Service) contentGenerationDue(req transport.FinalizeRequest) bool {
	if req.Flow == transport.FlowEditQuote {
		return false
	}
	if req.MainProductSKU == "" {
		return false
	}
	return req.MainProductSKU != req.PreviousMainProductSKU
}

func (s *Service) progress(req transport.FinalizeRequest, sink stream.Sink, cur state, step string, pct int) {
	sink.Progress(step, pct)
	s.log.SagaStep(req.QuoteID, step, pct)
	s.log.Debug("saga state advanced", "quote_id", req.QuoteID, "state", string(cur))
}

// terminate emits the single error event, records the run outcome when a run
// record exists, and publishes the failure for cache invalidation.
func (s *Service) terminate(ctx context.Context, req transport.FinalizeRequest, sink stream.Sink, runID *uuid.UUID, failedStep string, err error) {
	kind := apperr.GetKind(err)
	if kind == apperr.KindUnknown {
		kind = apperr.KindInternal
	}
	message := errorMessage(err)

	sink.Fail(kind.String(), message)
	s.log.SagaFailed(req.QuoteID, failedStep, err)

	if runID != nil {
		kindStr := kind.String()
		s.recordFinish(ctx, *runID, repository.RunStateError, &kindStr, &message)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.QuoteSagaFailed{
			BaseEvent: events.NewBaseEvent(),
			QuoteID:   req.QuoteID,
			DealID:    req.DealID,
			ContactID: req.ContactID,
			Kind:      kind.String(),
			Message:   message,
		})
	}
}

func (s *Service) recordStart(ctx context.Context, runID uuid.UUID, req transport.FinalizeRequest) {
	if s.runs == nil {
		return
	}
	err := s.runs.InsertRun(ctx, repository.Run{
		ID:        runID,
		QuoteID:   req.QuoteID,
		DealID:    req.DealID,
		ContactID: req.ContactID,
		Flow:      string(req.Flow),
		State:     repository.RunStateRunning,
		StartedAt: time.Now(),
	})
	if err != nil {
		s.log.DatabaseError("insert saga run", err)
	}
}

func (s *Service) recordFinish(ctx context.Context, runID uuid.UUID, runState string, errorKind, errorMessage *string) {
	if s.runs == nil {
		return
	}
	// The request context may already be canceled when the client is gone.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.runs.FinishRun(finishCtx, runID, runState, errorKind, errorMessage); err != nil {
		s.log.DatabaseError("finish saga run", err)
	}
}

func errorMessage(err error) string {
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

func draftOrderItems(items []transport.LineItemInput) []orders.DraftOrderItem {
	out := make([]orders.DraftOrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, orders.DraftOrderItem{
			SKU:             item.SKU,
			Title:           item.Name,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
		})
	}
	return out
}

func shippingLine(rates []freight.Rate) *orders.ShippingLine {
	if len(rates) == 0 {
		return nil
	}
	return &orders.ShippingLine{
		Title: rates[0].CarrierSCAC,
		Price: rates[0].CostLoaded,
	}
}

func contactRedirect(req transport.FinalizeRequest) string {
	return fmt.Sprintf("/contacts/%s?deal=%s", req.ContactID, req.DealID)
}
