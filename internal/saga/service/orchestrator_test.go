package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesops_backend/internal/copywriter"
	"salesops_backend/internal/crm"
	"salesops_backend/internal/freight"
	"salesops_backend/internal/orders"
	"salesops_backend/internal/saga/repository"
	"salesops_backend/internal/saga/transport"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeCRM struct {
	statusCalls   []crm.QuoteStatus
	statusErrs    map[crm.QuoteStatus]error
	items         []crm.LineItem
	listErr       error
	replaceRemove []string
	replaceAdd    []crm.LineItem
	replaceCalls  int
	replaceErr    error
	patched       map[string]string
	patchCalls    int
	patchErr      error
}

func (f *fakeCRM) SetQuoteStatus(_ context.Context, _ string, status crm.QuoteStatus) error {
	f.statusCalls = append(f.statusCalls, status)
	if err, ok := f.statusErrs[status]; ok {
		return err
	}
	return nil
}

func (f *fakeCRM) PatchProperties(_ context.Context, _ string, props map[string]string) error {
	f.patchCalls++
	f.patched = props
	return f.patchErr
}

func (f *fakeCRM) ListLineItems(_ context.Context, _ string) ([]crm.LineItem, error) {
	return f.items, f.listErr
}

func (f *fakeCRM) ReplaceLineItems(_ context.Context, _ string, removeIDs []string, add []crm.LineItem) error {
	f.replaceCalls++
	f.replaceRemove = removeIDs
	f.replaceAdd = add
	return f.replaceErr
}

type fakeOrders struct {
	variants    map[string]*orders.Variant
	variantErr  error
	specs       map[string]*orders.ProductSpec
	specErr     error
	draftCalls  int
	draftItems  []orders.DraftOrderItem
	draftShip   *orders.ShippingLine
	draftErr    error
	searchCalls int
}

func (f *fakeOrders) UpdateDraftOrder(_ context.Context, _ string, items []orders.DraftOrderItem, shipping *orders.ShippingLine) error {
	f.draftCalls++
	f.draftItems = items
	f.draftShip = shipping
	return f.draftErr
}

func (f *fakeOrders) FetchVariant(_ context.Context, sku string) (*orders.Variant, error) {
	if f.variantErr != nil {
		return nil, f.variantErr
	}
	variant, ok := f.variants[sku]
	if !ok {
		return nil, apperr.NotFound("variant not found")
	}
	return variant, nil
}

func (f *fakeOrders) SearchProducts(_ context.Context, sku string) (*orders.ProductSpec, error) {
	f.searchCalls++
	if f.specErr != nil {
		return nil, f.specErr
	}
	spec, ok := f.specs[sku]
	if !ok {
		return nil, apperr.NotFound("product not found")
	}
	return spec, nil
}

type fakeFreight struct {
	rates []freight.Rate
	err   error
	calls int
	last  freight.RateRequest
}

func (f *fakeFreight) QuoteRates(_ context.Context, req freight.RateRequest) ([]freight.Rate, error) {
	f.calls++
	f.last = req
	return f.rates, f.err
}

type fakeCopywriter struct {
	copy  *copywriter.Copy
	err   error
	calls int
}

func (f *fakeCopywriter) Describe(_ context.Context, _, _ string) (*copywriter.Copy, error) {
	f.calls++
	return f.copy, f.err
}

type fakeLocker struct {
	err      error
	released bool
}

func (f *fakeLocker) Acquire(_ context.Context, _ string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	return func() { f.released = true }, nil
}

type fakeRunStore struct {
	inserted []repository.Run
	finished []string
	kinds    []*string
}

func (f *fakeRunStore) InsertRun(_ context.Context, run repository.Run) error {
	f.inserted = append(f.inserted, run)
	return nil
}

func (f *fakeRunStore) FinishRun(_ context.Context, _ uuid.UUID, state string, errorKind, _ *string) error {
	f.finished = append(f.finished, state)
	f.kinds = append(f.kinds, errorKind)
	return nil
}

func (f *fakeRunStore) ListRunsByDeal(_ context.Context, _ string, _ int) ([]repository.Run, error) {
	return nil, nil
}

type sinkEvent struct {
	name    string
	step    string
	pct     int
	kind    string
	message string
}

type recordSink struct {
	events []sinkEvent
}

func (s *recordSink) Progress(step string, percentage int) {
	s.events = append(s.events, sinkEvent{name: "progress", step: step, pct: percentage})
}

func (s *recordSink) Complete(quoteURL, contactRedirect string) {
	s.events = append(s.events, sinkEvent{name: "complete", step: quoteURL, message: contactRedirect})
}

func (s *recordSink) Fail(kind, message string) {
	s.events = append(s.events, sinkEvent{name: "error", kind: kind, message: message})
}

func (s *recordSink) percentages() []int {
	var out []int
	for _, e := range s.events {
		if e.name == "progress" {
			out = append(out, e.pct)
		}
	}
	return out
}

func (s *recordSink) terminal() *sinkEvent {
	var found *sinkEvent
	count := 0
	for i := range s.events {
		if s.events[i].name == "complete" || s.events[i].name == "error" {
			found = &s.events[i]
			count++
		}
	}
	if count != 1 {
		return nil
	}
	return found
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func freeVariant(sku string) *orders.Variant {
	return &orders.Variant{SKU: sku, Title: sku, Tags: "sale, Free Shipping"}
}

func baseRequest() transport.FinalizeRequest {
	return transport.FinalizeRequest{
		Flow:             transport.FlowSingleProduct,
		DealID:           "deal-1",
		ContactID:        "contact-1",
		QuoteID:          "quote-1",
		QuoteLink:        "https://quotes.example.com/q/quote-1",
		DraftOrderID:     "draft-1",
		PriorLineItemIDs: []string{"li-old"},
		LineItems: []transport.LineItemInput{
			{ID: "li-1", SKU: "HP-500", Name: "Cold Climate Heat Pump", Quantity: 1, UnitPrice: 4200, IsMain: true},
		},
		MainProductSKU: "HP-500",
		Country:        "USA",
		PostalCode:     "33101",
		City:           "Miami",
		State:          "FL",
	}
}

func newTestService(crmF *fakeCRM, ordersF *fakeOrders, freightF *fakeFreight) *Service {
	return New(crmF, ordersF, freightF, logger.New("development"))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunWithContentGeneration(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{{ID: "li-1", SKU: "HP-500", DealID: "deal-1"}}}
	ordersF := &fakeOrders{
		variants: map[string]*orders.Variant{"HP-500": freeVariant("HP-500")},
		specs: map[string]*orders.ProductSpec{
			"HP-500": {SKU: "HP-500", Title: "Cold Climate Heat Pump", Description: "An air-to-water heat pump.", ImageURL: "https://img.example.com/hp.png"},
		},
	}
	freightF := &fakeFreight{}
	svc := newTestService(crmF, ordersF, freightF)
	gen := &fakeCopywriter{copy: &copywriter.Copy{Slogan: "Heat smarter.", Description: "Quiet, efficient comfort."}}
	svc.SetCopywriter(gen)
	runs := &fakeRunStore{}
	svc.SetRunStore(runs)

	sink := &recordSink{}
	svc.Run(context.Background(), baseRequest(), sink)

	want := []int{5, 25, 35, 40, 50, 60, 75, 85, 95, 100}
	got := sink.percentages()
	if len(got) != len(want) {
		t.Fatalf("progress events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress events = %v, want %v", got, want)
		}
	}

	term := sink.terminal()
	if term == nil || term.name != "complete" {
		t.Fatalf("expected exactly one complete event, got %+v", sink.events)
	}
	if term.message != "/contacts/contact-1?deal=deal-1" {
		t.Fatalf("contact redirect = %q", term.message)
	}

	if len(crmF.statusCalls) != 2 || crmF.statusCalls[0] != crm.StatusDraft || crmF.statusCalls[1] != crm.StatusApproved {
		t.Fatalf("status calls = %v", crmF.statusCalls)
	}
	if gen.calls != 1 {
		t.Fatalf("copywriter calls = %d, want 1", gen.calls)
	}
	if crmF.patchCalls != 1 {
		t.Fatalf("patch calls = %d, want 1", crmF.patchCalls)
	}
	if crmF.patched["main_product_slogan"] != "Heat smarter." {
		t.Fatalf("patched properties = %v", crmF.patched)
	}
	if crmF.patched["main_product_name"] != "Cold Climate Heat Pump" {
		t.Fatalf("patched product name = %q, want catalog title", crmF.patched["main_product_name"])
	}
	if ordersF.draftCalls != 1 {
		t.Fatalf("draft order calls = %d, want 1", ordersF.draftCalls)
	}
	if ordersF.draftShip == nil || ordersF.draftShip.Title != "Free" || ordersF.draftShip.Price != 0 {
		t.Fatalf("shipping line = %+v, want free shipping", ordersF.draftShip)
	}
	if freightF.calls != 0 {
		t.Fatalf("freight calls = %d, want 0 for free shipping", freightF.calls)
	}

	if len(runs.inserted) != 1 || runs.inserted[0].State != repository.RunStateRunning {
		t.Fatalf("inserted runs = %+v", runs.inserted)
	}
	if len(runs.finished) != 1 || runs.finished[0] != repository.RunStateComplete {
		t.Fatalf("finished states = %v", runs.finished)
	}
}

func TestRunEditQuoteSkipsContentGeneration(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{{ID: "li-1", SKU: "HP-500", DealID: "deal-1"}}}
	ordersF := &fakeOrders{variants: map[string]*orders.Variant{"HP-500": freeVariant("HP-500")}}
	svc := newTestService(crmF, ordersF, &fakeFreight{})
	gen := &fakeCopywriter{copy: &copywriter.Copy{Slogan: "x", Description: "y"}}
	svc.SetCopywriter(gen)

	req := baseRequest()
	req.Flow = transport.FlowEditQuote

	sink := &recordSink{}
	svc.Run(context.Background(), req, sink)

	want := []int{5, 25, 35, 75, 85, 95, 100}
	got := sink.percentages()
	if len(got) != len(want) {
		t.Fatalf("progress events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress events = %v, want %v", got, want)
		}
	}
	if gen.calls != 0 || crmF.patchCalls != 0 {
		t.Fatalf("content generation ran for edit flow: copywriter=%d patch=%d", gen.calls, crmF.patchCalls)
	}
	if term := sink.terminal(); term == nil || term.name != "complete" {
		t.Fatalf("expected complete event, got %+v", sink.events)
	}
}

func TestRunUnchangedMainProductSkipsContentGeneration(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{{ID: "li-1", SKU: "HP-500", DealID: "deal-1"}}}
	ordersF := &fakeOrders{variants: map[string]*orders.Variant{"HP-500": freeVariant("HP-500")}}
	svc := newTestService(crmF, ordersF, &fakeFreight{})
	gen := &fakeCopywriter{copy: &copywriter.Copy{Slogan: "x", Description: "y"}}
	svc.SetCopywriter(gen)

	req := baseRequest()
	req.PreviousMainProductSKU = "HP-500"

	sink := &recordSink{}
	svc.Run(context.Background(), req, sink)

	if gen.calls != 0 || crmF.patchCalls != 0 {
		t.Fatalf("content generation ran for unchanged main product")
	}
	if term := sink.terminal(); term == nil || term.name != "complete" {
		t.Fatalf("expected complete event, got %+v", sink.events)
	}
}

func TestRunMissingDescriptionIsTerminal(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{{ID: "li-1", SKU: "HP-500", DealID: "deal-1"}}}
	ordersF := &fakeOrders{
		variants: map[string]*orders.Variant{"HP-500": freeVariant("HP-500")},
		specs:    map[string]*orders.ProductSpec{"HP-500": {SKU: "HP-500", Title: "Heat Pump", Description: "   "}},
	}
	svc := newTestService(crmF, ordersF, &fakeFreight{})
	svc.SetCopywriter(&fakeCopywriter{copy: &copywriter.Copy{Slogan: "x", Description: "y"}})

	sink := &recordSink{}
	svc.Run(context.Background(), baseRequest(), sink)

	term := sink.terminal()
	if term == nil || term.name != "error" {
		t.Fatalf("expected exactly one error event, got %+v", sink.events)
	}
	if term.kind != "validation" {
		t.Fatalf("error kind = %q, want validation", term.kind)
	}
	if ordersF.draftCalls != 0 {
		t.Fatalf("draft order was updated after terminal failure")
	}
	if len(crmF.statusCalls) != 1 {
		t.Fatalf("quote was approved after terminal failure: %v", crmF.statusCalls)
	}
}

func TestRunFirstStepFailureShortCircuits(t *testing.T) {
	crmF := &fakeCRM{
		statusErrs: map[crm.QuoteStatus]error{crm.StatusDraft: apperr.Upstream("crm unavailable", errors.New("503"))},
	}
	ordersF := &fakeOrders{}
	svc := newTestService(crmF, ordersF, &fakeFreight{})
	runs := &fakeRunStore{}
	svc.SetRunStore(runs)

	sink := &recordSink{}
	svc.Run(context.Background(), baseRequest(), sink)

	term := sink.terminal()
	if term == nil || term.name != "error" {
		t.Fatalf("expected exactly one error event, got %+v", sink.events)
	}
	if term.kind != "upstream" {
		t.Fatalf("error kind = %q, want upstream", term.kind)
	}
	if len(sink.percentages()) != 0 {
		t.Fatalf("progress was emitted before the failing step: %v", sink.percentages())
	}
	if crmF.replaceCalls != 0 || ordersF.draftCalls != 0 {
		t.Fatalf("later steps ran after terminal failure")
	}
	if len(runs.finished) != 1 || runs.finished[0] != repository.RunStateError {
		t.Fatalf("finished states = %v", runs.finished)
	}
	if runs.kinds[0] == nil || *runs.kinds[0] != "upstream" {
		t.Fatalf("recorded error kind = %v", runs.kinds[0])
	}
}

func TestRunFreightFailureIsNotTerminal(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{{ID: "li-1", SKU: "HP-500", DealID: "deal-1"}}}
	ordersF := &fakeOrders{
		variants: map[string]*orders.Variant{"HP-500": {SKU: "HP-500", Tags: "sale"}},
		specs:    map[string]*orders.ProductSpec{"HP-500": {SKU: "HP-500", Title: "Heat Pump", WeightLbs: 300}},
	}
	freightF := &fakeFreight{err: apperr.Upstream("freight unavailable", errors.New("timeout"))}
	svc := newTestService(crmF, ordersF, freightF)

	req := baseRequest()
	req.Flow = transport.FlowEditQuote

	sink := &recordSink{}
	svc.Run(context.Background(), req, sink)

	term := sink.terminal()
	if term == nil || term.name != "complete" {
		t.Fatalf("expected complete event despite freight failure, got %+v", sink.events)
	}
	if freightF.calls != 1 {
		t.Fatalf("freight calls = %d, want 1", freightF.calls)
	}
	if ordersF.draftCalls != 1 {
		t.Fatalf("draft order calls = %d, want 1", ordersF.draftCalls)
	}
	if ordersF.draftShip != nil {
		t.Fatalf("shipping line = %+v, want none", ordersF.draftShip)
	}
	if len(crmF.statusCalls) != 2 || crmF.statusCalls[1] != crm.StatusApproved {
		t.Fatalf("quote was not approved: %v", crmF.statusCalls)
	}
}

func TestRunLockConflict(t *testing.T) {
	crmF := &fakeCRM{}
	svc := newTestService(crmF, &fakeOrders{}, &fakeFreight{})
	svc.SetLocker(&fakeLocker{err: apperr.Conflict("another update is already running for this quote")})
	runs := &fakeRunStore{}
	svc.SetRunStore(runs)

	sink := &recordSink{}
	svc.Run(context.Background(), baseRequest(), sink)

	term := sink.terminal()
	if term == nil || term.name != "error" {
		t.Fatalf("expected exactly one error event, got %+v", sink.events)
	}
	if term.kind != "conflict" {
		t.Fatalf("error kind = %q, want conflict", term.kind)
	}
	if len(crmF.statusCalls) != 0 {
		t.Fatalf("CRM was touched while the quote was locked")
	}
	if len(runs.inserted) != 0 {
		t.Fatalf("run was recorded without the lock")
	}
}

func TestRunReleasesLock(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{{ID: "li-1", SKU: "HP-500", DealID: "deal-1"}}}
	ordersF := &fakeOrders{variants: map[string]*orders.Variant{"HP-500": freeVariant("HP-500")}}
	svc := newTestService(crmF, ordersF, &fakeFreight{})
	lock := &fakeLocker{}
	svc.SetLocker(lock)

	req := baseRequest()
	req.Flow = transport.FlowEditQuote

	svc.Run(context.Background(), req, &recordSink{})

	if !lock.released {
		t.Fatalf("lock was not released after the run")
	}
}

func TestRunReconcilesRemovedLineItems(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{
		{ID: "li-1", SKU: "HP-500", DealID: "deal-1"},
		{ID: "li-2", SKU: "BUF-80", DealID: "deal-1"},
	}}
	ordersF := &fakeOrders{variants: map[string]*orders.Variant{
		"HP-500": freeVariant("HP-500"),
	}}
	svc := newTestService(crmF, ordersF, &fakeFreight{})

	req := baseRequest()
	req.Flow = transport.FlowEditQuote
	req.PriorLineItemIDs = []string{"li-1", "li-dropped"}

	svc.Run(context.Background(), req, &recordSink{})

	if crmF.replaceCalls != 1 {
		t.Fatalf("replace calls = %d, want 1", crmF.replaceCalls)
	}
	if len(crmF.replaceRemove) != 1 || crmF.replaceRemove[0] != "li-dropped" {
		t.Fatalf("removal set = %v, want [li-dropped]", crmF.replaceRemove)
	}
	if len(crmF.replaceAdd) != 2 {
		t.Fatalf("add set size = %d, want 2", len(crmF.replaceAdd))
	}
}

func TestRunRecordsDuration(t *testing.T) {
	crmF := &fakeCRM{items: []crm.LineItem{{ID: "li-1", SKU: "HP-500", DealID: "deal-1"}}}
	ordersF := &fakeOrders{variants: map[string]*orders.Variant{"HP-500": freeVariant("HP-500")}}
	svc := newTestService(crmF, ordersF, &fakeFreight{})
	runs := &fakeRunStore{}
	svc.SetRunStore(runs)

	req := baseRequest()
	req.Flow = transport.FlowEditQuote

	svc.Run(context.Background(), req, &recordSink{})

	if len(runs.inserted) != 1 {
		t.Fatalf("inserted runs = %d, want 1", len(runs.inserted))
	}
	run := runs.inserted[0]
	if run.Flow != string(transport.FlowEditQuote) || run.QuoteID != "quote-1" {
		t.Fatalf("recorded run = %+v", run)
	}
	if time.Since(run.StartedAt) > time.Minute {
		t.Fatalf("run start time looks wrong: %v", run.StartedAt)
	}
}
