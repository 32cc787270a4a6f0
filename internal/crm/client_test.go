package crm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"salesops_backend/platform/apperr"
)

type stubConfig struct {
	baseURL string
}

func (s stubConfig) GetCRMBaseURL() string     { return s.baseURL }
func (s stubConfig) GetCRMAccessToken() string { return "test-token" }

func TestListLineItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/crm/v3/deals/deal-1/line-items" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("Authorization = %q", got)
		}
		io.WriteString(w, `{"results":[{"id":"li-1","sku":"HP-500","quantity":2,"dealId":"deal-1"}]}`)
	}))
	defer srv.Close()

	client := NewClient(stubConfig{baseURL: srv.URL})
	items, err := client.ListLineItems(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("ListLineItems: %v", err)
	}
	if len(items) != 1 || items[0].SKU != "HP-500" || items[0].Quantity != 2 {
		t.Fatalf("items = %+v", items)
	}
}

func TestReplaceLineItemsBody(t *testing.T) {
	var got replaceLineItemsBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/crm/v3/quotes/quote-1/line-items:replace" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(stubConfig{baseURL: srv.URL})
	err := client.ReplaceLineItems(context.Background(), "quote-1", nil, []LineItem{{ID: "li-1", SKU: "HP-500"}})
	if err != nil {
		t.Fatalf("ReplaceLineItems: %v", err)
	}
	if got.Remove == nil || len(got.Remove) != 0 {
		t.Fatalf("remove = %v, want empty array", got.Remove)
	}
	if len(got.Add) != 1 || got.Add[0].SKU != "HP-500" {
		t.Fatalf("add = %+v", got.Add)
	}
}

func TestSetQuoteStatusUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream exploded")
	}))
	defer srv.Close()

	client := NewClient(stubConfig{baseURL: srv.URL})
	err := client.SetQuoteStatus(context.Background(), "quote-1", StatusApproved)
	if apperr.GetKind(err) != apperr.KindUpstream {
		t.Fatalf("err = %v, want upstream", err)
	}
}
