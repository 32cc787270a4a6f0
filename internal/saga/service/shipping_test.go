package service

import (
	"context"
	"testing"
	"time"

	"salesops_backend/internal/freight"
	"salesops_backend/internal/orders"
	"salesops_backend/internal/saga/transport"
	"salesops_backend/platform/logger"
)

func shippingRequest(items ...transport.LineItemInput) transport.FinalizeRequest {
	req := baseRequest()
	req.LineItems = items
	return req
}

func TestResolveShippingAllItemsFree(t *testing.T) {
	ordersF := &fakeOrders{variants: map[string]*orders.Variant{
		"HP-500": {SKU: "HP-500", Tags: "promo,FREE SHIPPING"},
		"BUF-80": {SKU: "BUF-80", Tags: "free shipping"},
	}}
	freightF := &fakeFreight{}
	svc := New(&fakeCRM{}, ordersF, freightF, logger.New("development"))

	req := shippingRequest(
		transport.LineItemInput{SKU: "HP-500", Quantity: 1},
		transport.LineItemInput{SKU: "BUF-80", Quantity: 2},
	)

	rates := svc.resolveShippingRates(context.Background(), req)
	if len(rates) != 1 {
		t.Fatalf("rates = %+v, want one free rate", rates)
	}
	if rates[0].CarrierSCAC != "Free" || rates[0].CostLoaded != 0 {
		t.Fatalf("rate = %+v, want free carrier at zero cost", rates[0])
	}
	if rates[0].EstimatedDeliveryDate == nil {
		t.Fatalf("free rate has no delivery estimate")
	}
	eta := time.Until(*rates[0].EstimatedDeliveryDate)
	if eta < 29*24*time.Hour || eta > 31*24*time.Hour {
		t.Fatalf("free rate ETA = %v from now, want ~30 days", eta)
	}
	if freightF.calls != 0 {
		t.Fatalf("freight was called for an all-free order")
	}
}

func TestResolveShippingOneTaggedItemIsNotEnough(t *testing.T) {
	ordersF := &fakeOrders{
		variants: map[string]*orders.Variant{
			"HP-500": {SKU: "HP-500", Tags: "free shipping"},
			"BUF-80": {SKU: "BUF-80", Tags: "promo"},
		},
		specs: map[string]*orders.ProductSpec{
			"HP-500": {SKU: "HP-500", Title: "Heat Pump", WeightLbs: 300, FreightClass: "85"},
			"BUF-80": {SKU: "BUF-80", Title: "Buffer Tank", WeightLbs: 120, FreightClass: "92.5"},
		},
	}
	eta := time.Now().Add(5 * 24 * time.Hour)
	freightF := &fakeFreight{rates: []freight.Rate{{CarrierSCAC: "SAIA", CostLoaded: 412.50, EstimatedDeliveryDate: &eta}}}
	svc := New(&fakeCRM{}, ordersF, freightF, logger.New("development"))

	req := shippingRequest(
		transport.LineItemInput{SKU: "HP-500", Quantity: 1},
		transport.LineItemInput{SKU: "BUF-80", Quantity: 3},
	)

	rates := svc.resolveShippingRates(context.Background(), req)
	if freightF.calls != 1 {
		t.Fatalf("freight calls = %d, want 1", freightF.calls)
	}
	if len(rates) != 1 || rates[0].CarrierSCAC != "SAIA" {
		t.Fatalf("rates = %+v, want the SAIA quote", rates)
	}
	if len(freightF.last.Commodities) != 2 {
		t.Fatalf("commodities = %+v, want one per line item", freightF.last.Commodities)
	}
	// Quantities come from the caller's line items, not the catalog.
	if freightF.last.Commodities[1].Quantity != 3 {
		t.Fatalf("commodity quantity = %d, want 3", freightF.last.Commodities[1].Quantity)
	}
	if freightF.last.Destination.PostalCode != "33101" {
		t.Fatalf("destination = %+v", freightF.last.Destination)
	}
}

func TestResolveShippingNonDomesticDestination(t *testing.T) {
	ordersF := &fakeOrders{variants: map[string]*orders.Variant{
		"HP-500": {SKU: "HP-500", Tags: "promo"},
	}}
	freightF := &fakeFreight{}
	svc := New(&fakeCRM{}, ordersF, freightF, logger.New("development"))

	req := shippingRequest(transport.LineItemInput{SKU: "HP-500", Quantity: 1})
	req.Country = "Canada"

	rates := svc.resolveShippingRates(context.Background(), req)
	if len(rates) != 0 {
		t.Fatalf("rates = %+v, want none for non-domestic destination", rates)
	}
	if freightF.calls != 0 {
		t.Fatalf("freight was called for a non-domestic destination")
	}
	if ordersF.searchCalls != 0 {
		t.Fatalf("product specs were fetched for a non-domestic destination")
	}
}

func TestResolveShippingDropsRatesWithoutDeliveryEstimate(t *testing.T) {
	eta := time.Now().Add(7 * 24 * time.Hour)
	ordersF := &fakeOrders{
		variants: map[string]*orders.Variant{"HP-500": {SKU: "HP-500", Tags: "promo"}},
		specs:    map[string]*orders.ProductSpec{"HP-500": {SKU: "HP-500", Title: "Heat Pump", WeightLbs: 300}},
	}
	freightF := &fakeFreight{rates: []freight.Rate{
		{CarrierSCAC: "NOEST", CostLoaded: 100},
		{CarrierSCAC: "ODFL", CostLoaded: 350, EstimatedDeliveryDate: &eta},
		{CarrierSCAC: "SAIA", CostLoaded: 290, EstimatedDeliveryDate: &eta},
	}}
	svc := New(&fakeCRM{}, ordersF, freightF, logger.New("development"))

	rates := svc.resolveShippingRates(context.Background(), shippingRequest(transport.LineItemInput{SKU: "HP-500", Quantity: 1}))
	if len(rates) != 1 {
		t.Fatalf("rates = %+v, want exactly one", rates)
	}
	if rates[0].CarrierSCAC != "ODFL" {
		t.Fatalf("rate = %+v, want the first rate with a delivery estimate", rates[0])
	}
}

func TestResolveShippingEmptyRateSet(t *testing.T) {
	ordersF := &fakeOrders{
		variants: map[string]*orders.Variant{"HP-500": {SKU: "HP-500", Tags: "promo"}},
		specs:    map[string]*orders.ProductSpec{"HP-500": {SKU: "HP-500", Title: "Heat Pump"}},
	}
	freightF := &fakeFreight{}
	svc := New(&fakeCRM{}, ordersF, freightF, logger.New("development"))

	rates := svc.resolveShippingRates(context.Background(), shippingRequest(transport.LineItemInput{SKU: "HP-500", Quantity: 1}))
	if len(rates) != 0 {
		t.Fatalf("rates = %+v, want none", rates)
	}
}

func TestHasTag(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"free shipping", true},
		{"promo, Free Shipping ,sale", true},
		{"FREE SHIPPING", true},
		{"freeshipping", false},
		{"", false},
		{"promo,sale", false},
	}
	for _, tc := range cases {
		if got := hasTag(tc.raw, freeShippingTag); got != tc.want {
			t.Fatalf("hasTag(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
