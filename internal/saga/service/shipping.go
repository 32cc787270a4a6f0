package service

import (
	"context"
	"strings"
	"time"

	"salesops_backend/internal/freight"
	"salesops_backend/internal/orders"
	"salesops_backend/internal/saga/transport"

	"golang.org/x/sync/errgroup"
)

const (
	freeShippingTag   = "free shipping"
	freeShippingETA   = 30 * 24 * time.Hour
	freeCarrier       = "Free"
	destinationUSA    = "USA"
	variantFetchLimit = 5
	shipDateFormat    = "2006-01-02"
)

// resolveShippingRates computes shipping for the quoted items. Shipping is
// advisory: every failure along the way degrades to an empty rate set so the
// draft order is still pushed, just without a shipping line.
func (s *Service) resolveShippingRates(ctx context.Context, req transport.FinalizeRequest) []freight.Rate {
	rates, err := s.computeShippingRates(ctx, req)
	if err != nil {
		s.log.ExternalCallError("freight", "resolve shipping rates", err)
		return nil
	}
	return rates
}

func (s *Service) computeShippingRates(ctx context.Context, req transport.FinalizeRequest) ([]freight.Rate, error) {
	free, err := s.allFreeShipping(ctx, req.LineItems)
	if err != nil {
		return nil, err
	}
	if free {
		eta := time.Now().Add(freeShippingETA)
		return []freight.Rate{{
			CarrierSCAC:           freeCarrier,
			CostLoaded:            0,
			EstimatedDeliveryDate: &eta,
		}}, nil
	}

	// Freight quoting only covers domestic destinations.
	if !strings.EqualFold(req.Country, destinationUSA) {
		s.log.Debug("skipping freight quote for non-domestic destination", "country", req.Country)
		return nil, nil
	}

	commodities, err := s.fetchCommodities(ctx, req.LineItems)
	if err != nil {
		return nil, err
	}
	if len(commodities) == 0 {
		return nil, nil
	}

	rates, err := s.freight.QuoteRates(ctx, freight.RateRequest{
		ShipDate: time.Now().Format(shipDateFormat),
		Destination: freight.Address{
			Country:    req.Country,
			PostalCode: req.PostalCode,
			City:       req.City,
			State:      req.State,
		},
		Commodities: commodities,
	})
	if err != nil {
		return nil, err
	}

	// Only rates with a committed delivery estimate are usable; the first
	// such rate is the one the draft order carries.
	for _, rate := range rates {
		if rate.EstimatedDeliveryDate != nil {
			return []freight.Rate{rate}, nil
		}
	}
	return nil, nil
}

// allFreeShipping reports whether every quoted item's variant carries the
// free-shipping tag. An item whose variant has no tags at all disqualifies
// the whole set.
func (s *Service) allFreeShipping(ctx context.Context, items []transport.LineItemInput) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}

	variants := make([]*orders.Variant, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(variantFetchLimit)
	for i, item := range items {
		g.Go(func() error {
			variant, err := s.orders.FetchVariant(gctx, item.SKU)
			if err != nil {
				return err
			}
			variants[i] = variant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, variant := range variants {
		if !hasTag(variant.Tags, freeShippingTag) {
			return false, nil
		}
	}
	return true, nil
}

func hasTag(raw, want string) bool {
	for _, tag := range strings.Split(raw, ",") {
		if strings.EqualFold(strings.TrimSpace(tag), want) {
			return true
		}
	}
	return false
}

// fetchCommodities resolves one freight commodity per quoted line item from
// the product catalog's physical attributes. Quantities come from the caller's
// line items, not the catalog.
func (s *Service) fetchCommodities(ctx context.Context, items []transport.LineItemInput) ([]freight.Commodity, error) {
	commodities := make([]freight.Commodity, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(variantFetchLimit)
	for i, item := range items {
		g.Go(func() error {
			spec, err := s.orders.SearchProducts(gctx, item.SKU)
			if err != nil {
				return err
			}
			commodities[i] = freight.Commodity{
				Description:   spec.Title,
				WeightLbs:     spec.WeightLbs,
				LengthIn:      spec.LengthIn,
				WidthIn:       spec.WidthIn,
				HeightIn:      spec.HeightIn,
				FreightClass:  spec.FreightClass,
				CommodityCode: spec.CommodityCode,
				Quantity:      item.Quantity,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return commodities, nil
}
