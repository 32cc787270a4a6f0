package service

import (
	"context"

	"salesops_backend/internal/crm"
)

// reconcileLineItems replaces the quote's attached line items with the deal's
// current set in a single CRM call. The removal set is computed as an explicit
// diff: prior IDs that no longer appear on the deal. IDs present in both sets
// are left alone and re-added by the CRM as part of the replace, so a prior
// snapshot that is already current results in an empty removal list.
func (s *Service) reconcileLineItems(ctx context.Context, quoteID string, priorIDs []string, current []crm.LineItem) error {
	removeIDs := diffLineItemIDs(priorIDs, current)
	s.log.Debug("reconciling quote line items",
		"quote_id", quoteID,
		"prior", len(priorIDs),
		"current", len(current),
		"removing", len(removeIDs))
	return s.crm.ReplaceLineItems(ctx, quoteID, removeIDs, current)
}

// diffLineItemIDs returns the prior IDs absent from the current set.
func diffLineItemIDs(priorIDs []string, current []crm.LineItem) []string {
	currentSet := make(map[string]struct{}, len(current))
	for _, item := range current {
		currentSet[item.ID] = struct{}{}
	}

	removed := make([]string, 0)
	for _, id := range priorIDs {
		if id == "" {
			continue
		}
		if _, ok := currentSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return removed
}

// warnOnDealMismatch flags line items whose deal association does not match
// the deal being finalized. The CRM listing is trusted anyway; the mismatch
// only indicates a stale association worth investigating.
func (s *Service) warnOnDealMismatch(items []crm.LineItem, dealID string) {
	for _, item := range items {
		if item.DealID != "" && item.DealID != dealID {
			s.log.Warn("line item associated with a different deal",
				"line_item_id", item.ID,
				"expected_deal_id", dealID,
				"actual_deal_id", item.DealID)
		}
	}
}
