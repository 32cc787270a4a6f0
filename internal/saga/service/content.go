package service

import (
	"context"
	"strings"
	"time"

	"salesops_backend/internal/saga/stream"
	"salesops_backend/internal/saga/transport"
	"salesops_backend/platform/apperr"
)

const (
	schematicHeatPump = "schematics/air-to-water-heat-pump.png"
	schematicBoiler   = "schematics/boiler-system.png"
)

// generatedContent is the marketing material produced for a new main product,
// ready to be written back onto the deal.
type generatedContent struct {
	name         string
	slogan       string
	description  string
	imageURL     string
	schematicURL string
}

// dealProperties renders the content as CRM deal properties.
func (c generatedContent) dealProperties(sku string) map[string]string {
	props := map[string]string{
		"main_product_sku":         sku,
		"main_product_name":        c.name,
		"main_product_slogan":      c.slogan,
		"main_product_description": c.description,
		"quote_submission_date":    time.Now().Format("2006-01-02"),
	}
	if c.imageURL != "" {
		props["main_product_image_url"] = c.imageURL
	}
	if c.schematicURL != "" {
		props["main_product_schematic_url"] = c.schematicURL
	}
	return props
}

// generateMainProductContent runs the three content sub-steps for the flagged
// main product: schematic selection, catalog description lookup, and copy
// generation. Unlike shipping, a failure here is terminal for the run.
func (s *Service) generateMainProductContent(ctx context.Context, req transport.FinalizeRequest, sink stream.Sink) (*generatedContent, error) {
	if s.copywriter == nil {
		return nil, apperr.Validation("marketing copy generation is not configured")
	}

	main := req.MainLineItem()
	productName := req.MainProductSKU
	if main != nil && main.Name != "" {
		productName = main.Name
	}

	content := &generatedContent{}

	content.schematicURL = s.presignSchematic(ctx, selectSchematicKey(productName))
	s.contentProgress(req, sink, stepSelectSchematic, pctSchematicSelected)

	spec, err := s.orders.SearchProducts(ctx, req.MainProductSKU)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Description) == "" {
		return nil, apperr.Validation("this product has no description yet; please choose a different product")
	}
	content.name = spec.Title
	content.imageURL = spec.ImageURL
	s.contentProgress(req, sink, stepFetchDescription, pctDescriptionFetched)

	copyText, err := s.copywriter.Describe(ctx, spec.Title, spec.Description)
	if err != nil {
		return nil, err
	}
	content.slogan = copyText.Slogan
	content.description = copyText.Description
	s.contentProgress(req, sink, stepGenerateCopy, pctCopyGenerated)

	return content, nil
}

func (s *Service) contentProgress(req transport.FinalizeRequest, sink stream.Sink, step string, pct int) {
	sink.Progress(step, pct)
	s.log.SagaStep(req.QuoteID, step, pct)
}

// selectSchematicKey maps a product name to the installation schematic shown
// on the quote. Heat pump and fan coil systems share one schematic; anything
// else falls back to the boiler system drawing.
func selectSchematicKey(productName string) string {
	name := strings.ToLower(productName)
	if strings.Contains(name, "heat pump") || strings.Contains(name, "fan coil") {
		return schematicHeatPump
	}
	return schematicBoiler
}

// presignSchematic returns a download URL for the schematic asset, or an
// empty string when object storage is not wired or the asset is unavailable.
func (s *Service) presignSchematic(ctx context.Context, objectKey string) string {
	if s.assets == nil {
		return ""
	}
	presigned, err := s.assets.GenerateDownloadURL(ctx, s.schematicBucket, objectKey)
	if err != nil {
		s.log.ExternalCallError("storage", "presign schematic", err)
		return ""
	}
	return presigned.URL
}
