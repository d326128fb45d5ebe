package service

import (
	"catalog-sync/internal/client"
	"catalog-sync/internal/mapping"
	"catalog-sync/internal/matrix"
	"catalog-sync/internal/models"
)

// DefaultDocument is the built-in mapping used until an operator imports one.
// It covers the fields every destination collection has.
func DefaultDocument() *mapping.Document {
	return &mapping.Document{
		Version: 1,
		Rules: []mapping.Rule{
			{Source: "label", Dest: "name", Kind: mapping.KindPassthrough, Required: true},
			{Source: "label", Dest: "slug", Kind: mapping.KindFormat, Args: map[string]string{"format": "slug"}, Required: true},
			{Source: "sku", Dest: "sku", Kind: mapping.KindPassthrough, Required: true},
			{Source: "description", Dest: "description", Kind: mapping.KindFormat, Args: map[string]string{"format": "text"}},
			{Source: "price", Dest: "price", Kind: mapping.KindPassthrough},
		},
	}
}

// productRecord flattens a source product into the nested map the mapping
// engine reads paths from. Monetary values surface as decimal units, not
// cents, matching what the destination stores.
func productRecord(p *models.SourceProduct) map[string]interface{} {
	record := map[string]interface{}{
		"id":          p.ID,
		"sku":         p.SKU,
		"label":       p.Label,
		"description": p.Description,
		"price":       float64(p.PriceCents) / 100,
	}
	if len(p.Attributes) > 0 {
		record["attributes"] = p.Attributes
	}
	if len(p.Assets) > 0 {
		assets := make([]interface{}, 0, len(p.Assets))
		for _, a := range p.Assets {
			assets = append(assets, map[string]interface{}{
				"url":      a.URL,
				"filename": a.Filename,
			})
		}
		record["assets"] = assets
	}
	return record
}

// variantFields builds the destination-shaped fields for one matrix cell.
// Numeric values are float64 so comparison against JSON-decoded destination
// state sees identical records as identical.
func variantFields(p *models.SourceProduct, m *matrix.Matrix, entry matrix.Entry) map[string]interface{} {
	name := p.Label
	if cell := entry.Cell.String(); cell != "" {
		name = p.Label + " " + cell
	}
	fields := map[string]interface{}{
		"sku":  entry.SKU,
		"name": name,
	}
	for i, axis := range m.Axes {
		if i < len(entry.Cell) {
			fields[mapping.Slugify(axis.Name)] = entry.Cell[i]
		}
	}
	if entry.Variant != nil {
		price := entry.Variant.PriceCents
		if price == 0 {
			price = p.PriceCents
		}
		fields["price"] = float64(price) / 100
		fields["inventory"] = float64(entry.Variant.Inventory)
	} else {
		fields["price"] = float64(p.PriceCents) / 100
	}
	return fields
}

func variantPayloads(candidates []matrix.Candidate) []client.VariantPayload {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]client.VariantPayload, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, client.VariantPayload{SKU: c.SKU, Fields: c.Fields})
	}
	return out
}
