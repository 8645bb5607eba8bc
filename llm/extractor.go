package llm

import (
	"context"

	"casefile-backend/models"
	"casefile-backend/rules"
)

// ExtractionTarget is one (url, category) pair to extract
type ExtractionTarget struct {
	URL      string
	Category string
}

// Extraction is the conformed slot list for one target
type Extraction struct {
	URL      string
	Category string
	Slots    models.SlotRecords
}

type extractResponse struct {
	Results []struct {
		ImageURL     string    `json:"image_url"`
		EvidenceType string    `json:"evidence_type"`
		Slots        []rawSlot `json:"slots" validate:"dive"`
	} `json:"results" validate:"dive"`
}

// Extractor pulls the configured slots out of single artifacts
type Extractor struct {
	agent
}

// NewExtractor creates a new single-artifact extractor
func NewExtractor(model VisionModel, opts ...Option) *Extractor {
	return &Extractor{agent: newAgent(model, opts)}
}

// Extract runs one batched call over all targets. Each returned extraction
// carries exactly the category's configured slots, in configuration order.
func (e *Extractor) Extract(ctx context.Context, snap *rules.Snapshot, targets []ExtractionTarget) ([]Extraction, error) {
	var eligible []ExtractionTarget
	slotsByCategory := make(map[string][]rules.ExtractionSlot)
	for _, t := range targets {
		et, ok := snap.EvidenceTypeByName(t.Category)
		if !ok || len(et.ExtractionSlots) == 0 {
			e.logger.Warn("no extraction slots configured", "category", t.Category, "url", t.URL)
			continue
		}
		slotsByCategory[t.Category] = et.ExtractionSlots
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	urls := make([]string, len(eligible))
	byURL := make(map[string]ExtractionTarget, len(eligible))
	for i, t := range eligible {
		urls[i] = t.URL
		byURL[t.URL] = t
	}

	var resp extractResponse
	sent, err := e.call(ctx, extractPrompt(eligible, slotsByCategory), urls, &resp)
	if err != nil {
		return nil, err
	}

	idx := newURLIndex(sent)
	seen := make(map[string]bool, len(resp.Results))
	out := make([]Extraction, 0, len(resp.Results))
	for _, r := range resp.Results {
		u, ok := idx.resolve(r.ImageURL)
		if !ok {
			e.logger.Warn("extractor returned an unknown url", "url", r.ImageURL)
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		t := byURL[u]
		conformedSlots := conformSlots(slotsByCategory[t.Category], r.Slots)
		slots := make(models.SlotRecords, 0, len(conformedSlots))
		for _, c := range conformedSlots {
			slots = append(slots, c.record)
		}
		out = append(out, Extraction{URL: u, Category: t.Category, Slots: slots})
	}
	return out, nil
}
