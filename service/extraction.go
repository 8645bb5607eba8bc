package service

import (
	"context"
	"fmt"
	"time"

	"casefile-backend/llm"
	"casefile-backend/logger"
	"casefile-backend/models"
	"casefile-backend/rules"

	"github.com/google/uuid"
)

// extractItem is one artifact going through extraction under a given category
type extractItem struct {
	ev       *models.Evidence
	category string
	features models.SlotRecords
	done     bool
}

// groupResult is one conversation group found by the association agent
type groupResult struct {
	name        string
	reasoning   string
	evidenceIDs []uuid.UUID
	features    models.SlotRecords
}

// extraction routes artifacts to OCR, the single-image extractor or the
// association extractor. It owns no state between calls.
type extraction struct {
	ocr        OCR
	extractor  Extractor
	associator Associator
	logger     *logger.Logger
}

// routed partitions items by backend
type routed struct {
	ocr, single, association []*extractItem
}

func (x *extraction) route(items []*extractItem) routed {
	var r routed
	for _, it := range items {
		switch rules.RouteFor(it.category) {
		case rules.RouteOCR:
			if x.ocr != nil && x.ocr.Supports(it.category) {
				r.ocr = append(r.ocr, it)
			} else {
				r.single = append(r.single, it)
			}
		case rules.RouteAssociation:
			r.association = append(r.association, it)
		default:
			r.single = append(r.single, it)
		}
	}
	return r
}

// runOCR extracts serially; items the OCR missed are returned for the LLM fallback
func (x *extraction) runOCR(ctx context.Context, items []*extractItem, step func(i, n int)) []*extractItem {
	var missed []*extractItem
	for i, it := range items {
		if ctx.Err() != nil {
			missed = append(missed, items[i:]...)
			break
		}
		res := x.ocr.Extract(ctx, it.ev.FileURL, it.category)
		if res.Missed() {
			x.logger.Warn("ocr extraction missed, falling back to llm",
				"evidence_id", it.ev.ID, "category", it.category, "error", res.Error)
			missed = append(missed, it)
		} else {
			it.features = res.Slots
			it.done = true
		}
		if step != nil {
			step(i+1, len(items))
		}
	}
	return missed
}

// runSingle extracts all items in one batched call
func (x *extraction) runSingle(ctx context.Context, snap *rules.Snapshot, items []*extractItem) error {
	if len(items) == 0 {
		return nil
	}
	if x.extractor == nil {
		return fmt.Errorf("%w: extractor", ErrNotConfigured)
	}
	targets := make([]llm.ExtractionTarget, 0, len(items))
	byURL := make(map[string][]*extractItem, len(items))
	for _, it := range items {
		targets = append(targets, llm.ExtractionTarget{URL: it.ev.FileURL, Category: it.category})
		byURL[it.ev.FileURL] = append(byURL[it.ev.FileURL], it)
	}

	results, err := x.extractor.Extract(ctx, snap, targets)
	if err != nil {
		return err
	}
	for _, res := range results {
		matched := false
		for _, it := range byURL[res.URL] {
			if it.category == res.Category && !it.done {
				it.features = res.Slots
				it.done = true
				matched = true
			}
		}
		if !matched {
			x.logger.Warn("extraction result matched no artifact", "url", res.URL, "category", res.Category)
		}
	}
	return nil
}

// runAssociation sends every chat screenshot in one call. Each member
// artifact receives the records of the group(s) it belongs to.
func (x *extraction) runAssociation(ctx context.Context, snap *rules.Snapshot, items []*extractItem) ([]groupResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if x.associator == nil {
		return nil, fmt.Errorf("%w: association extractor", ErrNotConfigured)
	}
	urls := make([]string, 0, len(items))
	byURL := make(map[string]*extractItem, len(items))
	for _, it := range items {
		if _, dup := byURL[it.ev.FileURL]; dup {
			continue
		}
		urls = append(urls, it.ev.FileURL)
		byURL[it.ev.FileURL] = it
	}

	groups, err := x.associator.Extract(ctx, snap, urls)
	if err != nil {
		return nil, err
	}

	out := make([]groupResult, 0, len(groups))
	for _, g := range groups {
		res := groupResult{name: g.GroupName, reasoning: g.Reasoning}
		for _, u := range g.URLs {
			if it, ok := byURL[u]; ok {
				res.evidenceIDs = append(res.evidenceIDs, it.ev.ID)
			}
		}
		if len(res.evidenceIDs) == 0 {
			continue
		}
		for _, slot := range g.Slots {
			record := slot.Record
			refs := make([]uuid.UUID, 0, len(slot.ReferenceURLs))
			for _, u := range slot.ReferenceURLs {
				if it, ok := byURL[u]; ok {
					refs = append(refs, it.ev.ID)
				}
			}
			record.SlotGroupInfo = []models.SlotGroupInfo{{GroupName: g.GroupName, ReferenceEvidenceIDs: refs}}
			res.features = append(res.features, record)
		}
		for _, u := range g.URLs {
			it, ok := byURL[u]
			if !ok {
				continue
			}
			it.features = append(it.features, res.features.Clone()...)
			it.done = true
		}
		out = append(out, res)
	}
	return out, nil
}

// apply writes an item's extraction back to its artifact
func apply(it *extractItem, now time.Time) {
	it.ev.Features = it.features
	if it.ev.Features == nil {
		it.ev.Features = make(models.SlotRecords, 0)
	}
	ts := now
	it.ev.FeaturesExtractedAt = &ts
	it.ev.Status = it.ev.Status.Advance(models.EvidenceStatusFeaturesExtracted)
}

// applyClassification writes a classifier verdict to an artifact
func applyClassification(ev *models.Evidence, c llm.Classification, now time.Time) {
	category := c.EvidenceType
	confidence := c.Confidence
	reasoning := c.Reasoning
	ts := now
	ev.ClassificationCategory = &category
	ev.ClassificationConfidence = &confidence
	ev.ClassificationReasoning = &reasoning
	ev.ClassifiedAt = &ts
	ev.Status = ev.Status.Advance(models.EvidenceStatusClassified)
}
