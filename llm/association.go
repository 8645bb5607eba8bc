package llm

import (
	"context"
	"strings"

	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/rules"
)

// AssociationSlot is an extracted slot together with the screenshots it cites
type AssociationSlot struct {
	Record        models.SlotRecord
	ReferenceURLs []string
}

// AssociationGroup is one conversation discovered in a batch of chat screenshots
type AssociationGroup struct {
	GroupName string
	// URLs in conversation order as emitted by the model
	URLs      []string
	Reasoning string
	Slots     []AssociationSlot
}

type associationResponse struct {
	Groups []struct {
		GroupName string    `json:"group_name" validate:"required"`
		ImageURLs []string  `json:"image_urls" validate:"required,min=1"`
		Reasoning string    `json:"reasoning"`
		Slots     []rawSlot `json:"slots" validate:"dive"`
	} `json:"groups" validate:"dive"`
}

// AssociationExtractor groups and orders chat screenshots, then extracts the
// chat-record slots per group
type AssociationExtractor struct {
	agent
}

// NewAssociationExtractor creates a new association extractor
func NewAssociationExtractor(model VisionModel, opts ...Option) *AssociationExtractor {
	return &AssociationExtractor{agent: newAgent(model, opts)}
}

// Extract runs one batched call over all screenshots. URLs the model emits
// that were not part of the batch are dropped; groups left without any URL
// are dropped too. Groups sharing a name are merged.
func (a *AssociationExtractor) Extract(ctx context.Context, snap *rules.Snapshot, urls []string) ([]AssociationGroup, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	var configured []rules.ExtractionSlot
	if et, ok := snap.EvidenceTypeByName(rules.CategoryChatRecord); ok {
		configured = et.ExtractionSlots
	}

	var resp associationResponse
	sent, err := a.call(ctx, associationPrompt(configured, len(urls)), urls, &resp)
	if err != nil {
		return nil, err
	}

	idx := newURLIndex(sent)
	var out []AssociationGroup
	byName := make(map[string]int)
	for _, g := range resp.Groups {
		name := strings.TrimSpace(g.GroupName)
		ordered := a.resolveAll(idx, g.ImageURLs)
		if len(ordered) == 0 {
			a.logger.Warn("association group without known screenshots", "group_name", name)
			continue
		}

		slots := make([]AssociationSlot, 0, len(configured))
		for _, c := range conformSlots(configured, g.Slots) {
			refs := a.resolveAll(idx, c.referenceURLs)
			if len(refs) == 0 {
				refs = ordered
			}
			slots = append(slots, AssociationSlot{Record: c.record, ReferenceURLs: refs})
		}

		if i, dup := byName[name]; dup {
			merged := &out[i]
			merged.URLs = appendUnique(merged.URLs, ordered...)
			for j := range merged.Slots {
				if merged.Slots[j].Record.Value() == normalize.Unknown && j < len(slots) && slots[j].Record.Value() != normalize.Unknown {
					merged.Slots[j] = slots[j]
				}
			}
			continue
		}
		byName[name] = len(out)
		out = append(out, AssociationGroup{GroupName: name, URLs: ordered, Reasoning: g.Reasoning, Slots: slots})
	}
	return out, nil
}

func (a *AssociationExtractor) resolveAll(idx urlIndex, urls []string) []string {
	var out []string
	for _, u := range urls {
		orig, ok := idx.resolve(u)
		if !ok {
			a.logger.Warn("association agent returned an unknown url", "url", u)
			continue
		}
		out = appendUnique(out, orig)
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
