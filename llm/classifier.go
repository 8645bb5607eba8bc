package llm

import (
	"context"
	"strings"

	"casefile-backend/normalize"
	"casefile-backend/rules"
)

// Classification is the classifier's verdict for one URL
type Classification struct {
	URL          string  `json:"image_url"`
	EvidenceType string  `json:"evidence_type"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning    string  `json:"reasoning"`
}

// Known reports whether the verdict names a category. Empty, 未知 and
// non-positive confidence all mean "leave the artifact unchanged".
func (c Classification) Known() bool {
	return !normalize.IsEmpty(c.EvidenceType) && c.Confidence > 0
}

type classifyResponse struct {
	Results []Classification `json:"results" validate:"dive"`
}

// Classifier assigns an evidence category to each image
type Classifier struct {
	agent
}

// NewClassifier creates a new classifier
func NewClassifier(model VisionModel, opts ...Option) *Classifier {
	return &Classifier{agent: newAgent(model, opts)}
}

// Classify returns one verdict per input URL the model answered for, in
// input order. Results naming an unknown URL are dropped.
func (c *Classifier) Classify(ctx context.Context, snap *rules.Snapshot, urls []string) ([]Classification, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	var resp classifyResponse
	sent, err := c.call(ctx, classifyPrompt(snap.ClassificationGuide(), urls), urls, &resp)
	if err != nil {
		return nil, err
	}

	idx := newURLIndex(sent)
	byURL := make(map[string]Classification, len(resp.Results))
	for i, r := range resp.Results {
		u, ok := idx.resolve(r.URL)
		if !ok && r.URL == "" && len(resp.Results) == len(sent) {
			// answered positionally
			u, ok = sent[i], true
		}
		if !ok {
			c.logger.Warn("classifier returned an unknown url", "url", r.URL)
			continue
		}
		if _, dup := byURL[u]; dup {
			continue
		}
		r.URL = u
		r.EvidenceType = strings.TrimSpace(r.EvidenceType)
		if r.EvidenceType != "" && r.EvidenceType != normalize.Unknown {
			if t, known := snap.EvidenceTypeByName(r.EvidenceType); known {
				r.EvidenceType = t.TypeName
			} else {
				c.logger.Warn("classifier returned an unconfigured category", "url", u, "evidence_type", r.EvidenceType)
				r.EvidenceType = normalize.Unknown
				r.Confidence = 0
			}
		}
		byURL[u] = r
	}

	out := make([]Classification, 0, len(byURL))
	for _, u := range sent {
		if r, ok := byURL[u]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}
