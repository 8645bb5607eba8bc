package llm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/rules"
)

const missingReasoning = "未提取到信息"

// rawSlot is a slot as emitted by the model. slot_value may be a string,
// a number, a boolean or null.
type rawSlot struct {
	SlotName      string          `json:"slot_name" validate:"required"`
	SlotValue     json.RawMessage `json:"slot_value"`
	Confidence    float64         `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning     string          `json:"reasoning"`
	ReferenceURLs []string        `json:"reference_urls,omitempty"`
}

func (s rawSlot) value() string {
	raw := bytes.TrimSpace(s.SlotValue)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return strings.TrimSpace(string(raw))
}

// conformSlots projects model output onto the configured slot list: slots
// the configuration does not name are dropped, configured slots the model
// skipped are emitted as 未知, and numeric values lose trailing zeros.
func conformSlots(configured []rules.ExtractionSlot, emitted []rawSlot) []conformed {
	byName := make(map[string]rawSlot, len(emitted))
	for _, s := range emitted {
		name := strings.TrimSpace(s.SlotName)
		if _, dup := byName[name]; !dup {
			byName[name] = s
		}
	}

	out := make([]conformed, 0, len(configured))
	for _, cfg := range configured {
		rec := models.SlotRecord{
			SlotName:      cfg.SlotName,
			SlotValueType: cfg.ValueType(),
			SlotRequired:  cfg.SlotRequired,
		}
		s, ok := byName[cfg.SlotName]
		value := ""
		if ok {
			value = s.value()
			rec.Confidence = s.Confidence
			rec.Reasoning = s.Reasoning
		}
		if normalize.IsEmpty(value) {
			value = normalize.Unknown
			if rec.Reasoning == "" {
				rec.Reasoning = missingReasoning
			}
			rec.Confidence = 0
		} else if cfg.ValueType() == "number" {
			value = normalize.Number(value)
		}
		rec.SlotValue = models.StringPtr(value)
		out = append(out, conformed{record: rec, referenceURLs: s.ReferenceURLs})
	}
	return out
}

type conformed struct {
	record        models.SlotRecord
	referenceURLs []string
}
