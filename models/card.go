package models

import (
	"database/sql/driver"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CardInfo is the JSONB snapshot carried by an evidence card
type CardInfo struct {
	CardType         string      `json:"card_type"`
	CardIsAssociated bool        `json:"card_is_associated"`
	CardFeatures     SlotRecords `json:"card_features"`
}

// Value implements driver.Valuer for JSONB
func (c CardInfo) Value() (driver.Value, error) {
	if c.CardFeatures == nil {
		c.CardFeatures = SlotRecords{}
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB
func (c *CardInfo) Scan(value interface{}) error {
	*c = CardInfo{}
	if err := scanJSON(value, c); err != nil {
		return err
	}
	if c.CardFeatures == nil {
		c.CardFeatures = SlotRecords{}
	}
	return nil
}

// Equivalent reports whether two card snapshots denote the same card.
// Features are compared as a multiset of (slot_name, slot_value,
// slot_value_type, slot_group_info) where slot_group_info is itself an
// unordered set of (group_name, sorted reference ids). Confidence, reasoning
// and proofread bookkeeping are ignored, as are the row-level id, created_at,
// updated_at and updated_times which never enter card_info.
func (c CardInfo) Equivalent(other CardInfo) bool {
	return c.Fingerprint() == other.Fingerprint()
}

// Fingerprint is the canonical form used by Equivalent
func (c CardInfo) Fingerprint() string {
	keys := make([]string, 0, len(c.CardFeatures))
	for _, f := range c.CardFeatures {
		keys = append(keys, featureKey(f))
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(c.CardType)
	if c.CardIsAssociated {
		b.WriteString("|assoc")
	}
	for _, k := range keys {
		b.WriteString("\x1e")
		b.WriteString(k)
	}
	return b.String()
}

func featureKey(f SlotRecord) string {
	value := "\x00"
	if f.SlotValue != nil {
		value = *f.SlotValue
	}
	groups := make([]string, 0, len(f.SlotGroupInfo))
	seen := make(map[string]bool, len(f.SlotGroupInfo))
	for _, g := range f.SlotGroupInfo {
		ids := make([]string, 0, len(g.ReferenceEvidenceIDs))
		for _, id := range g.ReferenceEvidenceIDs {
			ids = append(ids, id.String())
		}
		sort.Strings(ids)
		k := g.GroupName + ":" + strings.Join(ids, ",")
		if !seen[k] {
			seen[k] = true
			groups = append(groups, k)
		}
	}
	sort.Strings(groups)
	return strings.Join([]string{f.SlotName, value, f.SlotValueType, strings.Join(groups, ";")}, "\x1f")
}

// EvidenceCard represents a deduplicated snapshot bundling one or more artifacts
type EvidenceCard struct {
	ID           uuid.UUID   `json:"id"`
	CaseID       uuid.UUID   `json:"case_id"`
	EvidenceIDs  []uuid.UUID `json:"evidence_ids"`
	CardInfo     CardInfo    `json:"card_info"`
	UpdatedTimes int         `json:"updated_times"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Derived on read from the current artifact set
	IsNormal               bool  `json:"is_normal"`
	MissingEvidenceIndices []int `json:"missing_evidence_indices"`
}

// EvidenceSetKey is the order-insensitive key of an evidence id list
func EvidenceSetKey(ids []uuid.UUID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// MarkMissing annotates the card against the set of artifacts that still exist
func (c *EvidenceCard) MarkMissing(existing map[uuid.UUID]bool) {
	c.MissingEvidenceIndices = make([]int, 0)
	for i, id := range c.EvidenceIDs {
		if !existing[id] {
			c.MissingEvidenceIndices = append(c.MissingEvidenceIndices, i)
		}
	}
	c.IsNormal = len(c.MissingEvidenceIndices) == 0
}
