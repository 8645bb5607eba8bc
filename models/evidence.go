package models

import (
	"database/sql/driver"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EvidenceStatus represents the pipeline stage an artifact has reached
type EvidenceStatus string

const (
	EvidenceStatusUploaded          EvidenceStatus = "uploaded"
	EvidenceStatusClassified        EvidenceStatus = "classified"
	EvidenceStatusFeaturesExtracted EvidenceStatus = "features_extracted"
	EvidenceStatusChecked           EvidenceStatus = "checked"
)

// Rank orders statuses along the state machine
func (s EvidenceStatus) Rank() int {
	switch s {
	case EvidenceStatusClassified:
		return 1
	case EvidenceStatusFeaturesExtracted:
		return 2
	case EvidenceStatusChecked:
		return 3
	default:
		return 0
	}
}

// Advance returns next when it is further along than s, otherwise s
func (s EvidenceStatus) Advance(next EvidenceStatus) EvidenceStatus {
	if next.Rank() > s.Rank() {
		return next
	}
	return s
}

// SlotGroupInfo records which association group a slot came from
type SlotGroupInfo struct {
	GroupName            string      `json:"group_name"`
	ReferenceEvidenceIDs []uuid.UUID `json:"reference_evidence_ids"`
}

// SlotRecord is one extracted field of an artifact or card
type SlotRecord struct {
	SlotName               string          `json:"slot_name"`
	SlotValue              *string         `json:"slot_value"`
	SlotValueType          string          `json:"slot_value_type"`
	SlotRequired           bool            `json:"slot_required"`
	Confidence             float64         `json:"confidence"`
	Reasoning              string          `json:"reasoning"`
	SlotGroupInfo          []SlotGroupInfo `json:"slot_group_info,omitempty"`
	SlotIsConsistent       *bool           `json:"slot_is_consistent,omitempty"`
	SlotProofreadAt        *time.Time      `json:"slot_proofread_at,omitempty"`
	SlotExpectedValue      *string         `json:"slot_expected_value,omitempty"`
	SlotProofreadReasoning *string         `json:"slot_proofread_reasoning,omitempty"`
}

// Value returns the slot value or "" when it is null
func (r SlotRecord) Value() string {
	if r.SlotValue == nil {
		return ""
	}
	return *r.SlotValue
}

// StringPtr is a small helper for optional string fields
func StringPtr(s string) *string {
	return &s
}

// SlotRecords is the JSONB list of slot records
type SlotRecords []SlotRecord

// Value implements driver.Valuer for JSONB
func (s SlotRecords) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *SlotRecords) Scan(value interface{}) error {
	*s = make(SlotRecords, 0)
	return scanJSON(value, s)
}

// Find returns the first record named name
func (s SlotRecords) Find(name string) (*SlotRecord, bool) {
	for i := range s {
		if s[i].SlotName == name {
			return &s[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers can mutate records freely
func (s SlotRecords) Clone() SlotRecords {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		out := make(SlotRecords, len(s))
		copy(out, s)
		return out
	}
	var out SlotRecords
	_ = json.Unmarshal(raw, &out)
	return out
}

// Evidence represents one uploaded artifact and its derived metadata
type Evidence struct {
	ID                       uuid.UUID      `json:"id"`
	CaseID                   uuid.UUID      `json:"case_id"`
	FileURL                  string         `json:"file_url"`
	FileName                 string         `json:"file_name"`
	FileSize                 int64          `json:"file_size"`
	FileExtension            string         `json:"file_extension"`
	Status                   EvidenceStatus `json:"evidence_status"`
	ClassificationCategory   *string        `json:"classification_category,omitempty"`
	ClassificationConfidence *float64       `json:"classification_confidence,omitempty"`
	ClassificationReasoning  *string        `json:"classification_reasoning,omitempty"`
	ClassifiedAt             *time.Time     `json:"classified_at,omitempty"`
	Role                     *PartyRole     `json:"evidence_role,omitempty"`
	Features                 SlotRecords    `json:"evidence_features"`
	FeaturesExtractedAt      *time.Time     `json:"features_extracted_at,omitempty"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

// Category returns the classification category or ""
func (e *Evidence) Category() string {
	if e.ClassificationCategory == nil {
		return ""
	}
	return *e.ClassificationCategory
}

// RoleValue returns the tagged role or ""
func (e *Evidence) RoleValue() PartyRole {
	if e.Role == nil {
		return ""
	}
	return *e.Role
}

// IsImage reports whether the artifact is eligible for AI-assisted processing
func (e *Evidence) IsImage() bool {
	ext := e.FileExtension
	if ext == "" {
		ext = filepath.Ext(e.FileName)
	}
	return IsImageExtension(ext)
}

// LatestActivity is the freshest timestamp known for the artifact
func (e *Evidence) LatestActivity() time.Time {
	t := e.UpdatedAt
	if e.FeaturesExtractedAt != nil && e.FeaturesExtractedAt.After(t) {
		t = *e.FeaturesExtractedAt
	}
	return t
}

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "bmp": true, "webp": true, "gif": true, "tif": true, "tiff": true, "heic": true,
}

// IsImageExtension accepts extensions with or without the leading dot
func IsImageExtension(ext string) bool {
	return imageExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
}
