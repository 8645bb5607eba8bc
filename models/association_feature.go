package models

import (
	"time"

	"github.com/google/uuid"
)

// AssociationFeature is the persisted output of the multi-image association
// agent for one conversation group of a case
type AssociationFeature struct {
	ID                     uuid.UUID   `json:"id"`
	CaseID                 uuid.UUID   `json:"case_id"`
	GroupName              string      `json:"slot_group_name"`
	EvidenceType           string      `json:"evidence_type"`
	AssociationEvidenceIDs []uuid.UUID `json:"association_evidence_ids"`
	Features               SlotRecords `json:"evidence_features"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// References reports whether the group was built from the given artifact
func (a *AssociationFeature) References(evidenceID uuid.UUID) bool {
	for _, id := range a.AssociationEvidenceIDs {
		if id == evidenceID {
			return true
		}
	}
	return false
}
