package chain

import (
	"casefile-backend/models"

	"github.com/google/uuid"
)

// Requirement kinds
const (
	KindPlain     = "plain"
	KindOrGroup   = "or_group"
	KindRoleGroup = "role_group"
)

// Requirement statuses
const (
	StatusSatisfied = "satisfied"
	StatusPartial   = "partial"
	StatusMissing   = "missing"
)

// Chain statuses
const (
	ChainNotStarted = "not_started"
	ChainInProgress = "in_progress"
	ChainCompleted  = "completed"
)

// Feasibility statuses
const (
	FeasibilityIncomplete = "incomplete"
	FeasibilityFeasible   = "feasible"
	FeasibilityActivated  = "activated"
)

// Source kinds
const (
	SourceEvidence    = "evidence"
	SourceAssociation = "association"
)

// SlotDetail is the state of one slot of an adopted source
type SlotDetail struct {
	SlotName     string  `json:"slot_name"`
	SlotValue    *string `json:"slot_value"`
	IsCore       bool    `json:"is_core"`
	IsSatisfied  bool    `json:"is_satisfied"`
	IsConsistent *bool   `json:"is_consistent,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// Source identifies where a leaf requirement took its slot data from
type Source struct {
	Kind        string      `json:"kind"`
	ID          uuid.UUID   `json:"id"`
	EvidenceIDs []uuid.UUID `json:"evidence_ids"`
	Proofread   string      `json:"proofread_status"`
}

// Requirement is a node of the requirement tree: a plain leaf, an or-group
// of alternatives, or a role-group with one sub-requirement per role
type Requirement struct {
	Kind         string           `json:"kind"`
	EvidenceType string           `json:"evidence_type"`
	Role         models.PartyRole `json:"role,omitempty"`
	Status       string           `json:"status"`

	// leaves
	Slots                       []SlotDetail `json:"slots,omitempty"`
	Source                      *Source      `json:"source,omitempty"`
	CandidateCount              int          `json:"candidate_count"`
	CoreSlotsCount              int          `json:"core_slots_count"`
	CoreSlotsSatisfied          int          `json:"core_slots_satisfied"`
	SupplementarySlotsCount     int          `json:"supplementary_slots_count"`
	SupplementarySlotsSatisfied int          `json:"supplementary_slots_satisfied"`

	// or-groups
	SubGroups []Requirement `json:"sub_groups,omitempty"`

	// role-groups
	Roles           []models.PartyRole `json:"roles,omitempty"`
	SubRequirements []Requirement      `json:"sub_requirements,omitempty"`

	activated bool
}

// Chain is the evaluation of one evidence chain
type Chain struct {
	ChainID               string        `json:"chain_id"`
	ChainName             string        `json:"chain_name"`
	Description           string        `json:"description,omitempty"`
	Status                string        `json:"status"`
	FeasibilityStatus     string        `json:"feasibility_status"`
	CompletionPercentage  float64       `json:"completion_percentage"`
	TotalRequirements     int           `json:"total_requirements"`
	SatisfiedRequirements int           `json:"satisfied_requirements"`
	Requirements          []Requirement `json:"requirements"`
}

// Dashboard is the chain-readiness overview of a case
type Dashboard struct {
	CaseID                uuid.UUID `json:"case_id"`
	OverallCompletion     float64   `json:"overall_completion"`
	FeasibilityCompletion float64   `json:"feasibility_completion"`
	FeasibleChains        int       `json:"feasible_chains"`
	ActivatedChains       int       `json:"activated_chains"`
	TotalRequirements     int       `json:"total_requirements"`
	SatisfiedRequirements int       `json:"satisfied_requirements"`
	Chains                []Chain   `json:"chains"`
}
