package rules

import (
	"casefile-backend/models"
)

// Match strategies used by role tagging and proofreading
const (
	MatchExact      = "exact"
	MatchFuzzy      = "fuzzy"
	MatchContains   = "contains"
	MatchStartsWith = "startswith"
	MatchEndsWith   = "endswith"
)

// Match conditions
const (
	ConditionAny = "any"
	ConditionAll = "all"
)

// TargetCaseParty marks a role-tagging rule that matches against case parties
const TargetCaseParty = "case_party"

// RoleRule is a proofread_rules entry: it tags an artifact with the role of
// the party whose fields match the slot value.
type RoleRule struct {
	RuleName       string   `yaml:"rule_name" validate:"required"`
	TargetType     string   `yaml:"target_type" validate:"required"`
	TargetFields   []string `yaml:"target_fields" validate:"required,min=1"`
	MatchStrategy  string   `yaml:"match_strategy" validate:"omitempty,oneof=exact contains startswith endswith"`
	MatchCondition string   `yaml:"match_condition" validate:"omitempty,oneof=any all"`
}

// Strategy returns the configured strategy, defaulting to exact
func (r RoleRule) Strategy() string {
	if r.MatchStrategy == "" {
		return MatchExact
	}
	return r.MatchStrategy
}

// Condition returns the configured condition, defaulting to any
func (r RoleRule) Condition() string {
	if r.MatchCondition == "" {
		return ConditionAny
	}
	return r.MatchCondition
}

// CaseRule is a proofread_with_case entry: it checks a slot value against case fields.
type CaseRule struct {
	RuleName       string           `yaml:"rule_name" json:"rule_name" validate:"required"`
	CaseFields     []string         `yaml:"case_fields" json:"case_fields" validate:"required,min=1"`
	MatchStrategy  string           `yaml:"match_strategy" json:"match_strategy" validate:"omitempty,oneof=exact fuzzy"`
	MatchCondition string           `yaml:"match_condition" json:"match_condition" validate:"omitempty,oneof=any all"`
	Role           models.PartyRole `yaml:"role" json:"role,omitempty" validate:"omitempty,oneof=creditor debtor"`
}

// Strategy returns the configured strategy, defaulting to exact
func (r CaseRule) Strategy() string {
	if r.MatchStrategy == "" {
		return MatchExact
	}
	return r.MatchStrategy
}

// Condition returns the configured condition, defaulting to any
func (r CaseRule) Condition() string {
	if r.MatchCondition == "" {
		return ConditionAny
	}
	return r.MatchCondition
}

// ExtractionSlot describes one field to extract from a category
type ExtractionSlot struct {
	SlotName          string     `yaml:"slot_name" json:"slot_name" validate:"required"`
	SlotDesc          string     `yaml:"slot_desc" json:"slot_desc"`
	SlotValueType     string     `yaml:"slot_value_type" json:"slot_value_type" validate:"omitempty,oneof=string number date boolean"`
	SlotRequired      bool       `yaml:"slot_required" json:"slot_required"`
	ProofreadRules    []RoleRule `yaml:"proofread_rules" json:"-" validate:"dive"`
	ProofreadWithCase []CaseRule `yaml:"proofread_with_case" json:"-" validate:"dive"`
}

// ValueType returns the configured value type, defaulting to string
func (s ExtractionSlot) ValueType() string {
	if s.SlotValueType == "" {
		return "string"
	}
	return s.SlotValueType
}

// FeatureSet groups visual and textual cues used for classification
type FeatureSet struct {
	Visual  []string `yaml:"visual"`
	Textual []string `yaml:"textual"`
}

// Empty reports whether the set carries no cues
func (f FeatureSet) Empty() bool {
	return len(f.Visual) == 0 && len(f.Textual) == 0
}

// Classification holds the cues the classifier prompt is built from
type Classification struct {
	Decisive       FeatureSet `yaml:"decisive_features"`
	Important      FeatureSet `yaml:"important_features"`
	Common         FeatureSet `yaml:"common_features"`
	ExclusionRules []string   `yaml:"exclusion_rules"`
	Priority       int        `yaml:"priority"`
}

// EvidenceType is the configuration of one evidence category
type EvidenceType struct {
	TypeName        string           `yaml:"type_name" validate:"required"`
	TypeKey         string           `yaml:"type_key"`
	Description     string           `yaml:"description"`
	Classification  Classification   `yaml:"classification"`
	ExtractionSlots []ExtractionSlot `yaml:"extraction_slots" validate:"dive"`
}

// Slot returns the extraction slot named name
func (t *EvidenceType) Slot(name string) (*ExtractionSlot, bool) {
	for i := range t.ExtractionSlots {
		if t.ExtractionSlots[i].SlotName == name {
			return &t.ExtractionSlots[i], true
		}
	}
	return nil, false
}

type evidenceTypesFile struct {
	EvidenceTypes []EvidenceType `yaml:"evidence_types" validate:"required,min=1,dive"`
}

// ChainRequirement is one entry of a chain's required_evidence_types
type ChainRequirement struct {
	EvidenceType     string             `yaml:"evidence_type" json:"evidence_type" validate:"required"`
	CoreEvidenceSlot []string           `yaml:"core_evidence_slot" json:"core_evidence_slot"`
	OrGroup          string             `yaml:"or_group" json:"or_group,omitempty"`
	RoleGroup        []models.PartyRole `yaml:"role_group" json:"role_group,omitempty" validate:"dive,oneof=creditor debtor"`
}

// EvidenceChain is a declarative bill of evidence for a case shape
type EvidenceChain struct {
	ChainID               string             `yaml:"chain_id" validate:"required"`
	ChainName             string             `yaml:"chain_name" validate:"required"`
	Description           string             `yaml:"description"`
	CauseOfAction         string             `yaml:"cause_of_action" validate:"required,oneof=contract debt"`
	CreditorTypes         []string           `yaml:"creditor_types" validate:"dive,oneof=person company individual"`
	DebtorTypes           []string           `yaml:"debtor_types" validate:"dive,oneof=person company individual"`
	RequiredEvidenceTypes []ChainRequirement `yaml:"required_evidence_types" validate:"required,min=1,dive"`
}

// AppliesTo reports whether the chain covers the cause and party-type combination.
// An empty type list matches any party type.
func (c *EvidenceChain) AppliesTo(cause models.CauseOfAction, creditor, debtor models.PartyType) bool {
	if c.CauseOfAction != string(cause) {
		return false
	}
	return containsOrEmpty(c.CreditorTypes, string(creditor)) && containsOrEmpty(c.DebtorTypes, string(debtor))
}

type evidenceChainsFile struct {
	EvidenceChains []EvidenceChain `yaml:"evidence_chains" validate:"required,min=1,dive"`
}

// TemplateSlot is a slot a card of the given type must fill. Its proofread
// rules are published with the template for clients to display.
type TemplateSlot struct {
	SlotName       string     `yaml:"slot_name" json:"slot_name" validate:"required"`
	ProofreadRules []CaseRule `yaml:"proofread_rules" json:"proofread_rules,omitempty" validate:"dive"`
}

// TemplateCardType is one bindable slot of a card-slot template
type TemplateCardType struct {
	SlotID        string           `yaml:"slot_id" json:"slot_id"`
	CardType      string           `yaml:"card_type" json:"card_type" validate:"required"`
	Role          models.PartyRole `yaml:"role" json:"role,omitempty" validate:"omitempty,oneof=creditor debtor"`
	RequiredSlots []TemplateSlot   `yaml:"required_slots" json:"required_slots" validate:"dive"`
}

// ID returns the slot id, defaulting to the card type
func (t TemplateCardType) ID() string {
	if t.SlotID != "" {
		return t.SlotID
	}
	return t.CardType
}

// CardSlotTemplate lists the cards that must be bound for a case shape
type CardSlotTemplate struct {
	TemplateID    string             `yaml:"template_id" json:"template_id" validate:"required"`
	TemplateName  string             `yaml:"template_name" json:"template_name"`
	CauseOfAction string             `yaml:"cause_of_action" json:"cause_of_action" validate:"required,oneof=contract debt"`
	KeyEvidence   string             `yaml:"key_evidence" json:"key_evidence"`
	CreditorType  string             `yaml:"creditor_type" json:"creditor_type" validate:"omitempty,oneof=person company individual"`
	DebtorType    string             `yaml:"debtor_type" json:"debtor_type" validate:"omitempty,oneof=person company individual"`
	CardTypes     []TemplateCardType `yaml:"card_types" json:"card_types" validate:"required,min=1,dive"`
}

// HasSlot reports whether slotID is one of the template's slots
func (t *CardSlotTemplate) HasSlot(slotID string) bool {
	for _, ct := range t.CardTypes {
		if ct.ID() == slotID {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the template covers the case shape
func (t *CardSlotTemplate) AppliesTo(cause models.CauseOfAction, creditor, debtor models.PartyType) bool {
	if t.CauseOfAction != string(cause) {
		return false
	}
	return (t.CreditorType == "" || t.CreditorType == string(creditor)) &&
		(t.DebtorType == "" || t.DebtorType == string(debtor))
}

type cardSlotTemplatesFile struct {
	Templates []CardSlotTemplate `yaml:"card_slot_templates" validate:"required,min=1,dive"`
}

// BusinessConfig carries the optional overrides of the built-in tables
type BusinessConfig struct {
	TypeAliases    map[string][]string          `yaml:"type_aliases"`
	PartyFieldMaps map[string]map[string]string `yaml:"party_field_maps"`
}

func containsOrEmpty(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
