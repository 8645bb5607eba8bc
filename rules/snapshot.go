package rules

import (
	"sort"
	"sync"

	"casefile-backend/models"
)

// SlotProofread pairs a slot with its case proofread rules
type SlotProofread struct {
	SlotName string     `json:"slot_name"`
	Rules    []CaseRule `json:"rules"`
}

// SlotRoleRule pairs a slot with one role-tagging rule
type SlotRoleRule struct {
	SlotName string
	Rule     RoleRule
}

type typeSet struct {
	ordered []EvidenceType
	byName  map[string]*EvidenceType
}

type chainSet struct {
	chains []EvidenceChain
}

type templateSet struct {
	templates []CardSlotTemplate
	byID      map[string]*CardSlotTemplate
}

type businessSet struct {
	aliases   aliasIndex
	partyMaps map[string]map[string]string
}

// Snapshot is an immutable view over the rule files. A pipeline invocation
// holds one snapshot for its whole duration; reloads build a new one.
type Snapshot struct {
	types     *typeSet
	chains    *chainSet
	templates *templateSet
	business  *businessSet

	guideOnce  sync.Once
	guide      string
	chainCache sync.Map // "cause|creditor|debtor" -> []EvidenceChain
}

func newSnapshot(types *typeSet, chains *chainSet, templates *templateSet, business *businessSet) *Snapshot {
	return &Snapshot{types: types, chains: chains, templates: templates, business: business}
}

func newTypeSet(list []EvidenceType) *typeSet {
	ts := &typeSet{ordered: list, byName: make(map[string]*EvidenceType, len(list))}
	for i := range ts.ordered {
		ts.byName[ts.ordered[i].TypeName] = &ts.ordered[i]
	}
	return ts
}

func newTemplateSet(list []CardSlotTemplate) *templateSet {
	ts := &templateSet{templates: list, byID: make(map[string]*CardSlotTemplate, len(list))}
	for i := range ts.templates {
		ts.byID[ts.templates[i].TemplateID] = &ts.templates[i]
	}
	return ts
}

func newBusinessSet(cfg BusinessConfig) *businessSet {
	return &businessSet{
		aliases:   buildAliasIndex(cfg.TypeAliases),
		partyMaps: mergePartyFieldMaps(cfg.PartyFieldMaps),
	}
}

// EvidenceTypes returns every configured category in file order
func (s *Snapshot) EvidenceTypes() []EvidenceType {
	return s.types.ordered
}

// EvidenceTypeByName returns the category configuration for name
func (s *Snapshot) EvidenceTypeByName(name string) (*EvidenceType, bool) {
	t, ok := s.types.byName[name]
	if !ok {
		t, ok = s.types.byName[s.business.aliases.canonical(name)]
	}
	return t, ok
}

// ExtractionSlotsByTypes returns the extraction slots of each known category
func (s *Snapshot) ExtractionSlotsByTypes(names []string) map[string][]ExtractionSlot {
	out := make(map[string][]ExtractionSlot, len(names))
	for _, name := range names {
		if t, ok := s.EvidenceTypeByName(name); ok {
			out[name] = t.ExtractionSlots
		}
	}
	return out
}

// ProofreadConfigsByNames returns, per category, the slots that carry case proofread rules
func (s *Snapshot) ProofreadConfigsByNames(names []string) map[string][]SlotProofread {
	out := make(map[string][]SlotProofread, len(names))
	for _, name := range names {
		t, ok := s.EvidenceTypeByName(name)
		if !ok {
			continue
		}
		var cfgs []SlotProofread
		for _, slot := range t.ExtractionSlots {
			if len(slot.ProofreadWithCase) > 0 {
				cfgs = append(cfgs, SlotProofread{SlotName: slot.SlotName, Rules: slot.ProofreadWithCase})
			}
		}
		if len(cfgs) > 0 {
			out[name] = cfgs
		}
	}
	return out
}

// RoleRules returns the case_party role-tagging rules of a category in slot order
func (s *Snapshot) RoleRules(category string) []SlotRoleRule {
	t, ok := s.EvidenceTypeByName(category)
	if !ok {
		return nil
	}
	var out []SlotRoleRule
	for _, slot := range t.ExtractionSlots {
		for _, r := range slot.ProofreadRules {
			if r.TargetType == TargetCaseParty {
				out = append(out, SlotRoleRule{SlotName: slot.SlotName, Rule: r})
			}
		}
	}
	return out
}

// ChainsForCase returns the chains applicable to the case shape, in file order
func (s *Snapshot) ChainsForCase(cause models.CauseOfAction, creditor, debtor models.PartyType) []EvidenceChain {
	key := string(cause) + "|" + string(creditor) + "|" + string(debtor)
	if cached, ok := s.chainCache.Load(key); ok {
		return cached.([]EvidenceChain)
	}
	var out []EvidenceChain
	for i := range s.chains.chains {
		if s.chains.chains[i].AppliesTo(cause, creditor, debtor) {
			out = append(out, s.chains.chains[i])
		}
	}
	s.chainCache.Store(key, out)
	return out
}

// Chains returns every configured chain
func (s *Snapshot) Chains() []EvidenceChain {
	return s.chains.chains
}

// CardSlotTemplates returns the templates applicable to the case
func (s *Snapshot) CardSlotTemplates(c *models.Case) []CardSlotTemplate {
	var out []CardSlotTemplate
	for i := range s.templates.templates {
		if s.templates.templates[i].AppliesTo(c.CauseOfAction, c.CreditorType, c.DebtorType) {
			out = append(out, s.templates.templates[i])
		}
	}
	return out
}

// CardSlotTemplateByID returns one template
func (s *Snapshot) CardSlotTemplateByID(id string) (*CardSlotTemplate, bool) {
	t, ok := s.templates.byID[id]
	return t, ok
}

// CanonicalType resolves aliases to the canonical category name
func (s *Snapshot) CanonicalType(name string) string {
	return s.business.aliases.canonical(name)
}

// TypesMatch reports whether two category names denote the same category
func (s *Snapshot) TypesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || s.CanonicalType(a) == s.CanonicalType(b)
}

// PartyFieldMap returns the slot→party-field map used for back-propagation
func (s *Snapshot) PartyFieldMap(category string) map[string]string {
	return s.business.partyMaps[s.CanonicalType(category)]
}

// TypeNames returns all category names sorted by classification priority
func (s *Snapshot) TypeNames() []string {
	list := make([]EvidenceType, len(s.types.ordered))
	copy(list, s.types.ordered)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Classification.Priority < list[j].Classification.Priority
	})
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.TypeName)
	}
	return names
}
