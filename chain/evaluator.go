// Package chain evaluates whether the evidence gathered for a case satisfies
// the evidence chains configured for its cause of action and party types.
// Evaluation is a pure function of its inputs.
package chain

import (
	"math"
	"strings"
	"time"

	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/rules"

	"github.com/google/uuid"
)

// Catalog is the slice of the rule snapshot the evaluator reads
type Catalog interface {
	ChainsForCase(cause models.CauseOfAction, creditor, debtor models.PartyType) []rules.EvidenceChain
	EvidenceTypeByName(name string) (*rules.EvidenceType, bool)
	TypesMatch(a, b string) bool
}

// Proofread statuses of a candidate source, best first
const (
	ProofreadPassed    = "passed"
	ProofreadUnchecked = "unchecked"
	ProofreadFailed    = "failed"
)

type candidate struct {
	kind        string
	id          uuid.UUID
	category    string
	evidenceIDs []uuid.UUID
	features    models.SlotRecords
	role        models.PartyRole
	updated     time.Time
}

// Evaluate builds the dashboard for a case. Chains not configured for the
// case shape yield an empty chain list.
func Evaluate(cat Catalog, c *models.Case, evidences []models.Evidence, associations []models.AssociationFeature) Dashboard {
	d := Dashboard{CaseID: c.ID, Chains: []Chain{}}
	e := &evaluator{cat: cat}
	e.collect(evidences, associations)

	chains := cat.ChainsForCase(c.CauseOfAction, c.CreditorType, c.DebtorType)
	for _, cfg := range chains {
		ch := e.evaluateChain(cfg)
		d.Chains = append(d.Chains, ch)
		d.TotalRequirements += ch.TotalRequirements
		d.SatisfiedRequirements += ch.SatisfiedRequirements
		switch ch.FeasibilityStatus {
		case FeasibilityActivated:
			d.ActivatedChains++
			d.FeasibleChains++
		case FeasibilityFeasible:
			d.FeasibleChains++
		}
	}
	d.OverallCompletion = percent(d.SatisfiedRequirements, d.TotalRequirements)
	d.FeasibilityCompletion = percent(d.FeasibleChains, len(d.Chains))
	return d
}

type evaluator struct {
	cat        Catalog
	candidates []candidate
}

func (e *evaluator) collect(evidences []models.Evidence, associations []models.AssociationFeature) {
	categoryOf := make(map[uuid.UUID]string, len(evidences))
	for i := range evidences {
		ev := &evidences[i]
		if ev.Category() == "" {
			continue
		}
		categoryOf[ev.ID] = ev.Category()
		e.candidates = append(e.candidates, candidate{
			kind:        SourceEvidence,
			id:          ev.ID,
			category:    ev.Category(),
			evidenceIDs: []uuid.UUID{ev.ID},
			features:    ev.Features,
			role:        ev.RoleValue(),
			updated:     ev.LatestActivity(),
		})
	}
	for i := range associations {
		a := &associations[i]
		// only groups whose origin artifacts still exist as that category
		origin := false
		for _, id := range a.AssociationEvidenceIDs {
			if cat, ok := categoryOf[id]; ok && e.cat.TypesMatch(cat, a.EvidenceType) {
				origin = true
				break
			}
		}
		if !origin {
			continue
		}
		e.candidates = append(e.candidates, candidate{
			kind:        SourceAssociation,
			id:          a.ID,
			category:    a.EvidenceType,
			evidenceIDs: a.AssociationEvidenceIDs,
			features:    a.Features,
			updated:     a.UpdatedAt,
		})
	}
}

// unitResult counts the units of one top-level requirement
type unitResult struct {
	total     int
	satisfied int
}

func (e *evaluator) evaluateChain(cfg rules.EvidenceChain) Chain {
	ch := Chain{
		ChainID:      cfg.ChainID,
		ChainName:    cfg.ChainName,
		Description:  cfg.Description,
		Requirements: []Requirement{},
	}

	// or-group members collapse into one requirement at the first member's position
	groupIndex := make(map[string]int)
	var members [][]rules.ChainRequirement
	var order []int // or-group i is stored as -(i+1)
	var plain []rules.ChainRequirement
	for _, entry := range cfg.RequiredEvidenceTypes {
		if entry.OrGroup == "" {
			plain = append(plain, entry)
			order = append(order, len(plain)-1)
			continue
		}
		idx, ok := groupIndex[entry.OrGroup]
		if !ok {
			idx = len(members)
			groupIndex[entry.OrGroup] = idx
			members = append(members, nil)
			order = append(order, -(idx + 1))
		}
		members[idx] = append(members[idx], entry)
	}

	allSatisfied, allActivated, anySource := true, true, false
	for _, o := range order {
		var req Requirement
		var u unitResult
		if o >= 0 {
			req = e.expand(plain[o])
			u = units(req)
		} else {
			req = e.orGroup(members[-o-1])
			u = unitResult{total: 1}
			if req.Status == StatusSatisfied {
				u.satisfied = 1
			}
		}
		ch.Requirements = append(ch.Requirements, req)
		ch.TotalRequirements += u.total
		ch.SatisfiedRequirements += u.satisfied
		if req.Status != StatusSatisfied {
			allSatisfied = false
		}
		if !req.activated {
			allActivated = false
		}
		if hasSource(req) {
			anySource = true
		}
	}

	ch.CompletionPercentage = percent(ch.SatisfiedRequirements, ch.TotalRequirements)
	switch {
	case allSatisfied && allActivated:
		ch.FeasibilityStatus = FeasibilityActivated
	case allSatisfied:
		ch.FeasibilityStatus = FeasibilityFeasible
	default:
		ch.FeasibilityStatus = FeasibilityIncomplete
	}
	switch {
	case allSatisfied:
		ch.Status = ChainCompleted
	case anySource:
		ch.Status = ChainInProgress
	default:
		ch.Status = ChainNotStarted
	}
	return ch
}

// expand turns one chain entry into a plain leaf or a role-group
func (e *evaluator) expand(entry rules.ChainRequirement) Requirement {
	if len(entry.RoleGroup) == 0 {
		return e.leaf(entry, "")
	}
	req := Requirement{
		Kind:            KindRoleGroup,
		EvidenceType:    entry.EvidenceType,
		Roles:           entry.RoleGroup,
		SubRequirements: make([]Requirement, 0, len(entry.RoleGroup)),
	}
	satisfied, touched := 0, 0
	req.activated = true
	for _, role := range entry.RoleGroup {
		sub := e.leaf(entry, role)
		req.SubRequirements = append(req.SubRequirements, sub)
		if sub.Status == StatusSatisfied {
			satisfied++
		}
		if sub.Status != StatusMissing {
			touched++
		}
		if !sub.activated {
			req.activated = false
		}
	}
	switch {
	case satisfied == len(entry.RoleGroup):
		req.Status = StatusSatisfied
	case touched > 0:
		req.Status = StatusPartial
	default:
		req.Status = StatusMissing
	}
	return req
}

func (e *evaluator) orGroup(entries []rules.ChainRequirement) Requirement {
	names := make([]string, 0, len(entries))
	req := Requirement{Kind: KindOrGroup, SubGroups: make([]Requirement, 0, len(entries)), Status: StatusMissing}
	for _, entry := range entries {
		sub := e.expand(entry)
		names = appendUnique(names, entry.EvidenceType)
		req.SubGroups = append(req.SubGroups, sub)
		switch {
		case sub.Status == StatusSatisfied:
			req.Status = StatusSatisfied
			if sub.activated {
				req.activated = true
			}
		case sub.Status == StatusPartial && req.Status == StatusMissing:
			req.Status = StatusPartial
		}
	}
	req.EvidenceType = strings.Join(names, " 或 ")
	return req
}

func (e *evaluator) leaf(entry rules.ChainRequirement, role models.PartyRole) Requirement {
	req := Requirement{Kind: KindPlain, EvidenceType: entry.EvidenceType, Role: role, Status: StatusMissing, Slots: []SlotDetail{}}
	slotNames := e.slotNames(entry)
	core := make(map[string]bool, len(entry.CoreEvidenceSlot))
	for _, s := range entry.CoreEvidenceSlot {
		core[s] = true
	}

	var best *candidate
	var bestScore score
	for i := range e.candidates {
		cand := &e.candidates[i]
		if !e.cat.TypesMatch(cand.category, entry.EvidenceType) {
			continue
		}
		if role != "" && cand.role != role {
			continue
		}
		req.CandidateCount++
		s := scoreOf(cand, slotNames, core, role)
		if best == nil || s.better(bestScore) {
			best, bestScore = cand, s
		}
	}

	for _, name := range slotNames {
		detail := SlotDetail{SlotName: name, IsCore: core[name]}
		if best != nil {
			if rec, ok := best.features.Find(name); ok {
				detail.SlotValue = rec.SlotValue
				detail.IsConsistent = rec.SlotIsConsistent
				detail.Confidence = rec.Confidence
				detail.IsSatisfied = satisfied(rec)
			}
		}
		if detail.IsCore {
			req.CoreSlotsCount++
			if detail.IsSatisfied {
				req.CoreSlotsSatisfied++
			}
		} else {
			req.SupplementarySlotsCount++
			if detail.IsSatisfied {
				req.SupplementarySlotsSatisfied++
			}
		}
		req.Slots = append(req.Slots, detail)
	}
	if best == nil {
		return req
	}
	req.Source = &Source{Kind: best.kind, ID: best.id, EvidenceIDs: best.evidenceIDs, Proofread: bestScore.proofreadName}

	total := req.CoreSlotsCount + req.SupplementarySlotsCount
	totalSatisfied := req.CoreSlotsSatisfied + req.SupplementarySlotsSatisfied
	switch {
	case req.CoreSlotsCount > 0 && req.CoreSlotsSatisfied == req.CoreSlotsCount,
		req.CoreSlotsCount == 0 && total > 0 && totalSatisfied == total:
		req.Status = StatusSatisfied
	case totalSatisfied > 0:
		req.Status = StatusPartial
	}
	req.activated = req.Status == StatusSatisfied && req.SupplementarySlotsSatisfied == req.SupplementarySlotsCount
	return req
}

// slotNames lists the category's configured slots followed by any core slot
// the configuration does not name
func (e *evaluator) slotNames(entry rules.ChainRequirement) []string {
	var names []string
	if t, ok := e.cat.EvidenceTypeByName(entry.EvidenceType); ok {
		for _, s := range t.ExtractionSlots {
			names = append(names, s.SlotName)
		}
	}
	return appendUnique(names, entry.CoreEvidenceSlot...)
}

func satisfied(rec *models.SlotRecord) bool {
	if rec.SlotIsConsistent != nil && !*rec.SlotIsConsistent {
		return false
	}
	return !normalize.IsEmpty(rec.Value())
}

type score struct {
	proofread     int
	proofreadName string
	roleMatch     int
	quality       float64
	updated       time.Time
	id            string
}

func (s score) better(o score) bool {
	if s.proofread != o.proofread {
		return s.proofread > o.proofread
	}
	if s.roleMatch != o.roleMatch {
		return s.roleMatch > o.roleMatch
	}
	if s.quality != o.quality {
		return s.quality > o.quality
	}
	if !s.updated.Equal(o.updated) {
		return s.updated.After(o.updated)
	}
	return s.id < o.id
}

func scoreOf(c *candidate, slotNames []string, core map[string]bool, role models.PartyRole) score {
	s := score{updated: c.updated, id: c.id.String()}
	s.proofreadName, s.proofread = proofreadStatus(c.features)
	if role == "" || c.role == role {
		s.roleMatch = 1
	}

	var coreN, coreOK, totalOK, confN int
	var confSum float64
	for _, name := range slotNames {
		rec, ok := c.features.Find(name)
		ok = ok && satisfied(rec)
		if core[name] {
			coreN++
			if ok {
				coreOK++
			}
		}
		if ok {
			totalOK++
			confSum += rec.Confidence
			confN++
		}
	}
	totalPct := ratio(totalOK, len(slotNames))
	corePct := totalPct
	if coreN > 0 {
		corePct = ratio(coreOK, coreN)
	}
	avgConf := 0.0
	if confN > 0 {
		avgConf = confSum / float64(confN)
	}
	s.quality = 0.7*corePct + 0.2*totalPct + 0.1*avgConf
	return s
}

// proofreadStatus ranks a source: every checked slot passed > nothing
// checked > any slot failed
func proofreadStatus(features models.SlotRecords) (string, int) {
	checked, failed := 0, 0
	for _, f := range features {
		if f.SlotIsConsistent == nil {
			continue
		}
		checked++
		if !*f.SlotIsConsistent {
			failed++
		}
	}
	switch {
	case failed > 0:
		return ProofreadFailed, 0
	case checked == 0:
		return ProofreadUnchecked, 1
	default:
		return ProofreadPassed, 2
	}
}

func units(req Requirement) unitResult {
	if req.Kind == KindRoleGroup {
		u := unitResult{total: len(req.SubRequirements)}
		for _, sub := range req.SubRequirements {
			if sub.Status == StatusSatisfied {
				u.satisfied++
			}
		}
		return u
	}
	u := unitResult{total: 1}
	if req.Status == StatusSatisfied {
		u.satisfied = 1
	}
	return u
}

func hasSource(req Requirement) bool {
	if req.Source != nil {
		return true
	}
	for _, sub := range req.SubGroups {
		if hasSource(sub) {
			return true
		}
	}
	for _, sub := range req.SubRequirements {
		if hasSource(sub) {
			return true
		}
	}
	return false
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func percent(n, d int) float64 {
	return math.Round(ratio(n, d)*10000) / 100
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range list {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, item)
		}
	}
	return list
}
