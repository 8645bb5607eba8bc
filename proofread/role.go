package proofread

import (
	"strings"

	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/rules"
)

// RoleMatch is the party an artifact was attributed to
type RoleMatch struct {
	Role     models.PartyRole
	Party    *models.Party
	RuleName string
	SlotName string
}

// MatchRole walks the role-tagging rules in order; the first rule whose
// matching parties all stand on one side wins. A rule matched by parties on
// both sides is ambiguous and skipped.
func MatchRole(features models.SlotRecords, roleRules []rules.SlotRoleRule, c *models.Case) (RoleMatch, bool) {
	if c == nil {
		return RoleMatch{}, false
	}
	for _, rr := range roleRules {
		slot, ok := features.Find(rr.SlotName)
		if !ok || normalize.IsEmpty(slot.Value()) {
			continue
		}
		var matched []*models.Party
		for _, p := range c.PartiesByRole("") {
			if !p.Role.Valid() {
				continue
			}
			if partyMatches(slot.Value(), p, rr.Rule) {
				matched = append(matched, p)
			}
		}
		if len(matched) == 0 || !sameRole(matched) {
			continue
		}
		return RoleMatch{Role: matched[0].Role, Party: matched[0], RuleName: rr.Rule.RuleName, SlotName: rr.SlotName}, true
	}
	return RoleMatch{}, false
}

func partyMatches(value string, p *models.Party, rule rules.RoleRule) bool {
	match := Strategy(rule.Strategy())
	all := rule.Condition() == rules.ConditionAll
	hits := 0
	for _, field := range rule.TargetFields {
		fv, ok := p.Field(field)
		if !ok || strings.TrimSpace(fv) == "" {
			if all {
				return false
			}
			continue
		}
		if match(value, fv) {
			hits++
			if !all {
				return true
			}
		} else if all {
			return false
		}
	}
	return all && hits > 0
}

func sameRole(parties []*models.Party) bool {
	for _, p := range parties[1:] {
		if p.Role != parties[0].Role {
			return false
		}
	}
	return true
}

// PropagateToParty copies mapped slot values into the party's fields. Empty,
// 未知 and masked values never overwrite. It returns the party fields that changed.
func PropagateToParty(p *models.Party, features models.SlotRecords, fieldMap map[string]string) []string {
	var changed []string
	for _, f := range features {
		field, ok := fieldMap[f.SlotName]
		if !ok {
			continue
		}
		v := strings.TrimSpace(f.Value())
		if normalize.IsEmpty(v) || strings.Contains(v, "*") {
			continue
		}
		if p.SetField(field, v) {
			changed = append(changed, field)
		}
	}
	return changed
}
