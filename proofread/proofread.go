// Package proofread cross-checks extracted slot values against the facts a
// case declares, and tags artifacts with the role of the party they belong
// to. Everything here is a pure function of its arguments.
package proofread

import (
	"fmt"
	"strings"
	"time"

	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/rules"
)

// Result is the outcome of proofreading one artifact
type Result struct {
	Features   models.SlotRecords `json:"features"`
	Checked    int                `json:"checked"`
	Consistent int                `json:"consistent"`
	// Score is Consistent / Checked, or 0 when nothing was checked
	Score float64 `json:"score"`
}

// Check applies the category's case proofread rules to a copy of the
// artifact's features. Slots without rules, or whose rules are all skipped by
// role gating, are left untouched.
func Check(ev *models.Evidence, c *models.Case, cfgs []rules.SlotProofread, now time.Time) Result {
	features := ev.Features.Clone()
	res := Result{Features: features}
	if len(cfgs) == 0 || c == nil {
		return res
	}
	byName := make(map[string][]rules.CaseRule, len(cfgs))
	for _, cfg := range cfgs {
		byName[cfg.SlotName] = append(byName[cfg.SlotName], cfg.Rules...)
	}

	artifactRole := ev.RoleValue()
	for i := range features {
		slotRules, ok := byName[features[i].SlotName]
		if !ok {
			continue
		}
		verdict, applied := checkSlot(features[i].Value(), slotRules, artifactRole, c)
		if !applied {
			continue
		}
		ts := now
		consistent := verdict.consistent
		features[i].SlotIsConsistent = &consistent
		features[i].SlotProofreadAt = &ts
		features[i].SlotExpectedValue = verdict.expected
		reasoning := verdict.reasoning
		features[i].SlotProofreadReasoning = &reasoning

		res.Checked++
		if consistent {
			res.Consistent++
		}
	}
	if res.Checked > 0 {
		res.Score = float64(res.Consistent) / float64(res.Checked)
	}
	return res
}

type slotVerdict struct {
	consistent bool
	expected   *string
	reasoning  string
}

// checkSlot runs every applicable rule; the slot is consistent only when all
// of them pass
func checkSlot(value string, slotRules []rules.CaseRule, artifactRole models.PartyRole, c *models.Case) (slotVerdict, bool) {
	verdict := slotVerdict{consistent: true}
	var expected []string
	var reasons []string
	applied := false

	for _, rule := range slotRules {
		if rule.Role != "" && artifactRole != "" && rule.Role != artifactRole {
			continue
		}
		applied = true

		role := rule.Role
		if role == "" {
			role = artifactRole
		}
		prefix := ""
		if role != "" {
			prefix = "[" + role.Label() + "]"
		}

		var candidates []string
		for _, field := range rule.CaseFields {
			candidates = appendUnique(candidates, c.FieldValues(field, role)...)
		}
		expected = appendUnique(expected, candidates...)

		switch {
		case len(candidates) == 0:
			verdict.consistent = false
			reasons = append(reasons, fmt.Sprintf("%s规则「%s」：案件中没有可比对的%s", prefix, rule.RuleName, strings.Join(rule.CaseFields, "/")))
		case normalize.IsEmpty(value):
			verdict.consistent = false
			reasons = append(reasons, fmt.Sprintf("%s规则「%s」：未提取到该字段", prefix, rule.RuleName))
		case matches(value, candidates, rule):
			reasons = append(reasons, fmt.Sprintf("%s规则「%s」：提取值「%s」与案件信息一致", prefix, rule.RuleName, value))
		default:
			verdict.consistent = false
			reasons = append(reasons, fmt.Sprintf("%s规则「%s」：提取值「%s」与案件信息「%s」不一致", prefix, rule.RuleName, value, strings.Join(candidates, "或")))
		}
	}
	if !applied {
		return verdict, false
	}
	if len(expected) > 0 {
		joined := strings.Join(expected, "或")
		verdict.expected = &joined
	}
	verdict.reasoning = strings.Join(reasons, "；")
	return verdict, true
}

func matches(value string, candidates []string, rule rules.CaseRule) bool {
	match := Strategy(rule.Strategy())
	if rule.Condition() == rules.ConditionAll {
		for _, cand := range candidates {
			if !match(value, cand) {
				return false
			}
		}
		return true
	}
	for _, cand := range candidates {
		if match(value, cand) {
			return true
		}
	}
	return false
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
