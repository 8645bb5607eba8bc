package chain

import (
	"encoding/json"
	"testing"
	"time"

	"casefile-backend/models"
	"casefile-backend/rules"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadRules(t *testing.T) *rules.Snapshot {
	t.Helper()
	l := rules.NewLoader(rules.PathsIn("../config"))
	require.NoError(t, l.Load())
	return l.Snapshot()
}

// fixedChains serves the shipped evidence types with a hand-picked chain list
type fixedChains struct {
	*rules.Snapshot
	chains []rules.EvidenceChain
}

func (f fixedChains) ChainsForCase(models.CauseOfAction, models.PartyType, models.PartyType) []rules.EvidenceChain {
	return f.chains
}

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func debtCase() *models.Case {
	return &models.Case{
		ID:            uuid.New(),
		CauseOfAction: models.CauseDebt,
		CreditorType:  models.PartyTypePerson,
		DebtorType:    models.PartyTypePerson,
	}
}

func record(name, value string, consistent *bool) models.SlotRecord {
	return models.SlotRecord{SlotName: name, SlotValue: models.StringPtr(value), Confidence: 0.9, SlotIsConsistent: consistent}
}

func boolPtr(b bool) *bool { return &b }

func evidence(category string, role models.PartyRole, updated time.Time, features ...models.SlotRecord) models.Evidence {
	ev := models.Evidence{
		ID:                     uuid.New(),
		Status:                 models.EvidenceStatusChecked,
		ClassificationCategory: models.StringPtr(category),
		Features:               features,
		UpdatedAt:              updated,
	}
	if role != "" {
		r := role
		ev.Role = &r
	}
	return ev
}

func TestOrGroupSatisfiedByAlternative(t *testing.T) {
	snap := loadRules(t)
	cat := fixedChains{Snapshot: snap, chains: []rules.EvidenceChain{{
		ChainID: "identity", ChainName: "身份", CauseOfAction: "debt",
		RequiredEvidenceTypes: []rules.ChainRequirement{
			{EvidenceType: "身份证", OrGroup: "creditor_identity", RoleGroup: []models.PartyRole{models.RoleCreditor}, CoreEvidenceSlot: []string{"姓名", "公民身份号码"}},
			{EvidenceType: "户籍档案", OrGroup: "creditor_identity", RoleGroup: []models.PartyRole{models.RoleCreditor}, CoreEvidenceSlot: []string{"姓名", "公民身份号码"}},
		},
	}}}
	household := evidence("户籍档案", models.RoleCreditor, base,
		record("姓名", "张三", boolPtr(true)),
		record("公民身份号码", "110101199001011234", boolPtr(true)),
		record("住址", "北京市东城区", nil),
	)

	d := Evaluate(cat, debtCase(), []models.Evidence{household}, nil)
	require.Len(t, d.Chains, 1)
	ch := d.Chains[0]
	require.Len(t, ch.Requirements, 1)

	group := ch.Requirements[0]
	assert.Equal(t, KindOrGroup, group.Kind)
	assert.Equal(t, "身份证 或 户籍档案", group.EvidenceType)
	assert.Equal(t, StatusSatisfied, group.Status)
	require.Len(t, group.SubGroups, 2)
	assert.Equal(t, StatusMissing, group.SubGroups[0].Status)
	assert.Equal(t, StatusSatisfied, group.SubGroups[1].Status)

	assert.Equal(t, FeasibilityActivated, ch.FeasibilityStatus, "the missing ID card does not pull the chain down")
	assert.Equal(t, ChainCompleted, ch.Status)
	assert.Equal(t, 1, ch.TotalRequirements)
	assert.Equal(t, 100.0, ch.CompletionPercentage)
	assert.Equal(t, 1, d.FeasibleChains)
	assert.Equal(t, 1, d.ActivatedChains)
}

func TestRoleGroupPartial(t *testing.T) {
	snap := loadRules(t)
	creditorID := evidence("身份证", models.RoleCreditor, base,
		record("姓名", "张三", boolPtr(true)),
		record("公民身份号码", "110101199001011234", boolPtr(true)),
	)

	d := Evaluate(snap, debtCase(), []models.Evidence{creditorID}, nil)
	var chat *Chain
	for i := range d.Chains {
		if d.Chains[i].ChainID == "debt_chat_person" {
			chat = &d.Chains[i]
		}
	}
	require.NotNil(t, chat)

	roles := chat.Requirements[0]
	assert.Equal(t, KindRoleGroup, roles.Kind)
	assert.Equal(t, StatusPartial, roles.Status)
	require.Len(t, roles.SubRequirements, 2)
	assert.Equal(t, models.RoleCreditor, roles.SubRequirements[0].Role)
	assert.Equal(t, StatusSatisfied, roles.SubRequirements[0].Status)
	assert.Equal(t, StatusMissing, roles.SubRequirements[1].Status)
	assert.Equal(t, FeasibilityIncomplete, chat.FeasibilityStatus)
	assert.Equal(t, ChainInProgress, chat.Status)

	// role-group counts one unit per role: 2 roles + chat + transfer
	assert.Equal(t, 4, chat.TotalRequirements)
	assert.Equal(t, 1, chat.SatisfiedRequirements)
	assert.Equal(t, 25.0, chat.CompletionPercentage)
}

func TestSourcePreference(t *testing.T) {
	snap := loadRules(t)
	cat := fixedChains{Snapshot: snap, chains: []rules.EvidenceChain{{
		ChainID: "iou", ChainName: "借条", CauseOfAction: "debt",
		RequiredEvidenceTypes: []rules.ChainRequirement{
			{EvidenceType: "借条", CoreEvidenceSlot: []string{"出借人", "借款人", "借款金额"}},
		},
	}}}

	failed := evidence("借条", "", base.Add(3*time.Hour),
		record("出借人", "张三", boolPtr(false)),
		record("借款人", "李四", nil),
		record("借款金额", "1000", nil),
		record("借款日期", "2024-01-01", nil),
		record("约定还款日期", "2024-06-01", nil),
	)
	unchecked := evidence("借据", "", base,
		record("出借人", "张三", nil),
		record("借款人", "李四", nil),
		record("借款金额", "未知", nil),
	)
	passedOld := evidence("借条", "", base,
		record("出借人", "张三", boolPtr(true)),
		record("借款人", "李四", boolPtr(true)),
		record("借款金额", "1000", boolPtr(true)),
	)
	passedNew := passedOld
	passedNew.ID = uuid.New()
	passedNew.UpdatedAt = base.Add(time.Hour)

	d := Evaluate(cat, debtCase(), []models.Evidence{failed, unchecked, passedOld, passedNew}, nil)
	leaf := d.Chains[0].Requirements[0]
	require.NotNil(t, leaf.Source)
	assert.Equal(t, passedNew.ID, leaf.Source.ID, "passed beats failed; fresher wins ties")
	assert.Equal(t, ProofreadPassed, leaf.Source.Proofread)
	assert.Equal(t, 4, leaf.CandidateCount, "aliases count as the same category")
	assert.Equal(t, StatusSatisfied, leaf.Status)
	assert.Equal(t, 3, leaf.CoreSlotsSatisfied)
	assert.Equal(t, 0, leaf.SupplementarySlotsSatisfied)
	assert.Equal(t, FeasibilityFeasible, d.Chains[0].FeasibilityStatus)

	// without a passed source the unchecked one is preferred over the failed one
	d = Evaluate(cat, debtCase(), []models.Evidence{failed, unchecked}, nil)
	leaf = d.Chains[0].Requirements[0]
	assert.Equal(t, unchecked.ID, leaf.Source.ID)
	assert.Equal(t, StatusPartial, leaf.Status)
}

func TestAssociationFeaturesAreSources(t *testing.T) {
	snap := loadRules(t)
	cat := fixedChains{Snapshot: snap, chains: []rules.EvidenceChain{{
		ChainID: "chat", ChainName: "聊天", CauseOfAction: "debt",
		RequiredEvidenceTypes: []rules.ChainRequirement{{EvidenceType: "微信聊天记录", CoreEvidenceSlot: []string{"欠款金额"}}},
	}}}
	shot := evidence("微信聊天记录", "", base)
	group := models.AssociationFeature{
		ID:                     uuid.New(),
		GroupName:              "老板",
		EvidenceType:           "微信聊天记录",
		AssociationEvidenceIDs: []uuid.UUID{shot.ID},
		Features:               models.SlotRecords{record("欠款金额", "5000", nil)},
		UpdatedAt:              base,
	}
	orphan := group
	orphan.ID = uuid.New()
	orphan.AssociationEvidenceIDs = []uuid.UUID{uuid.New()}

	d := Evaluate(cat, debtCase(), []models.Evidence{shot}, []models.AssociationFeature{group, orphan})
	leaf := d.Chains[0].Requirements[0]
	assert.Equal(t, 2, leaf.CandidateCount, "groups whose artifacts are gone are ignored")
	require.NotNil(t, leaf.Source)
	assert.Equal(t, SourceAssociation, leaf.Source.Kind)
	assert.Equal(t, StatusSatisfied, leaf.Status)
}

func TestNoChainsAndDeterminism(t *testing.T) {
	snap := loadRules(t)
	c := debtCase()
	c.CauseOfAction = models.CauseContract
	d := Evaluate(snap, c, nil, nil)
	assert.Empty(t, d.Chains)
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chains":[]`)

	c = debtCase()
	evs := []models.Evidence{evidence("身份证", models.RoleCreditor, base, record("姓名", "张三", nil))}
	first, err := json.Marshal(Evaluate(snap, c, evs, nil))
	require.NoError(t, err)
	second, err := json.Marshal(Evaluate(snap, c, evs, nil))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
