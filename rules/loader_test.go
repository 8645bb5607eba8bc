package rules

import (
	"os"
	"path/filepath"
	"testing"

	"casefile-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefault(t *testing.T) *Snapshot {
	t.Helper()
	l := NewLoader(PathsIn("../config"))
	require.NoError(t, l.Load())
	snap, err := l.Current()
	require.NoError(t, err)
	return snap
}

func TestLoadShippedRuleFiles(t *testing.T) {
	snap := loadDefault(t)

	idCard, ok := snap.EvidenceTypeByName(CategoryIDCard)
	require.True(t, ok)
	slot, ok := idCard.Slot("公民身份号码")
	require.True(t, ok)
	assert.True(t, slot.SlotRequired)

	// aliases resolve to the canonical category
	alias, ok := snap.EvidenceTypeByName("居民身份证")
	require.True(t, ok)
	assert.Equal(t, CategoryIDCard, alias.TypeName)

	slots := snap.ExtractionSlotsByTypes([]string{CategoryIDCard, "不存在"})
	assert.Len(t, slots, 1)
	assert.NotEmpty(t, slots[CategoryIDCard])

	cfgs := snap.ProofreadConfigsByNames([]string{CategoryIDCard})
	require.Len(t, cfgs[CategoryIDCard], 2)
	assert.Equal(t, "姓名", cfgs[CategoryIDCard][0].SlotName)

	roleRules := snap.RoleRules(CategoryIDCard)
	require.Len(t, roleRules, 2)
	assert.Equal(t, "姓名", roleRules[0].SlotName)
}

func TestChainsForCase(t *testing.T) {
	snap := loadDefault(t)

	chains := snap.ChainsForCase(models.CauseDebt, models.PartyTypePerson, models.PartyTypePerson)
	ids := make([]string, 0, len(chains))
	for _, c := range chains {
		ids = append(ids, c.ChainID)
	}
	assert.Equal(t, []string{"debt_iou_person", "debt_chat_person"}, ids)

	// cached lookups return the same answer
	again := snap.ChainsForCase(models.CauseDebt, models.PartyTypePerson, models.PartyTypePerson)
	assert.Equal(t, chains, again)

	assert.Empty(t, snap.ChainsForCase(models.CauseContract, models.PartyTypePerson, models.PartyTypePerson))
}

func TestCardSlotTemplates(t *testing.T) {
	snap := loadDefault(t)
	c := &models.Case{CauseOfAction: models.CauseDebt, CreditorType: models.PartyTypePerson, DebtorType: models.PartyTypePerson}
	templates := snap.CardSlotTemplates(c)
	require.Len(t, templates, 2)

	tpl, ok := snap.CardSlotTemplateByID("debt_iou_person_person")
	require.True(t, ok)
	assert.True(t, tpl.HasSlot("creditor_id_card"))
	assert.True(t, tpl.HasSlot("借条"))
	assert.False(t, tpl.HasSlot("微信聊天记录"))
}

func TestTypesMatchAndRouting(t *testing.T) {
	snap := loadDefault(t)
	assert.True(t, snap.TypesMatch("户口本", CategoryHouseholdRegister))
	assert.True(t, snap.TypesMatch("借款凭证", "借据"))
	assert.False(t, snap.TypesMatch(CategoryIDCard, CategoryHouseholdRegister))
	assert.False(t, snap.TypesMatch("", ""))

	assert.Equal(t, RouteOCR, RouteFor(CategoryIDCard))
	assert.Equal(t, RouteOCR, RouteFor(CategoryVATInvoice))
	assert.Equal(t, RouteAssociation, RouteFor(CategoryChatRecord))
	assert.Equal(t, RouteLLM, RouteFor(CategoryHouseholdRegister))

	assert.Equal(t, models.PartyFieldIDCard, snap.PartyFieldMap(CategoryIDCard)["公民身份号码"])
	assert.Nil(t, snap.PartyFieldMap(CategoryVATInvoice))
}

func TestClassificationGuide(t *testing.T) {
	snap := loadDefault(t)
	guide := snap.ClassificationGuide()
	assert.Contains(t, guide, "未知")
	assert.Contains(t, guide, "### 1. 身份证")
	assert.Contains(t, guide, "决定性特征")
	assert.Contains(t, guide, "排除规则")
}

func copyConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{EvidenceTypesFile, EvidenceChainsFile, CardSlotTemplatesFile} {
		raw, err := os.ReadFile(filepath.Join("../config", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
	}
	return dir
}

func TestLoadErrors(t *testing.T) {
	dir := copyConfig(t)
	require.NoError(t, os.Remove(filepath.Join(dir, EvidenceChainsFile)))
	err := NewLoader(PathsIn(dir)).Load()
	assert.ErrorIs(t, err, ErrConfigMissing)

	dir = copyConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, EvidenceChainsFile), []byte("evidence_chains:\n  - chain_id: x\n    cause_of_action: lease\n"), 0o644))
	err = NewLoader(PathsIn(dir)).Load()
	assert.ErrorIs(t, err, ErrConfigInvalid)

	dir = copyConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, EvidenceTypesFile), []byte("evidence_types: [\n"), 0o644))
	err = NewLoader(PathsIn(dir)).Load()
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewLoader(PathsIn(dir)).Current()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestReloadSwapsSnapshotAtomically(t *testing.T) {
	dir := copyConfig(t)
	l := NewLoader(PathsIn(dir))
	require.NoError(t, l.Load())
	before := l.Snapshot()

	chains := `evidence_chains:
  - chain_id: only
    chain_name: 单一链条
    cause_of_action: debt
    required_evidence_types:
      - evidence_type: 借条
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, EvidenceChainsFile), []byte(chains), 0o644))
	require.NoError(t, l.ReloadEvidenceChains())
	after := l.Snapshot()

	assert.NotSame(t, before, after)
	assert.Len(t, before.Chains(), 4, "old snapshot must stay intact")
	require.Len(t, after.Chains(), 1)
	assert.Equal(t, "only", after.Chains()[0].ChainID)
	// untouched parts are shared
	_, ok := after.EvidenceTypeByName(CategoryIDCard)
	assert.True(t, ok)

	// a broken file keeps the previous snapshot
	require.NoError(t, os.WriteFile(filepath.Join(dir, EvidenceChainsFile), []byte("evidence_chains: []\n"), 0o644))
	assert.ErrorIs(t, l.ReloadEvidenceChains(), ErrConfigInvalid)
	assert.Same(t, after, l.Snapshot())
}
