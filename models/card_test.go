package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func slot(name, value string) SlotRecord {
	return SlotRecord{SlotName: name, SlotValue: StringPtr(value), SlotValueType: "string"}
}

func TestCardInfoEquivalentIgnoresOrderAndBookkeeping(t *testing.T) {
	consistent := true
	a := CardInfo{CardType: "身份证", CardFeatures: SlotRecords{slot("姓名", "张三"), slot("公民身份号码", "110101199001011234")}}
	b := CardInfo{CardType: "身份证", CardFeatures: SlotRecords{slot("公民身份号码", "110101199001011234"), slot("姓名", "张三")}}
	b.CardFeatures[0].Confidence = 0.42
	b.CardFeatures[1].Reasoning = "different wording"
	b.CardFeatures[1].SlotIsConsistent = &consistent

	assert.True(t, a.Equivalent(b))
}

func TestCardInfoEquivalentDetectsChanges(t *testing.T) {
	base := CardInfo{CardType: "身份证", CardFeatures: SlotRecords{slot("姓名", "张三")}}

	changedValue := CardInfo{CardType: "身份证", CardFeatures: SlotRecords{slot("姓名", "李四")}}
	assert.False(t, base.Equivalent(changedValue))

	changedType := CardInfo{CardType: "户籍档案", CardFeatures: SlotRecords{slot("姓名", "张三")}}
	assert.False(t, base.Equivalent(changedType))

	associated := base
	associated.CardIsAssociated = true
	assert.False(t, base.Equivalent(associated))

	nullValue := CardInfo{CardType: "身份证", CardFeatures: SlotRecords{{SlotName: "姓名", SlotValueType: "string"}}}
	emptyValue := CardInfo{CardType: "身份证", CardFeatures: SlotRecords{slot("姓名", "")}}
	assert.False(t, nullValue.Equivalent(emptyValue))
}

func TestCardInfoEquivalentGroupInfoIsASet(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	a := slot("欠款金额", "1000")
	a.SlotGroupInfo = []SlotGroupInfo{{GroupName: "老板", ReferenceEvidenceIDs: []uuid.UUID{id1, id2}}}
	b := slot("欠款金额", "1000")
	b.SlotGroupInfo = []SlotGroupInfo{
		{GroupName: "老板", ReferenceEvidenceIDs: []uuid.UUID{id2, id1}},
		{GroupName: "老板", ReferenceEvidenceIDs: []uuid.UUID{id1, id2}},
	}
	x := CardInfo{CardType: "微信聊天记录", CardIsAssociated: true, CardFeatures: SlotRecords{a}}
	y := CardInfo{CardType: "微信聊天记录", CardIsAssociated: true, CardFeatures: SlotRecords{b}}
	assert.True(t, x.Equivalent(y))

	c := slot("欠款金额", "1000")
	c.SlotGroupInfo = []SlotGroupInfo{{GroupName: "明天会更好", ReferenceEvidenceIDs: []uuid.UUID{id1, id2}}}
	z := CardInfo{CardType: "微信聊天记录", CardIsAssociated: true, CardFeatures: SlotRecords{c}}
	assert.False(t, x.Equivalent(z))
}

func TestEvidenceSetKeyAndMarkMissing(t *testing.T) {
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()
	assert.Equal(t, EvidenceSetKey([]uuid.UUID{id1, id2}), EvidenceSetKey([]uuid.UUID{id2, id1}))

	card := &EvidenceCard{EvidenceIDs: []uuid.UUID{id1, id2, id3}}
	card.MarkMissing(map[uuid.UUID]bool{id1: true, id3: true})
	assert.False(t, card.IsNormal)
	assert.Equal(t, []int{1}, card.MissingEvidenceIndices)

	card.MarkMissing(map[uuid.UUID]bool{id1: true, id2: true, id3: true})
	assert.True(t, card.IsNormal)
	assert.Empty(t, card.MissingEvidenceIndices)
}

func TestEvidenceStatusAdvanceNeverRegresses(t *testing.T) {
	s := EvidenceStatusFeaturesExtracted
	assert.Equal(t, EvidenceStatusFeaturesExtracted, s.Advance(EvidenceStatusClassified))
	assert.Equal(t, EvidenceStatusChecked, s.Advance(EvidenceStatusChecked))
	assert.Equal(t, EvidenceStatusClassified, EvidenceStatusUploaded.Advance(EvidenceStatusClassified))
}

func TestCaseFieldValues(t *testing.T) {
	amount := 1000.5
	c := &Case{
		LoanAmount: &amount,
		Parties: []Party{
			{Role: RoleCreditor, Name: "张三"},
			{Role: RoleDebtor, Name: "李四", CompanyName: "某某公司"},
			{Role: RoleDebtor, Name: ""},
		},
	}
	assert.Equal(t, []string{"1000.5"}, c.FieldValues("loan_amount", ""))
	assert.Equal(t, []string{"张三", "李四"}, c.FieldValues("party_name", ""))
	assert.Equal(t, []string{"李四"}, c.FieldValues("name", RoleDebtor))
	assert.Equal(t, []string{"某某公司"}, c.FieldValues("company_name", ""))
	assert.Empty(t, c.FieldValues("court", ""))
}
