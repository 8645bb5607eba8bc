package service

import (
	"context"
	"testing"

	"casefile-backend/models"
	"casefile-backend/rules"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personTemplate = "debt_iou_person_person"

func newSlotService(t *testing.T, f *fixture) *SlotAssignmentService {
	return NewSlotAssignmentService(
		SlotWithRules(staticRules{snap: loadRules(t)}),
		SlotWithCaseStore(f.cases),
		SlotWithCardStore(f.cards),
		SlotWithAssignmentStore(newMemAssignments()),
	)
}

func TestSlotAssignmentRoundTrip(t *testing.T) {
	f := newFixture(t)
	svc := newSlotService(t, f)
	ctx := context.Background()
	ev := f.evidences.add(f.c.ID, "id.jpg")
	card, _, err := f.cardService.UpdateOrCreate(ctx, f.c.ID, []uuid.UUID{ev.ID},
		models.CardInfo{CardType: rules.CategoryIDCard, CardFeatures: models.SlotRecords{}})
	require.NoError(t, err)

	snap, err := svc.GetSnapshot(ctx, f.c.ID, personTemplate)
	require.NoError(t, err)
	require.Contains(t, snap.Assignments, "creditor_id_card")
	assert.Nil(t, snap.Assignments["creditor_id_card"])
	assert.Contains(t, snap.Assignments, "借条")

	snap, err = svc.UpdateAssignment(ctx, UpdateAssignmentRequest{
		CaseID: f.c.ID, TemplateID: personTemplate, SlotID: "creditor_id_card", CardID: &card.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, snap.Assignments["creditor_id_card"])
	assert.Equal(t, card.ID, *snap.Assignments["creditor_id_card"])

	// unbinding keeps the row with a null card
	snap, err = svc.UpdateAssignment(ctx, UpdateAssignmentRequest{
		CaseID: f.c.ID, TemplateID: personTemplate, SlotID: "creditor_id_card",
	})
	require.NoError(t, err)
	assert.Nil(t, snap.Assignments["creditor_id_card"])

	_, err = svc.UpdateAssignment(ctx, UpdateAssignmentRequest{
		CaseID: f.c.ID, TemplateID: personTemplate, SlotID: "debtor_id_card", CardID: &card.ID,
	})
	require.NoError(t, err)
	n, err := svc.ResetSnapshot(ctx, f.c.ID, personTemplate)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snap, err = svc.GetSnapshot(ctx, f.c.ID, personTemplate)
	require.NoError(t, err)
	for slotID, cardID := range snap.Assignments {
		assert.Nil(t, cardID, slotID)
	}
}

func TestSlotAssignmentValidation(t *testing.T) {
	f := newFixture(t)
	svc := newSlotService(t, f)
	ctx := context.Background()

	_, err := svc.GetSnapshot(ctx, f.c.ID, "no_such_template")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = svc.GetSnapshot(ctx, uuid.New(), personTemplate)
	assert.ErrorIs(t, err, ErrCaseNotFound)

	_, err = svc.UpdateAssignment(ctx, UpdateAssignmentRequest{CaseID: f.c.ID, TemplateID: personTemplate, SlotID: "nope"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	missing := uuid.New()
	_, err = svc.UpdateAssignment(ctx, UpdateAssignmentRequest{
		CaseID: f.c.ID, TemplateID: personTemplate, SlotID: "creditor_id_card", CardID: &missing,
	})
	assert.ErrorIs(t, err, ErrCardNotFound)
}

func TestListTemplatesForCaseShape(t *testing.T) {
	f := newFixture(t)
	svc := newSlotService(t, f)

	templates, err := svc.ListTemplates(context.Background(), f.c.ID)
	require.NoError(t, err)
	var ids []string
	for _, tpl := range templates {
		ids = append(ids, tpl.TemplateID)
		assert.Equal(t, "debt", tpl.CauseOfAction)
	}
	assert.Contains(t, ids, personTemplate)
}

func TestListTemplatesServesSlotProofreadRules(t *testing.T) {
	f := newFixture(t)
	svc := newSlotService(t, f)

	templates, err := svc.ListTemplates(context.Background(), f.c.ID)
	require.NoError(t, err)
	var creditorCard *rules.TemplateCardType
	for _, tpl := range templates {
		if tpl.TemplateID != personTemplate {
			continue
		}
		for i := range tpl.CardTypes {
			if tpl.CardTypes[i].ID() == "creditor_id_card" {
				creditorCard = &tpl.CardTypes[i]
			}
		}
	}
	require.NotNil(t, creditorCard)
	require.NotEmpty(t, creditorCard.RequiredSlots)
	name := creditorCard.RequiredSlots[0]
	assert.Equal(t, "姓名", name.SlotName)
	require.Len(t, name.ProofreadRules, 1)
	assert.Equal(t, models.RoleCreditor, name.ProofreadRules[0].Role)
	assert.Equal(t, []string{"party_name"}, name.ProofreadRules[0].CaseFields)
}
