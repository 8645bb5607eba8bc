package service

import (
	"context"
	"testing"

	"casefile-backend/models"
	"casefile-backend/rules"
	"casefile-backend/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceDeletion(t *testing.T) {
	f := newFixture(t)
	svc := NewEvidenceService(WithEvidenceStore(f.evidences), WithFileStore(f.files))
	ctx := context.Background()

	one := f.evidences.add(f.c.ID, "a.jpg")
	two := f.evidences.add(f.c.ID, "b.jpg")
	three := f.evidences.add(f.c.ID, "c.jpg")
	other := personCase()
	foreign := f.evidences.add(other.ID, "d.jpg")

	list, err := svc.ListEvidences(ctx, f.c.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, svc.DeleteEvidence(ctx, one.ID))
	assert.Equal(t, []string{"images/a.jpg"}, f.files.deleted)
	assert.ErrorIs(t, svc.DeleteEvidence(ctx, one.ID), ErrEvidenceNotFound)

	result, err := svc.BatchDeleteEvidences(ctx, BatchDeleteRequest{
		CaseID:      f.c.ID,
		EvidenceIDs: []uuid.UUID{two.ID, three.ID, foreign.ID},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{two.ID, three.ID}, result.DeletedIDs)
	assert.NotNil(t, f.evidences.get(foreign.ID))
	assert.Len(t, f.files.deleted, 3)

	_, err = svc.BatchDeleteEvidences(ctx, BatchDeleteRequest{CaseID: f.c.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChainDashboardReadsArtifacts(t *testing.T) {
	f := newFixture(t)
	svc := NewChainService(
		ChainWithRules(staticRules{snap: loadRules(t)}),
		ChainWithCaseStore(f.cases),
		ChainWithEvidenceStore(f.evidences),
		ChainWithAssociationStore(f.associations),
	)
	ev := f.classified(t, "id.jpg", rules.CategoryIDCard)
	ev.Features = models.SlotRecords{slot("姓名", "张三"), slot("公民身份号码", "110101199001011234")}
	creditor := models.RoleCreditor
	ev.Role = &creditor
	require.NoError(t, f.evidences.SaveAll(context.Background(), []*models.Evidence{ev}))

	first, err := svc.Dashboard(context.Background(), f.c.ID)
	require.NoError(t, err)
	assert.Equal(t, f.c.ID, first.CaseID)
	assert.NotEmpty(t, first.Chains)
	assert.Positive(t, first.SatisfiedRequirements)

	second, err := svc.Dashboard(context.Background(), f.c.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = svc.Dashboard(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestGetEvidenceFile(t *testing.T) {
	f := newFixture(t)
	svc := NewEvidenceService(WithEvidenceStore(f.evidences), WithFileStore(f.files))
	ctx := context.Background()

	url, err := f.files.UploadFile(ctx, []byte("png-bytes"), "a.png", "", storage.DispositionInline)
	require.NoError(t, err)
	ev := &models.Evidence{CaseID: f.c.ID, FileURL: url, FileName: "a.png", FileExtension: "png"}
	require.NoError(t, f.evidences.Create(ctx, ev))

	file, err := svc.GetEvidenceFile(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), file.Data)
	assert.Equal(t, ev.ID, file.Evidence.ID)

	gone := f.evidences.add(f.c.ID, "missing.png")
	_, err = svc.GetEvidenceFile(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrEvidenceNotFound)
}
