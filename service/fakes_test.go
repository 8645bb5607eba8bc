package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"casefile-backend/llm"
	"casefile-backend/models"
	"casefile-backend/ocr"
	"casefile-backend/repository"
	"casefile-backend/rules"
	"casefile-backend/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func loadRules(t *testing.T) *rules.Snapshot {
	t.Helper()
	l := rules.NewLoader(rules.PathsIn("../config"))
	require.NoError(t, l.Load())
	return l.Snapshot()
}

type staticRules struct{ snap *rules.Snapshot }

func (r staticRules) Current() (*rules.Snapshot, error) { return r.snap, nil }

// clock advances by one millisecond per call
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: testNow} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// --- cases ---

type memCases struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*models.Case
}

func newMemCases(cs ...*models.Case) *memCases {
	m := &memCases{cases: make(map[uuid.UUID]*models.Case)}
	for _, c := range cs {
		m.cases[c.ID] = c
	}
	return m
}

func (m *memCases) GetByID(_ context.Context, id uuid.UUID) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	cp.Parties = append([]models.Party(nil), c.Parties...)
	return &cp, nil
}

func (m *memCases) UpdateParty(_ context.Context, p *models.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[p.CaseID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range c.Parties {
		if c.Parties[i].ID == p.ID {
			c.Parties[i] = *p
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memCases) party(caseID uuid.UUID, role models.PartyRole) models.Party {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.cases[caseID].Parties {
		if p.Role == role {
			return p
		}
	}
	return models.Party{}
}

func personCase() *models.Case {
	id := uuid.New()
	return &models.Case{
		ID:            id,
		CauseOfAction: models.CauseDebt,
		CreditorType:  models.PartyTypePerson,
		DebtorType:    models.PartyTypePerson,
		Parties: []models.Party{
			{ID: uuid.New(), CaseID: id, Role: models.RoleCreditor, PartyType: models.PartyTypePerson, Name: "张三"},
			{ID: uuid.New(), CaseID: id, Role: models.RoleDebtor, PartyType: models.PartyTypePerson, Name: "李四"},
		},
	}
}

// --- evidences ---

type memEvidences struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*models.Evidence
	order []uuid.UUID
	saves int
	// rejectChecked fails any save that carries a proofread artifact
	rejectChecked bool
}

func newMemEvidences() *memEvidences {
	return &memEvidences{rows: make(map[uuid.UUID]*models.Evidence)}
}

func copyEvidence(ev *models.Evidence) *models.Evidence {
	cp := *ev
	cp.Features = ev.Features.Clone()
	return &cp
}

func (m *memEvidences) Create(_ context.Context, ev *models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt, ev.UpdatedAt = testNow, testNow
	m.rows[ev.ID] = copyEvidence(ev)
	m.order = append(m.order, ev.ID)
	return nil
}

func (m *memEvidences) add(caseID uuid.UUID, name string) *models.Evidence {
	ev := &models.Evidence{
		CaseID:        caseID,
		FileURL:       "https://files.example.com/images/" + name,
		FileName:      name,
		FileExtension: extensionOf(name),
		Status:        models.EvidenceStatusUploaded,
		Features:      models.SlotRecords{},
	}
	_ = m.Create(context.Background(), ev)
	return ev
}

func (m *memEvidences) GetByID(_ context.Context, id uuid.UUID) (*models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyEvidence(ev), nil
}

func (m *memEvidences) get(id uuid.UUID) *models.Evidence {
	ev, _ := m.GetByID(context.Background(), id)
	return ev
}

func (m *memEvidences) GetByIDs(_ context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Evidence
	seen := make(map[uuid.UUID]bool)
	for _, id := range ids {
		ev, ok := m.rows[id]
		if !ok || ev.CaseID != caseID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, copyEvidence(ev))
	}
	return out, nil
}

func (m *memEvidences) ListByCase(_ context.Context, caseID uuid.UUID) ([]*models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Evidence
	for _, id := range m.order {
		if ev, ok := m.rows[id]; ok && ev.CaseID == caseID {
			out = append(out, copyEvidence(ev))
		}
	}
	return out, nil
}

func (m *memEvidences) SaveAll(_ context.Context, evs []*models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range evs {
		if _, ok := m.rows[ev.ID]; !ok {
			return repository.ErrNotFound
		}
		if m.rejectChecked && ev.Status == models.EvidenceStatusChecked {
			return errors.New("connection reset")
		}
	}
	for _, ev := range evs {
		m.rows[ev.ID] = copyEvidence(ev)
	}
	m.saves++
	return nil
}

func (m *memEvidences) Delete(_ context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Evidence
	for _, id := range ids {
		ev, ok := m.rows[id]
		if !ok || ev.CaseID != caseID {
			continue
		}
		delete(m.rows, id)
		out = append(out, ev)
	}
	return out, nil
}

func (m *memEvidences) ExistingIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// --- cards ---

type memCards struct {
	mu    sync.Mutex
	rows  []*models.EvidenceCard
	now   func() time.Time
	delay time.Duration
}

func newMemCards(now func() time.Time) *memCards {
	return &memCards{now: now}
}

func copyCard(c *models.EvidenceCard) *models.EvidenceCard {
	cp := *c
	cp.EvidenceIDs = append([]uuid.UUID(nil), c.EvidenceIDs...)
	cp.CardInfo.CardFeatures = c.CardInfo.CardFeatures.Clone()
	return &cp
}

func (m *memCards) Create(_ context.Context, card *models.EvidenceCard) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	card.ID = uuid.New()
	card.UpdatedTimes = 1
	card.CreatedAt = m.now()
	card.UpdatedAt = card.CreatedAt
	m.rows = append(m.rows, copyCard(card))
	return nil
}

func (m *memCards) GetByID(_ context.Context, id uuid.UUID) (*models.EvidenceCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.ID == id {
			return copyCard(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCards) FindByEvidenceSet(_ context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.EvidenceCard, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.EvidenceSetKey(ids)
	var out []*models.EvidenceCard
	for _, c := range m.rows {
		if c.CaseID == caseID && models.EvidenceSetKey(c.EvidenceIDs) == key {
			out = append(out, copyCard(c))
		}
	}
	return out, nil
}

func (m *memCards) Touch(_ context.Context, card *models.EvidenceCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.ID == card.ID {
			c.UpdatedTimes++
			next := m.now()
			if !next.After(c.UpdatedAt) {
				next = c.UpdatedAt.Add(time.Microsecond)
			}
			c.UpdatedAt = next
			card.UpdatedTimes, card.UpdatedAt = c.UpdatedTimes, c.UpdatedAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memCards) Update(_ context.Context, card *models.EvidenceCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.rows {
		if c.ID == card.ID {
			card.UpdatedTimes = c.UpdatedTimes + 1
			card.UpdatedAt = m.now()
			m.rows[i] = copyCard(card)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memCards) ListByCase(_ context.Context, caseID uuid.UUID, filter repository.CardFilter) ([]*models.EvidenceCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.EvidenceCard
	for _, c := range m.rows {
		if c.CaseID != caseID {
			continue
		}
		if filter.CardType != "" && c.CardInfo.CardType != filter.CardType {
			continue
		}
		if filter.IsAssociated != nil && c.CardInfo.CardIsAssociated != *filter.IsAssociated {
			continue
		}
		out = append(out, copyCard(c))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memCards) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- association groups ---

type memAssociations struct {
	mu   sync.Mutex
	rows map[string]*models.AssociationFeature
}

func newMemAssociations() *memAssociations {
	return &memAssociations{rows: make(map[string]*models.AssociationFeature)}
}

func (m *memAssociations) Upsert(_ context.Context, af *models.AssociationFeature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := af.CaseID.String() + "|" + af.GroupName
	if old, ok := m.rows[key]; ok {
		af.ID = old.ID
	} else {
		af.ID = uuid.New()
	}
	cp := *af
	m.rows[key] = &cp
	return nil
}

func (m *memAssociations) ListByCase(_ context.Context, caseID uuid.UUID) ([]*models.AssociationFeature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AssociationFeature
	for _, af := range m.rows {
		if af.CaseID == caseID {
			cp := *af
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupName < out[j].GroupName })
	return out, nil
}

// --- slot assignments ---

type memAssignments struct {
	mu   sync.Mutex
	rows map[string]*models.SlotAssignment
}

func newMemAssignments() *memAssignments {
	return &memAssignments{rows: make(map[string]*models.SlotAssignment)}
}

func (m *memAssignments) ListByTemplate(_ context.Context, caseID uuid.UUID, templateID string) ([]*models.SlotAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SlotAssignment
	for _, a := range m.rows {
		if a.CaseID == caseID && a.TemplateID == templateID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAssignments) Upsert(_ context.Context, a *models.SlotAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.Join([]string{a.CaseID.String(), a.TemplateID, a.SlotID}, "|")
	cp := *a
	m.rows[key] = &cp
	return nil
}

func (m *memAssignments) DeleteByTemplate(_ context.Context, caseID uuid.UUID, templateID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, a := range m.rows {
		if a.CaseID == caseID && a.TemplateID == templateID {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

// --- casting tasks ---

type memTasks struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.CastingTask
}

func newMemTasks() *memTasks {
	return &memTasks{rows: make(map[uuid.UUID]*models.CastingTask)}
}

func (m *memTasks) Create(_ context.Context, task *models.CastingTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = uuid.New()
	cp := *task
	cp.Steps = append(models.TaskSteps(nil), task.Steps...)
	m.rows[task.ID] = &cp
	return nil
}

func (m *memTasks) GetByID(_ context.Context, id uuid.UUID) (*models.CastingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *task
	cp.Steps = append(models.TaskSteps(nil), task.Steps...)
	return &cp, nil
}

func (m *memTasks) UpdateStatus(_ context.Context, id uuid.UUID, status models.CastingTaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = status
	return nil
}

func (m *memTasks) UpdateProgress(_ context.Context, id uuid.UUID, currentStep string, steps models.TaskSteps) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].CurrentStep = &currentStep
	m.rows[id].Steps = append(models.TaskSteps(nil), steps...)
	return nil
}

func (m *memTasks) Complete(_ context.Context, id uuid.UUID, cardIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = models.TaskStatusCompleted
	m.rows[id].CardIDs = cardIDs
	return nil
}

func (m *memTasks) Fail(_ context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = models.TaskStatusFailed
	m.rows[id].ErrorMessage = &msg
	return nil
}

// --- files ---

type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  map[string]bool
	deleted []string
}

func newMemFiles() *memFiles {
	return &memFiles{objects: make(map[string][]byte), failOn: make(map[string]bool)}
}

const filesBase = "https://files.example.com/"

func (m *memFiles) UploadFile(_ context.Context, data []byte, filename, folder string, _ storage.Disposition) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[filename] {
		return "", storage.ErrUploadFailed
	}
	if folder == "" {
		folder = storage.FolderForExtension(extensionOf(filename))
	}
	key := folder + "/" + filename
	m.objects[key] = data
	return filesBase + key, nil
}

func (m *memFiles) DeleteFile(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memFiles) BatchDelete(ctx context.Context, keys []string) error {
	for _, k := range keys {
		_ = m.DeleteFile(ctx, k)
	}
	return nil
}

func (m *memFiles) Fetch(_ context.Context, src string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[strings.TrimPrefix(src, filesBase)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memFiles) KeyFromURL(fileURL string) (string, bool) {
	if !strings.HasPrefix(fileURL, filesBase) {
		return "", false
	}
	return strings.TrimPrefix(fileURL, filesBase), true
}

// --- agents ---

type scriptedClassifier struct {
	mu      sync.Mutex
	verdict map[string]llm.Classification
	calls   [][]string
	err     error
}

func (c *scriptedClassifier) Classify(_ context.Context, _ *rules.Snapshot, urls []string) ([]llm.Classification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, urls)
	if c.err != nil {
		return nil, c.err
	}
	var out []llm.Classification
	for _, u := range urls {
		if v, ok := c.verdict[u]; ok {
			v.URL = u
			out = append(out, v)
		}
	}
	return out, nil
}

type scriptedExtractor struct {
	mu    sync.Mutex
	slots map[string]models.SlotRecords
	calls [][]llm.ExtractionTarget
	err   error
}

func (e *scriptedExtractor) Extract(_ context.Context, _ *rules.Snapshot, targets []llm.ExtractionTarget) ([]llm.Extraction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, targets)
	if e.err != nil {
		return nil, e.err
	}
	var out []llm.Extraction
	for _, t := range targets {
		if s, ok := e.slots[t.URL]; ok {
			out = append(out, llm.Extraction{URL: t.URL, Category: t.Category, Slots: s.Clone()})
		}
	}
	return out, nil
}

type scriptedAssociator struct {
	groups []llm.AssociationGroup
	calls  [][]string
}

func (a *scriptedAssociator) Extract(_ context.Context, _ *rules.Snapshot, urls []string) ([]llm.AssociationGroup, error) {
	a.calls = append(a.calls, urls)
	return a.groups, nil
}

type scriptedOCR struct {
	results map[string]ocr.Result
	calls   int
}

func (o *scriptedOCR) Supports(category string) bool {
	return category == rules.CategoryIDCard
}

func (o *scriptedOCR) Extract(_ context.Context, fileURL, _ string) ocr.Result {
	o.calls++
	if r, ok := o.results[fileURL]; ok {
		r.Slots = r.Slots.Clone()
		return r
	}
	return ocr.Result{Error: "no result"}
}

func slot(name, value string) models.SlotRecord {
	return models.SlotRecord{SlotName: name, SlotValue: models.StringPtr(value), SlotValueType: "string", Confidence: 0.9}
}

var errBoom = errors.New("boom")

var cardFilterAll = repository.CardFilter{}
