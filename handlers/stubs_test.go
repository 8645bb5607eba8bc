package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"casefile-backend/chain"
	"casefile-backend/models"
	"casefile-backend/progress"
	"casefile-backend/rules"
	"casefile-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type stubIntake struct {
	mu       sync.Mutex
	requests []service.IntakeRequest
	classify []service.ClassifyOnlyRequest
	events   []progress.Event
	result   *service.IntakeResult
	err      error
}

func (s *stubIntake) Intake(ctx context.Context, req service.IntakeRequest) (*service.IntakeResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if req.OnProgress != nil {
		for _, e := range s.events {
			_ = req.OnProgress(ctx, e)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &service.IntakeResult{Evidences: []*models.Evidence{}, Cards: []*models.EvidenceCard{}}, nil
}

func (s *stubIntake) recorded() []service.IntakeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.IntakeRequest(nil), s.requests...)
}

func (s *stubIntake) ClassifyOnly(_ context.Context, req service.ClassifyOnlyRequest) (*service.IntakeResult, error) {
	s.mu.Lock()
	s.classify = append(s.classify, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := &service.IntakeResult{}
	for _, u := range req.URLs {
		out.Evidences = append(out.Evidences, &models.Evidence{ID: uuid.New(), CaseID: req.CaseID, FileURL: u})
	}
	return out, nil
}

type stubEvidences struct {
	list    []*models.Evidence
	file    *service.EvidenceFile
	deleted []uuid.UUID
	batch   []service.BatchDeleteRequest
	err     error
}

func (s *stubEvidences) ListEvidences(_ context.Context, caseID uuid.UUID) ([]*models.Evidence, error) {
	return s.list, s.err
}

func (s *stubEvidences) GetEvidenceFile(_ context.Context, id uuid.UUID) (*service.EvidenceFile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.file, nil
}

func (s *stubEvidences) DeleteEvidence(_ context.Context, id uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubEvidences) BatchDeleteEvidences(_ context.Context, req service.BatchDeleteRequest) (*service.BatchDeleteResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batch = append(s.batch, req)
	return &service.BatchDeleteResult{DeletedIDs: req.EvidenceIDs}, nil
}

type stubCards struct {
	lists   []service.ListCardsRequest
	rebinds []service.RebindRequest
	cards   []*models.EvidenceCard
	err     error
}

func (s *stubCards) List(_ context.Context, req service.ListCardsRequest) ([]*models.EvidenceCard, error) {
	s.lists = append(s.lists, req)
	return s.cards, s.err
}

func (s *stubCards) Rebind(_ context.Context, req service.RebindRequest) (*models.EvidenceCard, error) {
	s.rebinds = append(s.rebinds, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.EvidenceCard{ID: req.CardID, EvidenceIDs: req.EvidenceIDs}, nil
}

type stubTasks struct {
	mu        sync.Mutex
	started   []service.CastRequest
	processed chan uuid.UUID
	task      *models.CastingTask
	startErr  error
	getErr    error
}

func newStubTasks() *stubTasks {
	return &stubTasks{processed: make(chan uuid.UUID, 4)}
}

func (s *stubTasks) StartCast(_ context.Context, req service.CastRequest) (*models.CastingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = append(s.started, req)
	s.task = &models.CastingTask{ID: uuid.New(), CaseID: req.CaseID, EvidenceIDs: req.EvidenceIDs, Status: models.TaskStatusPending}
	return s.task, nil
}

func (s *stubTasks) ProcessCast(_ context.Context, taskID uuid.UUID, _ service.CastRequest) error {
	s.processed <- taskID
	return nil
}

func (s *stubTasks) GetTask(_ context.Context, id uuid.UUID) (*models.CastingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &models.CastingTask{ID: id, Status: models.TaskStatusCompleted}, nil
}

type stubChains struct {
	err error
}

func (s stubChains) Dashboard(_ context.Context, caseID uuid.UUID) (*chain.Dashboard, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &chain.Dashboard{CaseID: caseID, Chains: []chain.Chain{}}, nil
}

type stubSlots struct {
	updates []service.UpdateAssignmentRequest
	err     error
}

func (s *stubSlots) ListTemplates(context.Context, uuid.UUID) ([]rules.CardSlotTemplate, error) {
	return []rules.CardSlotTemplate{{TemplateID: "tpl"}}, s.err
}

func (s *stubSlots) GetSnapshot(_ context.Context, caseID uuid.UUID, templateID string) (*service.SlotSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.SlotSnapshot{CaseID: caseID, TemplateID: templateID, Assignments: map[string]*uuid.UUID{"a": nil}}, nil
}

func (s *stubSlots) UpdateAssignment(_ context.Context, req service.UpdateAssignmentRequest) (*service.SlotSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.updates = append(s.updates, req)
	return &service.SlotSnapshot{CaseID: req.CaseID, TemplateID: req.TemplateID, Assignments: map[string]*uuid.UUID{req.SlotID: req.CardID}}, nil
}

func (s *stubSlots) ResetSnapshot(context.Context, uuid.UUID, string) (int64, error) {
	return 3, s.err
}

type stubReloader struct {
	calls int
	err   error
}

func (s *stubReloader) ReloadAll() error {
	s.calls++
	return s.err
}
