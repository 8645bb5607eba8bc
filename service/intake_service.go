package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"casefile-backend/logger"
	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/progress"
	"casefile-backend/proofread"
	"casefile-backend/rules"
	"casefile-backend/storage"

	"github.com/google/uuid"
)

// Cumulative progress at the end of each intake stage
const (
	progressUploaded     = 5
	progressClassified   = 30
	progressOCR          = 55
	progressSingle       = 68
	progressAssociation  = 80
	progressTagged       = 90
	progressPartyUpdated = 93
	progressProofread    = 98
)

// IntakeService drives artifacts through upload, classification,
// extraction, role tagging, party back-propagation and proofreading
type IntakeService struct {
	rules        RuleSource
	cases        CaseStore
	evidences    EvidenceStore
	associations AssociationStore
	files        FileStore
	classifier   Classifier
	cards        *CardService
	extraction
	now func() time.Time
}

// IntakeServiceOption is a functional option for IntakeService
type IntakeServiceOption func(*IntakeService)

// IntakeWithRules sets the rule source
func IntakeWithRules(src RuleSource) IntakeServiceOption {
	return func(s *IntakeService) {
		s.rules = src
	}
}

// IntakeWithCaseStore sets the case store
func IntakeWithCaseStore(store CaseStore) IntakeServiceOption {
	return func(s *IntakeService) {
		s.cases = store
	}
}

// IntakeWithEvidenceStore sets the evidence store
func IntakeWithEvidenceStore(store EvidenceStore) IntakeServiceOption {
	return func(s *IntakeService) {
		s.evidences = store
	}
}

// IntakeWithAssociationStore sets the association group store
func IntakeWithAssociationStore(store AssociationStore) IntakeServiceOption {
	return func(s *IntakeService) {
		s.associations = store
	}
}

// IntakeWithFileStore sets the object storage uploads go to
func IntakeWithFileStore(files FileStore) IntakeServiceOption {
	return func(s *IntakeService) {
		s.files = files
	}
}

// IntakeWithClassifier sets the classifier agent
func IntakeWithClassifier(c Classifier) IntakeServiceOption {
	return func(s *IntakeService) {
		s.classifier = c
	}
}

// IntakeWithExtractor sets the single-image extractor agent
func IntakeWithExtractor(e Extractor) IntakeServiceOption {
	return func(s *IntakeService) {
		s.extractor = e
	}
}

// IntakeWithAssociator sets the association extractor agent
func IntakeWithAssociator(a Associator) IntakeServiceOption {
	return func(s *IntakeService) {
		s.associator = a
	}
}

// IntakeWithOCR sets the OCR adapter
func IntakeWithOCR(o OCR) IntakeServiceOption {
	return func(s *IntakeService) {
		s.ocr = o
	}
}

// IntakeWithCardService makes intake mint cards for what it extracted
func IntakeWithCardService(cards *CardService) IntakeServiceOption {
	return func(s *IntakeService) {
		s.cards = cards
	}
}

// IntakeWithLogger sets the logger
func IntakeWithLogger(l *logger.Logger) IntakeServiceOption {
	return func(s *IntakeService) {
		s.logger = l
	}
}

// IntakeWithClock overrides the time source
func IntakeWithClock(now func() time.Time) IntakeServiceOption {
	return func(s *IntakeService) {
		s.now = now
	}
}

// NewIntakeService creates a new intake service
func NewIntakeService(opts ...IntakeServiceOption) *IntakeService {
	s := &IntakeService{now: time.Now}
	s.logger = logger.Nop()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload is one file submitted for intake
type Upload struct {
	Name string
	Data []byte
}

// IntakeRequest represents a request to process artifacts of a case.
// Exactly one of Files and EvidenceIDs must be set.
type IntakeRequest struct {
	CaseID      uuid.UUID
	Files       []Upload
	EvidenceIDs []uuid.UUID
	Classify    bool
	Extract     bool
	OnProgress  progress.Func
}

// IntakeResult represents the result of an intake run
type IntakeResult struct {
	Evidences []*models.Evidence     `json:"evidences"`
	Cards     []*models.EvidenceCard `json:"cards"`
}

// intakeRun carries the state of one invocation
type intakeRun struct {
	snap      *rules.Snapshot
	c         *models.Case
	evidences []*models.Evidence
	tracker   *progress.Tracker
	log       *logger.Logger
}

// Intake runs the pipeline. Per-artifact failures are logged and skipped;
// a failing agent call aborts the run after the stages before it were
// committed, and the error is also emitted as a progress event.
func (s *IntakeService) Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if (len(req.Files) == 0) == (len(req.EvidenceIDs) == 0) {
		return nil, invalid("exactly one of files and evidence_ids must be provided")
	}

	run, err := s.start(ctx, req.CaseID, req.OnProgress)
	if err != nil {
		return nil, err
	}

	if len(req.Files) > 0 {
		if err := s.ingest(ctx, run, req.Files); err != nil {
			return nil, run.fail(ctx, err)
		}
	} else {
		evs, err := s.evidences.GetByIDs(ctx, req.CaseID, req.EvidenceIDs)
		if err != nil {
			return nil, run.fail(ctx, fmt.Errorf("failed to load evidences: %w", err))
		}
		if len(evs) == 0 {
			return nil, run.fail(ctx, ErrEvidenceNotFound)
		}
		if len(evs) < len(req.EvidenceIDs) {
			run.log.Warn("some evidence ids were not found", "requested", len(req.EvidenceIDs), "found", len(evs))
		}
		run.evidences = evs
		run.tracker.Emit(ctx, progress.StatusUploading, fmt.Sprintf("已载入 %d 个证据", len(evs)), progressUploaded)
	}

	return s.process(ctx, run, req.Classify, req.Extract)
}

// ClassifyOnlyRequest represents a request to classify images by URL.
// URLs without an artifact in the case are registered as new artifacts.
type ClassifyOnlyRequest struct {
	CaseID     uuid.UUID
	URLs       []string
	OnProgress progress.Func
}

// ClassifyOnly classifies the artifacts behind the given URLs
func (s *IntakeService) ClassifyOnly(ctx context.Context, req ClassifyOnlyRequest) (*IntakeResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if len(req.URLs) == 0 {
		return nil, invalid("urls must not be empty")
	}
	run, err := s.start(ctx, req.CaseID, req.OnProgress)
	if err != nil {
		return nil, err
	}

	existing, err := s.evidences.ListByCase(ctx, req.CaseID)
	if err != nil {
		return nil, run.fail(ctx, fmt.Errorf("failed to list evidences: %w", err))
	}
	byURL := make(map[string]*models.Evidence, len(existing))
	for _, ev := range existing {
		byURL[normalize.URLKey(ev.FileURL)] = ev
	}
	seen := make(map[string]bool, len(req.URLs))
	for _, u := range req.URLs {
		key := normalize.URLKey(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		if ev, ok := byURL[key]; ok {
			run.evidences = append(run.evidences, ev)
			continue
		}
		ev := &models.Evidence{
			CaseID:        req.CaseID,
			FileURL:       u,
			FileName:      path.Base(strings.SplitN(u, "?", 2)[0]),
			FileExtension: extensionOf(u),
			Status:        models.EvidenceStatusUploaded,
			Features:      make(models.SlotRecords, 0),
		}
		if err := s.evidences.Create(ctx, ev); err != nil {
			run.log.Warn("failed to register evidence", "url", u, "error", err)
			continue
		}
		run.evidences = append(run.evidences, ev)
	}
	run.tracker.Emit(ctx, progress.StatusUploading, fmt.Sprintf("已载入 %d 个证据", len(run.evidences)), progressUploaded)

	return s.process(ctx, run, true, false)
}

func (s *IntakeService) check() error {
	if s.rules == nil || s.cases == nil || s.evidences == nil {
		return fmt.Errorf("%w: rules, case and evidence stores are required", ErrNotConfigured)
	}
	return nil
}

func (s *IntakeService) start(ctx context.Context, caseID uuid.UUID, fn progress.Func) (*intakeRun, error) {
	snap, err := s.rules.Current()
	if err != nil {
		return nil, err
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, lookupError(err, ErrCaseNotFound, "case")
	}
	log := s.logger.With("case_id", caseID)
	return &intakeRun{
		snap: snap,
		c:    c,
		log:  log,
		tracker: progress.NewTracker(fn, func(err error) {
			log.Warn("progress sink failed", "error", err)
		}),
	}, nil
}

func (r *intakeRun) fail(ctx context.Context, err error) error {
	r.log.Error("intake aborted", "error", err)
	r.tracker.Fail(ctx, err.Error())
	return err
}

// ingest uploads files and registers them as artifacts
func (s *IntakeService) ingest(ctx context.Context, run *intakeRun, files []Upload) error {
	if s.files == nil {
		return fmt.Errorf("%w: file storage", ErrNotConfigured)
	}
	for i, f := range files {
		name := storage.SanitizeFilename(f.Name)
		fileURL, err := s.files.UploadFile(ctx, f.Data, name, "", storage.DispositionInline)
		if err != nil {
			run.log.Warn("upload failed, skipping file", "file_name", f.Name, "error", err)
		} else {
			ev := &models.Evidence{
				CaseID:        run.c.ID,
				FileURL:       fileURL,
				FileName:      name,
				FileSize:      int64(len(f.Data)),
				FileExtension: extensionOf(name),
				Status:        models.EvidenceStatusUploaded,
				Features:      make(models.SlotRecords, 0),
			}
			if err := s.evidences.Create(ctx, ev); err != nil {
				run.log.Warn("failed to register uploaded file", "file_name", f.Name, "error", err)
			} else {
				run.evidences = append(run.evidences, ev)
			}
		}
		run.tracker.Step(ctx, progress.StatusUploading, fmt.Sprintf("上传文件 %s", name),
			progress.Interpolate(0, progressUploaded, i+1, len(files)), i+1, len(files))
	}
	if len(run.evidences) == 0 {
		return fmt.Errorf("%w: no file could be uploaded", storage.ErrUploadFailed)
	}
	return nil
}

func (s *IntakeService) process(ctx context.Context, run *intakeRun, classify, extract bool) (*IntakeResult, error) {
	eligible := make([]*models.Evidence, 0, len(run.evidences))
	for _, ev := range run.evidences {
		if ev.IsImage() {
			eligible = append(eligible, ev)
		}
	}

	if classify {
		if err := s.classify(ctx, run, eligible); err != nil {
			return nil, run.fail(ctx, err)
		}
	}

	result := &IntakeResult{Evidences: run.evidences, Cards: make([]*models.EvidenceCard, 0)}
	if extract {
		cards, err := s.extractAndCheck(ctx, run, eligible)
		if err != nil {
			return nil, run.fail(ctx, err)
		}
		result.Cards = cards
	}

	run.tracker.Done(ctx, "处理完成", result)
	return result, nil
}

func (s *IntakeService) classify(ctx context.Context, run *intakeRun, eligible []*models.Evidence) error {
	run.tracker.Emit(ctx, progress.StatusClassifying, fmt.Sprintf("正在分类 %d 个证据", len(eligible)), progressUploaded)
	if len(eligible) == 0 {
		return nil
	}
	if s.classifier == nil {
		return fmt.Errorf("%w: classifier", ErrNotConfigured)
	}

	urls := make([]string, 0, len(eligible))
	byURL := make(map[string][]*models.Evidence, len(eligible))
	for _, ev := range eligible {
		if _, ok := byURL[ev.FileURL]; !ok {
			urls = append(urls, ev.FileURL)
		}
		byURL[ev.FileURL] = append(byURL[ev.FileURL], ev)
	}

	results, err := s.classifier.Classify(ctx, run.snap, urls)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	now := s.now()
	var changed []*models.Evidence
	for _, res := range results {
		if !res.Known() {
			continue
		}
		for _, ev := range byURL[res.URL] {
			applyClassification(ev, res, now)
			changed = append(changed, ev)
		}
	}
	if err := s.evidences.SaveAll(ctx, changed); err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}
	run.tracker.Emit(ctx, progress.StatusClassifying, fmt.Sprintf("已分类 %d 个证据", len(changed)), progressClassified)
	return nil
}

func (s *IntakeService) extractAndCheck(ctx context.Context, run *intakeRun, eligible []*models.Evidence) ([]*models.EvidenceCard, error) {
	items := make([]*extractItem, 0, len(eligible))
	for _, ev := range eligible {
		if category := ev.Category(); category != "" {
			items = append(items, &extractItem{ev: ev, category: category})
		}
	}
	r := s.route(items)
	run.tracker.Emit(ctx, progress.StatusExtracting, fmt.Sprintf("正在提取 %d 个证据的信息", len(items)), progressClassified)

	// OCR, serial per artifact
	single := r.single
	if len(r.ocr) > 0 {
		missed := s.runOCR(ctx, r.ocr, func(i, n int) {
			run.tracker.Step(ctx, progress.StatusExtracting, "OCR识别中",
				progress.Interpolate(progressClassified, progressOCR, i, n), i, n)
		})
		single = append(single, missed...)
		if err := s.commitExtracted(ctx, r.ocr); err != nil {
			return nil, err
		}
	}
	run.tracker.Emit(ctx, progress.StatusExtracting, "OCR识别完成", progressOCR)

	if err := s.runSingle(ctx, run.snap, single); err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}
	if err := s.commitExtracted(ctx, single); err != nil {
		return nil, err
	}
	run.tracker.Emit(ctx, progress.StatusExtracting, "单证据信息提取完成", progressSingle)

	groups, err := s.runAssociation(ctx, run.snap, r.association)
	if err != nil {
		return nil, fmt.Errorf("association extraction failed: %w", err)
	}
	if err := s.commitExtracted(ctx, r.association); err != nil {
		return nil, err
	}
	s.saveGroups(ctx, run, groups)
	run.tracker.Emit(ctx, progress.StatusExtracting, "聊天记录关联提取完成", progressAssociation)

	var fresh []*extractItem
	for _, it := range items {
		if it.done {
			fresh = append(fresh, it)
		}
	}

	matches, err := s.tagRoles(ctx, run, fresh)
	if err != nil {
		return nil, err
	}
	run.tracker.Emit(ctx, progress.StatusTagging, fmt.Sprintf("已标记 %d 个证据的当事人角色", len(matches)), progressTagged)

	s.updateParties(ctx, run, fresh, matches)
	run.tracker.Emit(ctx, progress.StatusUpdating, "当事人信息更新完成", progressPartyUpdated)

	if err := s.proofreadAll(ctx, run, fresh); err != nil {
		return nil, err
	}
	run.tracker.Emit(ctx, progress.StatusProofread, "校对完成", progressProofread)

	return s.mint(ctx, run, fresh, groups), nil
}

// commitExtracted persists the items that produced features
func (s *IntakeService) commitExtracted(ctx context.Context, items []*extractItem) error {
	now := s.now()
	var done []*models.Evidence
	for _, it := range items {
		if it.done {
			apply(it, now)
			done = append(done, it.ev)
		}
	}
	if err := s.evidences.SaveAll(ctx, done); err != nil {
		return fmt.Errorf("failed to save extracted features: %w", err)
	}
	return nil
}

func (s *IntakeService) saveGroups(ctx context.Context, run *intakeRun, groups []groupResult) {
	if s.associations == nil {
		return
	}
	for _, g := range groups {
		af := &models.AssociationFeature{
			CaseID:                 run.c.ID,
			GroupName:              g.name,
			EvidenceType:           rules.CategoryChatRecord,
			AssociationEvidenceIDs: g.evidenceIDs,
			Features:               g.features,
		}
		if err := s.associations.Upsert(ctx, af); err != nil {
			run.log.Warn("failed to save association group", "group_name", g.name, "error", err)
		}
	}
}

// tagRoles attributes freshly extracted artifacts to a party. An artifact
// that matches no rule loses any role from an earlier run.
func (s *IntakeService) tagRoles(ctx context.Context, run *intakeRun, fresh []*extractItem) (map[uuid.UUID]proofread.RoleMatch, error) {
	matches := make(map[uuid.UUID]proofread.RoleMatch)
	tagged := make([]*models.Evidence, 0, len(fresh))
	for _, it := range fresh {
		it.ev.Role = nil
		tagged = append(tagged, it.ev)
		roleRules := run.snap.RoleRules(it.category)
		if len(roleRules) == 0 {
			continue
		}
		m, ok := proofread.MatchRole(it.ev.Features, roleRules, run.c)
		if !ok {
			continue
		}
		role := m.Role
		it.ev.Role = &role
		matches[it.ev.ID] = m
		run.log.Debug("artifact role tagged", "evidence_id", it.ev.ID, "role", role, "rule", m.RuleName)
	}
	if len(tagged) > 0 {
		if err := s.evidences.SaveAll(ctx, tagged); err != nil {
			return nil, fmt.Errorf("failed to save artifact roles: %w", err)
		}
	}
	return matches, nil
}

// updateParties copies identity fields into the matched party
func (s *IntakeService) updateParties(ctx context.Context, run *intakeRun, fresh []*extractItem, matches map[uuid.UUID]proofread.RoleMatch) {
	for _, it := range fresh {
		m, ok := matches[it.ev.ID]
		if !ok {
			continue
		}
		fieldMap := run.snap.PartyFieldMap(it.category)
		if len(fieldMap) == 0 {
			continue
		}
		changed := proofread.PropagateToParty(m.Party, it.ev.Features, fieldMap)
		if len(changed) == 0 {
			continue
		}
		if err := s.cases.UpdateParty(ctx, m.Party); err != nil {
			run.log.Warn("failed to update party", "party_id", m.Party.ID, "error", err)
			continue
		}
		run.log.Info("party updated from evidence", "party_id", m.Party.ID, "evidence_id", it.ev.ID, "fields", changed)
	}
}

func (s *IntakeService) proofreadAll(ctx context.Context, run *intakeRun, fresh []*extractItem) error {
	if len(fresh) == 0 {
		return nil
	}
	categories := make([]string, 0, len(fresh))
	for _, it := range fresh {
		categories = append(categories, it.category)
	}
	cfgs := run.snap.ProofreadConfigsByNames(categories)

	now := s.now()
	checked := make([]*models.Evidence, 0, len(fresh))
	for _, it := range fresh {
		res := proofread.Check(it.ev, run.c, cfgs[it.category], now)
		it.ev.Features = res.Features
		it.features = res.Features
		it.ev.Status = it.ev.Status.Advance(models.EvidenceStatusChecked)
		checked = append(checked, it.ev)
	}
	if err := s.evidences.SaveAll(ctx, checked); err != nil {
		return fmt.Errorf("failed to save proofread results: %w", err)
	}
	return nil
}

// mint creates or refreshes one card per single artifact and one per
// association group. Failures are logged; minting never fails intake.
func (s *IntakeService) mint(ctx context.Context, run *intakeRun, fresh []*extractItem, groups []groupResult) []*models.EvidenceCard {
	cards := make([]*models.EvidenceCard, 0)
	if s.cards == nil {
		return cards
	}
	run.tracker.Emit(ctx, progress.StatusMinting, "正在生成证据卡片", progressProofread)
	for _, it := range fresh {
		if rules.RouteFor(it.category) == rules.RouteAssociation {
			continue
		}
		info := models.CardInfo{CardType: it.category, CardFeatures: it.ev.Features.Clone()}
		card, _, err := s.cards.UpdateOrCreate(ctx, run.c.ID, []uuid.UUID{it.ev.ID}, info)
		if err != nil {
			run.log.Warn("failed to mint card", "evidence_id", it.ev.ID, "error", err)
			continue
		}
		cards = append(cards, card)
	}
	for _, g := range groups {
		info := models.CardInfo{CardType: rules.CategoryChatRecord, CardIsAssociated: true, CardFeatures: g.features.Clone()}
		card, _, err := s.cards.UpdateOrCreate(ctx, run.c.ID, g.evidenceIDs, info)
		if err != nil {
			run.log.Warn("failed to mint association card", "group_name", g.name, "error", err)
			continue
		}
		cards = append(cards, card)
	}
	return cards
}

func extensionOf(name string) string {
	name = strings.SplitN(name, "?", 2)[0]
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// IsClientError reports whether err was caused by the request rather than
// by configuration or a remote service
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrCaseNotFound) ||
		errors.Is(err, ErrEvidenceNotFound) || errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrTemplateNotFound) || errors.Is(err, ErrTaskNotFound)
}
