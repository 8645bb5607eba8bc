package service

import (
	"context"
	"fmt"
	"time"

	"casefile-backend/logger"
	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/repository"
	"casefile-backend/rules"

	"github.com/google/uuid"
)

const placeholderReasoning = "未提取到信息"

// CardService mints, lists and rebinds evidence cards
type CardService struct {
	rules        RuleSource
	cases        CaseStore
	evidences    EvidenceStore
	cards        CardStore
	associations AssociationStore
	locker       EvidenceSetLocker
	classifier   Classifier
	extraction
	locks *keyedMutex
	now   func() time.Time
}

// CardServiceOption is a functional option for CardService
type CardServiceOption func(*CardService)

// CardWithRules sets the rule source
func CardWithRules(src RuleSource) CardServiceOption {
	return func(s *CardService) {
		s.rules = src
	}
}

// CardWithCaseStore sets the case store
func CardWithCaseStore(store CaseStore) CardServiceOption {
	return func(s *CardService) {
		s.cases = store
	}
}

// CardWithEvidenceStore sets the evidence store
func CardWithEvidenceStore(store EvidenceStore) CardServiceOption {
	return func(s *CardService) {
		s.evidences = store
	}
}

// CardWithCardStore sets the card store
func CardWithCardStore(store CardStore) CardServiceOption {
	return func(s *CardService) {
		s.cards = store
	}
}

// CardWithAssociationStore sets the association group store
func CardWithAssociationStore(store AssociationStore) CardServiceOption {
	return func(s *CardService) {
		s.associations = store
	}
}

// CardWithLocker adds a cross-process lock around update-or-create
func CardWithLocker(l EvidenceSetLocker) CardServiceOption {
	return func(s *CardService) {
		s.locker = l
	}
}

// CardWithClassifier sets the classifier agent
func CardWithClassifier(c Classifier) CardServiceOption {
	return func(s *CardService) {
		s.classifier = c
	}
}

// CardWithExtractor sets the single-image extractor agent
func CardWithExtractor(e Extractor) CardServiceOption {
	return func(s *CardService) {
		s.extractor = e
	}
}

// CardWithAssociator sets the association extractor agent
func CardWithAssociator(a Associator) CardServiceOption {
	return func(s *CardService) {
		s.associator = a
	}
}

// CardWithOCR sets the OCR adapter
func CardWithOCR(o OCR) CardServiceOption {
	return func(s *CardService) {
		s.ocr = o
	}
}

// CardWithLogger sets the logger
func CardWithLogger(l *logger.Logger) CardServiceOption {
	return func(s *CardService) {
		s.logger = l
	}
}

// CardWithClock overrides the time source
func CardWithClock(now func() time.Time) CardServiceOption {
	return func(s *CardService) {
		s.now = now
	}
}

// NewCardService creates a new card service
func NewCardService(opts ...CardServiceOption) *CardService {
	s := &CardService{locks: newKeyedMutex(), now: time.Now}
	s.logger = logger.Nop()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateOrCreate returns the card of the case that references exactly the
// same evidence set with an equivalent snapshot, bumping its revision, or
// creates a new one. created reports which happened.
func (s *CardService) UpdateOrCreate(ctx context.Context, caseID uuid.UUID, evidenceIDs []uuid.UUID, info models.CardInfo) (card *models.EvidenceCard, created bool, err error) {
	if s.cards == nil {
		return nil, false, fmt.Errorf("%w: card store", ErrNotConfigured)
	}
	if len(evidenceIDs) == 0 {
		return nil, false, invalid("a card needs at least one evidence")
	}
	if info.CardFeatures == nil {
		info.CardFeatures = make(models.SlotRecords, 0)
	}

	unlock := s.locks.Lock(caseID.String() + "|" + models.EvidenceSetKey(evidenceIDs))
	defer unlock()
	if s.locker != nil {
		release, err := s.locker.LockEvidenceSet(ctx, caseID, evidenceIDs)
		if err != nil {
			return nil, false, err
		}
		defer release()
	}

	candidates, err := s.cards.FindByEvidenceSet(ctx, caseID, evidenceIDs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up cards: %w", err)
	}
	for _, existing := range candidates {
		if existing.CardInfo.Equivalent(info) {
			if err := s.cards.Touch(ctx, existing); err != nil {
				return nil, false, fmt.Errorf("failed to refresh card: %w", err)
			}
			return existing, false, nil
		}
	}

	card = &models.EvidenceCard{
		CaseID:      caseID,
		EvidenceIDs: append([]uuid.UUID(nil), evidenceIDs...),
		CardInfo:    info,
	}
	if err := s.cards.Create(ctx, card); err != nil {
		return nil, false, fmt.Errorf("failed to create card: %w", err)
	}
	return card, true, nil
}

// Cast step names reported through CastRequest.OnStep
const (
	stepInProgress = "in_progress"
	stepCompleted  = "completed"
)

// CastRequest represents a request to mint cards from artifacts
type CastRequest struct {
	CaseID      uuid.UUID
	EvidenceIDs []uuid.UUID
	// CardID rebinds an existing card instead of minting new ones
	CardID             *uuid.UUID
	SkipClassification bool
	TargetCardType     string
	// OnStep, when set, is told when a casting step starts and finishes
	OnStep func(step, status string)
}

// cardDraft is a card about to be persisted
type cardDraft struct {
	evidenceIDs []uuid.UUID
	info        models.CardInfo
}

// Cast classifies, extracts and mints cards for the given artifacts.
// Non-image artifacts are dropped; nothing eligible yields an empty list.
func (s *CardService) Cast(ctx context.Context, req CastRequest) ([]*models.EvidenceCard, error) {
	if s.rules == nil || s.evidences == nil || s.cards == nil {
		return nil, fmt.Errorf("%w: rules, evidence and card stores are required", ErrNotConfigured)
	}
	out := make([]*models.EvidenceCard, 0)
	if len(req.EvidenceIDs) == 0 {
		return out, nil
	}
	onStep := req.OnStep
	if onStep == nil {
		onStep = func(string, string) {}
	}
	log := s.logger.With("case_id", req.CaseID)

	snap, err := s.rules.Current()
	if err != nil {
		return nil, err
	}
	evs, err := s.resolveEvidences(ctx, req.CaseID, req.EvidenceIDs)
	if err != nil {
		return nil, err
	}
	images := make([]*models.Evidence, 0, len(evs))
	for _, ev := range evs {
		if ev.IsImage() {
			images = append(images, ev)
		}
	}
	if len(images) == 0 {
		return out, nil
	}

	var existing *models.EvidenceCard
	if req.CardID != nil {
		existing, err = s.cards.GetByID(ctx, *req.CardID)
		if err != nil {
			return nil, lookupError(err, ErrCardNotFound, "card")
		}
		if existing.CaseID != req.CaseID {
			return nil, ErrCardNotFound
		}
	}

	target := ""
	if req.TargetCardType != "" {
		et, ok := snap.EvidenceTypeByName(req.TargetCardType)
		if !ok {
			return nil, invalid("unknown card type %q", req.TargetCardType)
		}
		target = et.TypeName
	}

	onStep(models.StepClassify, stepInProgress)
	types, err := s.resolveTypes(ctx, snap, images, target, existing, req.SkipClassification)
	if err != nil {
		return nil, err
	}
	onStep(models.StepClassify, stepCompleted)

	items := make([]*extractItem, 0, len(images))
	for _, ev := range images {
		if t := types[ev.ID]; t != "" {
			items = append(items, &extractItem{ev: ev, category: t})
		}
	}
	if len(items) == 0 {
		log.Warn("no artifact could be typed, nothing to mint")
		return out, nil
	}

	onStep(models.StepExtract, stepInProgress)
	r := s.route(items)
	single := r.single
	if len(r.ocr) > 0 {
		single = append(single, s.runOCR(ctx, r.ocr, nil)...)
	}
	if err := s.runSingle(ctx, snap, single); err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}
	groups, err := s.runAssociation(ctx, snap, r.association)
	if err != nil {
		return nil, fmt.Errorf("association extraction failed: %w", err)
	}
	s.persistExtraction(ctx, log, req.CaseID, items, groups)
	onStep(models.StepExtract, stepCompleted)

	onStep(models.StepMint, stepInProgress)
	drafts := s.drafts(snap, items, groups, target, existing)

	if existing != nil {
		d := drafts[0]
		existing.EvidenceIDs = d.evidenceIDs
		existing.CardInfo = d.info
		if err := s.cards.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to rebind card: %w", err)
		}
		out = append(out, existing)
	} else {
		for _, d := range drafts {
			card, _, err := s.UpdateOrCreate(ctx, req.CaseID, d.evidenceIDs, d.info)
			if err != nil {
				return nil, err
			}
			out = append(out, card)
		}
	}
	onStep(models.StepMint, stepCompleted)
	return out, nil
}

// resolveEvidences loads every requested artifact; any unknown id fails the cast
func (s *CardService) resolveEvidences(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.Evidence, error) {
	evs, err := s.evidences.GetByIDs(ctx, caseID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidences: %w", err)
	}
	found := make(map[uuid.UUID]bool, len(evs))
	for _, ev := range evs {
		found[ev.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("%w: %s", ErrEvidenceNotFound, id)
		}
	}
	return evs, nil
}

// resolveTypes decides the card type of each artifact: the target type, the
// rebound card's type, the stored category, or a fresh classification
func (s *CardService) resolveTypes(ctx context.Context, snap *rules.Snapshot, evs []*models.Evidence, target string, existing *models.EvidenceCard, skip bool) (map[uuid.UUID]string, error) {
	types := make(map[uuid.UUID]string, len(evs))
	switch {
	case target != "":
		for _, ev := range evs {
			types[ev.ID] = target
		}
		return types, nil
	case skip && existing != nil && existing.CardInfo.CardType != "":
		for _, ev := range evs {
			types[ev.ID] = existing.CardInfo.CardType
		}
		return types, nil
	}

	var pending []*models.Evidence
	for _, ev := range evs {
		if skip && ev.Category() != "" {
			types[ev.ID] = ev.Category()
			continue
		}
		pending = append(pending, ev)
	}
	if len(pending) == 0 {
		return types, nil
	}
	if s.classifier == nil {
		return nil, fmt.Errorf("%w: classifier", ErrNotConfigured)
	}

	urls := make([]string, 0, len(pending))
	for _, ev := range pending {
		urls = append(urls, ev.FileURL)
	}
	results, err := s.classifier.Classify(ctx, snap, urls)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	byURL := make(map[string]int, len(results))
	for i, res := range results {
		byURL[res.URL] = i
	}

	now := s.now()
	var changed []*models.Evidence
	for _, ev := range pending {
		i, ok := byURL[ev.FileURL]
		if !ok || !results[i].Known() {
			continue
		}
		applyClassification(ev, results[i], now)
		types[ev.ID] = ev.Category()
		changed = append(changed, ev)
	}
	if err := s.evidences.SaveAll(ctx, changed); err != nil {
		return nil, fmt.Errorf("failed to save classification: %w", err)
	}
	return types, nil
}

// persistExtraction writes features back to artifacts whose own category was
// used; a retyped artifact keeps its stored features
func (s *CardService) persistExtraction(ctx context.Context, log *logger.Logger, caseID uuid.UUID, items []*extractItem, groups []groupResult) {
	now := s.now()
	var changed []*models.Evidence
	for _, it := range items {
		if it.done && it.category == it.ev.Category() {
			apply(it, now)
			changed = append(changed, it.ev)
		}
	}
	if err := s.evidences.SaveAll(ctx, changed); err != nil {
		log.Warn("failed to save extracted features", "error", err)
	}
	if s.associations == nil {
		return
	}
	for _, g := range groups {
		af := &models.AssociationFeature{
			CaseID:                 caseID,
			GroupName:              g.name,
			EvidenceType:           rules.CategoryChatRecord,
			AssociationEvidenceIDs: g.evidenceIDs,
			Features:               g.features,
		}
		if err := s.associations.Upsert(ctx, af); err != nil {
			log.Warn("failed to save association group", "group_name", g.name, "error", err)
		}
	}
}

// drafts builds the mint set. A rebind, or a target type over several
// artifacts, bundles everything into one card; otherwise each artifact and
// each association group yields its own card.
func (s *CardService) drafts(snap *rules.Snapshot, items []*extractItem, groups []groupResult, target string, existing *models.EvidenceCard) []cardDraft {
	bundle := existing != nil || (target != "" && len(items) > 1)

	if bundle {
		cardType := target
		if cardType == "" && existing != nil && existing.CardInfo.CardType != "" && items[0].category == existing.CardInfo.CardType {
			cardType = existing.CardInfo.CardType
		}
		if cardType == "" {
			cardType = items[0].category
		}
		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ev.ID)
		}

		var features models.SlotRecords
		associated := len(items) > 1 || cardType == rules.CategoryChatRecord
		if rules.RouteFor(cardType) == rules.RouteAssociation {
			for _, g := range groups {
				features = append(features, g.features.Clone()...)
			}
		} else {
			features = mergeFeatures(items)
		}
		info := models.CardInfo{CardType: cardType, CardIsAssociated: associated, CardFeatures: features}
		if target != "" {
			info.CardFeatures = withPlaceholders(snap, target, info.CardFeatures)
		}
		return []cardDraft{{evidenceIDs: ids, info: info}}
	}

	var out []cardDraft
	for _, it := range items {
		if rules.RouteFor(it.category) == rules.RouteAssociation || !it.done {
			continue
		}
		info := models.CardInfo{
			CardType:         it.category,
			CardIsAssociated: target == rules.CategoryChatRecord,
			CardFeatures:     it.features.Clone(),
		}
		if target != "" {
			info.CardFeatures = withPlaceholders(snap, target, info.CardFeatures)
		}
		out = append(out, cardDraft{evidenceIDs: []uuid.UUID{it.ev.ID}, info: info})
	}
	for _, g := range groups {
		info := models.CardInfo{CardType: rules.CategoryChatRecord, CardIsAssociated: true, CardFeatures: g.features.Clone()}
		if target != "" {
			info.CardFeatures = withPlaceholders(snap, target, info.CardFeatures)
		}
		out = append(out, cardDraft{evidenceIDs: g.evidenceIDs, info: info})
	}
	return out
}

// mergeFeatures folds several artifacts' records into one list: the first
// known value of each slot wins
func mergeFeatures(items []*extractItem) models.SlotRecords {
	out := make(models.SlotRecords, 0)
	index := make(map[string]int)
	for _, it := range items {
		for _, f := range it.features.Clone() {
			i, seen := index[f.SlotName]
			if !seen {
				index[f.SlotName] = len(out)
				out = append(out, f)
				continue
			}
			if normalize.IsEmpty(out[i].Value()) && !normalize.IsEmpty(f.Value()) {
				out[i] = f
			}
		}
	}
	return out
}

// withPlaceholders appends a null record for each configured slot the
// features lack, so template binding sees stable slot names
func withPlaceholders(snap *rules.Snapshot, cardType string, features models.SlotRecords) models.SlotRecords {
	et, ok := snap.EvidenceTypeByName(cardType)
	if !ok {
		return features
	}
	if features == nil {
		features = make(models.SlotRecords, 0)
	}
	for _, slot := range et.ExtractionSlots {
		if _, ok := features.Find(slot.SlotName); ok {
			continue
		}
		features = append(features, models.SlotRecord{
			SlotName:      slot.SlotName,
			SlotValueType: slot.ValueType(),
			SlotRequired:  slot.SlotRequired,
			Reasoning:     placeholderReasoning,
		})
	}
	return features
}

// ListCardsRequest represents a filtered card listing
type ListCardsRequest struct {
	CaseID       uuid.UUID
	CardType     string
	IsAssociated *bool
	SortBy       string
}

// List returns the cards of a case annotated against the current artifacts
func (s *CardService) List(ctx context.Context, req ListCardsRequest) ([]*models.EvidenceCard, error) {
	if s.cards == nil || s.evidences == nil {
		return nil, fmt.Errorf("%w: card and evidence stores are required", ErrNotConfigured)
	}
	cards, err := s.cards.ListByCase(ctx, req.CaseID, repository.CardFilter{
		CardType:     req.CardType,
		IsAssociated: req.IsAssociated,
		SortBy:       req.SortBy,
	})
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for _, card := range cards {
		ids = append(ids, card.EvidenceIDs...)
	}
	existing, err := s.evidences.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, card := range cards {
		card.MarkMissing(existing)
	}
	return cards, nil
}

// RebindRequest represents a request to rebind or retype a card
type RebindRequest struct {
	CardID      uuid.UUID
	EvidenceIDs []uuid.UUID
	CardType    string
}

// Rebind re-runs casting for an existing card. Without a card type the
// card keeps its current type.
func (s *CardService) Rebind(ctx context.Context, req RebindRequest) (*models.EvidenceCard, error) {
	if s.cards == nil {
		return nil, fmt.Errorf("%w: card store", ErrNotConfigured)
	}
	if len(req.EvidenceIDs) == 0 {
		return nil, invalid("evidence_ids must not be empty")
	}
	card, err := s.cards.GetByID(ctx, req.CardID)
	if err != nil {
		return nil, lookupError(err, ErrCardNotFound, "card")
	}
	cards, err := s.Cast(ctx, CastRequest{
		CaseID:             card.CaseID,
		EvidenceIDs:        req.EvidenceIDs,
		CardID:             &card.ID,
		SkipClassification: req.CardType == "",
		TargetCardType:     req.CardType,
	})
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, invalid("none of the evidences can be bound to a card")
	}
	return cards[0], nil
}
