package repository

import (
	"context"
	"fmt"
	"sort"

	"casefile-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const cardColumns = `id, case_id, evidence_ids, card_info, updated_times, created_at, updated_at`

// CardFilter narrows a card listing
type CardFilter struct {
	CardType     string
	IsAssociated *bool
	SortBy       string // created_at | updated_at | updated_times, "-" prefix for descending
}

var cardSortColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"updated_times": "updated_times",
}

// CardRepository handles database operations for evidence cards
type CardRepository struct {
	db *pgxpool.Pool
}

// NewCardRepository creates a new card repository
func NewCardRepository(db *pgxpool.Pool) *CardRepository {
	return &CardRepository{db: db}
}

func scanCard(row pgx.Row) (*models.EvidenceCard, error) {
	card := &models.EvidenceCard{}
	err := row.Scan(
		&card.ID,
		&card.CaseID,
		&card.EvidenceIDs,
		&card.CardInfo,
		&card.UpdatedTimes,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if card.EvidenceIDs == nil {
		card.EvidenceIDs = make([]uuid.UUID, 0)
	}
	return card, nil
}

func collectCards(rows pgx.Rows) ([]*models.EvidenceCard, error) {
	defer rows.Close()
	out := make([]*models.EvidenceCard, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, rows.Err()
}

// Create inserts a new card with updated_times = 1
func (r *CardRepository) Create(ctx context.Context, card *models.EvidenceCard) error {
	query := `
		INSERT INTO evidence_cards (case_id, evidence_ids, card_info, updated_times)
		VALUES ($1, $2, $3, 1)
		RETURNING id, updated_times, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		card.CaseID,
		card.EvidenceIDs,
		card.CardInfo,
	).Scan(&card.ID, &card.UpdatedTimes, &card.CreatedAt, &card.UpdatedAt)
}

// GetByID retrieves a card by ID
func (r *CardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EvidenceCard, error) {
	card, err := scanCard(r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM evidence_cards WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return card, nil
}

// FindByEvidenceSet returns the cards of a case whose evidence ids form
// exactly the given multiset, in any order
func (r *CardRepository) FindByEvidenceSet(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.EvidenceCard, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM evidence_cards
		WHERE case_id = $1
			AND evidence_ids @> $2 AND evidence_ids <@ $2
			AND cardinality(evidence_ids) = cardinality($2::uuid[])
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, caseID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, err
	}

	key := models.EvidenceSetKey(ids)
	out := cards[:0]
	for _, card := range cards {
		if models.EvidenceSetKey(card.EvidenceIDs) == key {
			out = append(out, card)
		}
	}
	return out, nil
}

// Touch bumps updated_times and moves updated_at strictly forward
func (r *CardRepository) Touch(ctx context.Context, card *models.EvidenceCard) error {
	query := `
		UPDATE evidence_cards SET
			updated_times = updated_times + 1,
			updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
		WHERE id = $1
		RETURNING updated_times, updated_at`

	err := r.db.QueryRow(ctx, query, card.ID).Scan(&card.UpdatedTimes, &card.UpdatedAt)
	return notFound(err)
}

// Update rewrites the evidence ids and snapshot of a card in place, bumping its revision
func (r *CardRepository) Update(ctx context.Context, card *models.EvidenceCard) error {
	query := `
		UPDATE evidence_cards SET
			evidence_ids = $2,
			card_info = $3,
			updated_times = updated_times + 1,
			updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
		WHERE id = $1
		RETURNING updated_times, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, card.ID, card.EvidenceIDs, card.CardInfo).
		Scan(&card.UpdatedTimes, &card.CreatedAt, &card.UpdatedAt)
	return notFound(err)
}

// ListByCase lists the cards of a case
func (r *CardRepository) ListByCase(ctx context.Context, caseID uuid.UUID, filter CardFilter) ([]*models.EvidenceCard, error) {
	query := `SELECT ` + cardColumns + ` FROM evidence_cards WHERE case_id = $1`
	args := []any{caseID}

	if filter.CardType != "" {
		args = append(args, filter.CardType)
		query += fmt.Sprintf(" AND card_info->>'card_type' = $%d", len(args))
	}
	if filter.IsAssociated != nil {
		args = append(args, *filter.IsAssociated)
		query += fmt.Sprintf(" AND COALESCE((card_info->>'card_is_associated')::boolean, false) = $%d", len(args))
	}

	column, desc := ParseCardSort(filter.SortBy)
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id", column, direction)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return collectCards(rows)
}

// ParseCardSort resolves a sort_by value to a whitelisted column; unknown
// values fall back to -updated_at
func ParseCardSort(sortBy string) (column string, desc bool) {
	desc = len(sortBy) > 0 && sortBy[0] == '-'
	name := sortBy
	if desc {
		name = sortBy[1:]
	}
	if column, ok := cardSortColumns[name]; ok {
		return column, desc
	}
	return "updated_at", true
}

// LockEvidenceSet takes a session advisory lock on (case, sorted evidence ids)
// and returns the function releasing it
func (r *CardRepository) LockEvidenceSet(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) (func(), error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, id.String())
	}
	sort.Strings(sorted)
	key := fmt.Sprintf("evidence_card:%s:%v", caseID, sorted)

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to lock evidence set: %w", err)
	}

	return func() {
		// the lock must be released even when ctx is already done
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key)
		conn.Release()
	}, nil
}
