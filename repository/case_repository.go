package repository

import (
	"context"
	"fmt"

	"casefile-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CaseRepository handles database operations for cases and their parties
type CaseRepository struct {
	db *pgxpool.Pool
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

// GetByID retrieves a case with its parties
func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	c := &models.Case{}
	query := `
		SELECT id, case_number, cause_of_action, creditor_type, debtor_type,
			loan_amount, loan_date, due_date, court, created_at, updated_at
		FROM cases
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.CaseNumber,
		&c.CauseOfAction,
		&c.CreditorType,
		&c.DebtorType,
		&c.LoanAmount,
		&c.LoanDate,
		&c.DueDate,
		&c.Court,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	parties, err := r.listParties(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Parties = parties
	return c, nil
}

func (r *CaseRepository) listParties(ctx context.Context, caseID uuid.UUID) ([]models.Party, error) {
	query := `
		SELECT id, case_id, party_role, party_type, party_name, id_card, phone, address,
			company_name, company_code, company_address, updated_at
		FROM case_parties
		WHERE case_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	defer rows.Close()

	parties := make([]models.Party, 0)
	for rows.Next() {
		var p models.Party
		if err := rows.Scan(
			&p.ID,
			&p.CaseID,
			&p.Role,
			&p.PartyType,
			&p.Name,
			&p.IDCard,
			&p.Phone,
			&p.Address,
			&p.CompanyName,
			&p.CompanyCode,
			&p.CompanyAddress,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

// UpdateParty writes the scalar fields of a party back
func (r *CaseRepository) UpdateParty(ctx context.Context, p *models.Party) error {
	query := `
		UPDATE case_parties SET
			party_name = $2,
			id_card = $3,
			phone = $4,
			address = $5,
			company_name = $6,
			company_code = $7,
			company_address = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(
		ctx, query,
		p.ID,
		p.Name,
		p.IDCard,
		p.Phone,
		p.Address,
		p.CompanyName,
		p.CompanyCode,
		p.CompanyAddress,
	).Scan(&p.UpdatedAt)
	return notFound(err)
}
