package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotAssignment binds a card to one slot of a card-slot template for a case.
// CardID becomes nil when the bound card is deleted.
type SlotAssignment struct {
	ID         uuid.UUID  `json:"id"`
	CaseID     uuid.UUID  `json:"case_id"`
	TemplateID string     `json:"template_id"`
	SlotID     string     `json:"slot_id"`
	CardID     *uuid.UUID `json:"card_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
