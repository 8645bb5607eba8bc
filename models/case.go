package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CauseOfAction represents the legal cause of a case
type CauseOfAction string

const (
	CauseContract CauseOfAction = "contract"
	CauseDebt     CauseOfAction = "debt"
)

// PartyType represents the legal form of a party
type PartyType string

const (
	PartyTypePerson     PartyType = "person"
	PartyTypeCompany    PartyType = "company"
	PartyTypeIndividual PartyType = "individual"
)

// PartyRole is the procedural side a party stands on
type PartyRole string

const (
	RoleCreditor PartyRole = "creditor"
	RoleDebtor   PartyRole = "debtor"
)

// Label returns the Chinese label used in proofread reasoning
func (r PartyRole) Label() string {
	switch r {
	case RoleCreditor:
		return "债权人"
	case RoleDebtor:
		return "债务人"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles
func (r PartyRole) Valid() bool {
	return r == RoleCreditor || r == RoleDebtor
}

// Party represents a litigant of a case
type Party struct {
	ID             uuid.UUID `json:"id"`
	CaseID         uuid.UUID `json:"case_id"`
	Role           PartyRole `json:"role"`
	PartyType      PartyType `json:"party_type"`
	Name           string    `json:"party_name"`
	IDCard         string    `json:"id_card"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	CompanyName    string    `json:"company_name"`
	CompanyCode    string    `json:"company_code"`
	CompanyAddress string    `json:"company_address"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Party field keys as referenced by rule files
const (
	PartyFieldName           = "name"
	PartyFieldIDCard         = "id_card"
	PartyFieldPhone          = "phone"
	PartyFieldAddress        = "address"
	PartyFieldCompanyName    = "company_name"
	PartyFieldCompanyCode    = "company_code"
	PartyFieldCompanyAddress = "company_address"
)

// Field returns the value of a party field by rule key. "party_name" is
// accepted as an alias of "name".
func (p *Party) Field(key string) (string, bool) {
	switch key {
	case PartyFieldName, "party_name":
		return p.Name, true
	case PartyFieldIDCard:
		return p.IDCard, true
	case PartyFieldPhone:
		return p.Phone, true
	case PartyFieldAddress:
		return p.Address, true
	case PartyFieldCompanyName:
		return p.CompanyName, true
	case PartyFieldCompanyCode:
		return p.CompanyCode, true
	case PartyFieldCompanyAddress:
		return p.CompanyAddress, true
	}
	return "", false
}

// SetField assigns a party field by rule key. It reports whether the value changed.
func (p *Party) SetField(key, value string) bool {
	var target *string
	switch key {
	case PartyFieldName, "party_name":
		target = &p.Name
	case PartyFieldIDCard:
		target = &p.IDCard
	case PartyFieldPhone:
		target = &p.Phone
	case PartyFieldAddress:
		target = &p.Address
	case PartyFieldCompanyName:
		target = &p.CompanyName
	case PartyFieldCompanyCode:
		target = &p.CompanyCode
	case PartyFieldCompanyAddress:
		target = &p.CompanyAddress
	default:
		return false
	}
	if *target == value {
		return false
	}
	*target = value
	return true
}

// Case represents a debt-litigation case
type Case struct {
	ID            uuid.UUID     `json:"id"`
	CaseNumber    string        `json:"case_number"`
	CauseOfAction CauseOfAction `json:"cause_of_action"`
	CreditorType  PartyType     `json:"creditor_type"`
	DebtorType    PartyType     `json:"debtor_type"`
	LoanAmount    *float64      `json:"loan_amount,omitempty"`
	LoanDate      *time.Time    `json:"loan_date,omitempty"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	Court         string        `json:"court"`
	Parties       []Party       `json:"parties"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// PartiesByRole returns the parties on the given side; an empty role returns all parties
func (c *Case) PartiesByRole(role PartyRole) []*Party {
	out := make([]*Party, 0, len(c.Parties))
	for i := range c.Parties {
		if role == "" || c.Parties[i].Role == role {
			out = append(out, &c.Parties[i])
		}
	}
	return out
}

// FieldValues resolves a rule case_field to the candidate values held by the
// case. Party fields yield one value per matching party; scalar fields yield
// at most one value. Empty values are omitted.
func (c *Case) FieldValues(field string, role PartyRole) []string {
	field = strings.TrimSpace(field)
	var out []string
	switch field {
	case "loan_amount":
		if c.LoanAmount != nil {
			out = append(out, formatAmount(*c.LoanAmount))
		}
		return out
	case "loan_date":
		if c.LoanDate != nil {
			out = append(out, c.LoanDate.Format("2006-01-02"))
		}
		return out
	case "due_date":
		if c.DueDate != nil {
			out = append(out, c.DueDate.Format("2006-01-02"))
		}
		return out
	case "court":
		if c.Court != "" {
			out = append(out, c.Court)
		}
		return out
	case "case_number":
		if c.CaseNumber != "" {
			out = append(out, c.CaseNumber)
		}
		return out
	}
	for _, p := range c.PartiesByRole(role) {
		if v, ok := p.Field(field); ok && strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
