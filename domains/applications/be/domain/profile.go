package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile is the tenant profile as the applicant keeps it. Submit copies it into the
// application so the landlord's decision stays tied to the facts at submission time.
// Document fields hold opaque storage paths.
type Profile struct {
	ProfileID uuid.UUID `json:"profileId"`

	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Nationality string     `json:"nationality,omitempty"`

	Employment Employment  `json:"employment"`
	Income     Income      `json:"income"`
	Address    Address     `json:"address"`
	Guarantor  *Guarantor  `json:"guarantor,omitempty"`
	Documents  Documents   `json:"documents"`
	References []Reference `json:"references,omitempty"`
}

type Employment struct {
	Status       string     `json:"status,omitempty"`
	EmployerName string     `json:"employerName,omitempty"`
	JobTitle     string     `json:"jobTitle,omitempty"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	ContractType string     `json:"contractType,omitempty"`
}

type Income struct {
	MonthlyIncome    decimal.Decimal  `json:"monthlyIncome"`
	AdditionalIncome *decimal.Decimal `json:"additionalIncome,omitempty"`
	Currency         string           `json:"currency,omitempty"`
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Guarantor struct {
	Name          string           `json:"name"`
	Email         string           `json:"email,omitempty"`
	Phone         string           `json:"phone,omitempty"`
	Relationship  string           `json:"relationship,omitempty"`
	MonthlyIncome *decimal.Decimal `json:"monthlyIncome,omitempty"`
}

type Documents struct {
	IDDocument         string   `json:"idDocument,omitempty"`
	IncomeProofs       []string `json:"incomeProofs,omitempty"`
	EmploymentContract string   `json:"employmentContract,omitempty"`
	GuarantorDocuments []string `json:"guarantorDocuments,omitempty"`
}

type Reference struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// Clone returns a deep copy so later edits to the live profile never reach a snapshot.
func (p Profile) Clone() Profile {
	out := p
	out.DateOfBirth = cloneTime(p.DateOfBirth)
	out.Employment.StartDate = cloneTime(p.Employment.StartDate)
	out.Income.AdditionalIncome = cloneDecimal(p.Income.AdditionalIncome)
	if p.Guarantor != nil {
		g := *p.Guarantor
		g.MonthlyIncome = cloneDecimal(p.Guarantor.MonthlyIncome)
		out.Guarantor = &g
	}
	out.Documents.IncomeProofs = append([]string(nil), p.Documents.IncomeProofs...)
	out.Documents.GuarantorDocuments = append([]string(nil), p.Documents.GuarantorDocuments...)
	out.References = append([]Reference(nil), p.References...)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
