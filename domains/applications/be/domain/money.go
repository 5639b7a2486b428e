package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Amounts in a profile are rendered with the scale they were entered with, so a snapshot of
// "3500.00" is stored as "3500.00" rather than decimal's trimmed "3500".

func fixedAmount(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func fixedAmountPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := fixedAmount(*d)
	return &s
}

func (i Income) MarshalJSON() ([]byte, error) {
	type plain Income
	return json.Marshal(struct {
		plain
		MonthlyIncome    string  `json:"monthlyIncome"`
		AdditionalIncome *string `json:"additionalIncome,omitempty"`
	}{
		plain:            plain(i),
		MonthlyIncome:    fixedAmount(i.MonthlyIncome),
		AdditionalIncome: fixedAmountPtr(i.AdditionalIncome),
	})
}

func (g Guarantor) MarshalJSON() ([]byte, error) {
	type plain Guarantor
	return json.Marshal(struct {
		plain
		MonthlyIncome *string `json:"monthlyIncome,omitempty"`
	}{
		plain:         plain(g),
		MonthlyIncome: fixedAmountPtr(g.MonthlyIncome),
	})
}
