package model

import (
	"errors"
	"fmt"
	"strings"
)

// ArtifactName is the file name of an artifact inside an entity directory.
type ArtifactName string

const (
	ArtifactProfile        ArtifactName = "profile.csv"
	ArtifactPrices         ArtifactName = "1mo_prices.csv"
	ArtifactIncomeAnnual   ArtifactName = "income_annual.csv"
	ArtifactIncomeQuarter  ArtifactName = "income_quarter.csv"
	ArtifactBalanceAnnual  ArtifactName = "balance_annual.csv"
	ArtifactBalanceQuarter ArtifactName = "balance_quarter.csv"
	ArtifactCashAnnual     ArtifactName = "cash_annual.csv"
	ArtifactCashQuarter    ArtifactName = "cash_quarter.csv"

	// Auxiliary outputs. They carry ledger entries but are never repaired.
	ArtifactChart  ArtifactName = "1mo_close.png"
	ArtifactReport ArtifactName = "report.md"
)

// LedgerFile is the per-entity provenance ledger file name.
const LedgerFile = "metadata.json"

// StatementKind identifies a financial statement family.
type StatementKind string

const (
	StatementIncome  StatementKind = "income"
	StatementBalance StatementKind = "balance"
	StatementCash    StatementKind = "cash"
)

// Period is the reporting period of a statement.
type Period string

const (
	PeriodAnnual  Period = "annual"
	PeriodQuarter Period = "quarter"
)

// StatementSpec is the fixed routing entry for one statement artifact.
type StatementSpec struct {
	Kind   StatementKind
	Period Period
	Name   ArtifactName
	Label  string
	// SecondaryAttr is the Yahoo Finance statement attribute.
	SecondaryAttr string
	// TertiaryEndpoint is the Financial Modeling Prep endpoint.
	TertiaryEndpoint string
	// page is the Yahoo Finance page slug used for the human reference URL.
	page string
}

// ReferenceURL returns the human-facing page for this statement.
func (s StatementSpec) ReferenceURL(entity string) string {
	return fmt.Sprintf("https://finance.yahoo.com/quote/%s/%s", entity, s.page)
}

var statementSpecs = []StatementSpec{
	{StatementIncome, PeriodAnnual, ArtifactIncomeAnnual, "Annual Income Statement", "financials", "income-statement", "financials"},
	{StatementIncome, PeriodQuarter, ArtifactIncomeQuarter, "Quarterly Income Statement", "quarterly_financials", "income-statement", "financials"},
	{StatementBalance, PeriodAnnual, ArtifactBalanceAnnual, "Annual Balance Sheet", "balance_sheet", "balance-sheet-statement", "balance-sheet"},
	{StatementBalance, PeriodQuarter, ArtifactBalanceQuarter, "Quarterly Balance Sheet", "quarterly_balance_sheet", "balance-sheet-statement", "balance-sheet"},
	{StatementCash, PeriodAnnual, ArtifactCashAnnual, "Annual Cash Flow", "cashflow", "cash-flow-statement", "cash-flow"},
	{StatementCash, PeriodQuarter, ArtifactCashQuarter, "Quarterly Cash Flow", "quarterly_cashflow", "cash-flow-statement", "cash-flow"},
}

// StatementSpecs returns the six statement routing entries in canonical order.
func StatementSpecs() []StatementSpec {
	out := make([]StatementSpec, len(statementSpecs))
	copy(out, statementSpecs)
	return out
}

// LookupStatement returns the routing entry for a statement artifact name.
func LookupStatement(name ArtifactName) (StatementSpec, bool) {
	for _, s := range statementSpecs {
		if s.Name == name {
			return s, true
		}
	}
	return StatementSpec{}, false
}

// StatementFor returns the routing entry for a (kind, period) pair.
func StatementFor(kind StatementKind, period Period) (StatementSpec, bool) {
	for _, s := range statementSpecs {
		if s.Kind == kind && s.Period == period {
			return s, true
		}
	}
	return StatementSpec{}, false
}

// AllArtifacts returns the fixed set of repairable artifacts.
func AllArtifacts() []ArtifactName {
	names := []ArtifactName{ArtifactProfile, ArtifactPrices}
	for _, s := range statementSpecs {
		names = append(names, s.Name)
	}
	return names
}

// Repairable reports whether the repair stage has a handler for name.
func Repairable(name ArtifactName) bool {
	if name == ArtifactProfile || name == ArtifactPrices {
		return true
	}
	_, ok := LookupStatement(name)
	return ok
}

// ParseStatementKind validates a statement kind string.
func ParseStatementKind(s string) (StatementKind, error) {
	switch k := StatementKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StatementIncome, StatementBalance, StatementCash:
		return k, nil
	default:
		return "", fmt.Errorf("unknown statement kind %q", s)
	}
}

// ParsePeriod validates a period string. "quarterly" is accepted as an alias.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "annual":
		return PeriodAnnual, nil
	case "quarter", "quarterly":
		return PeriodQuarter, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// NormalizeEntity returns the canonical key for an entity (ticker symbol).
func NormalizeEntity(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateEntity normalizes s and rejects keys that cannot name exactly one
// directory under the output root.
func ValidateEntity(s string) (string, error) {
	key := NormalizeEntity(s)
	switch {
	case key == "":
		return "", errors.New("empty ticker")
	case key == "." || strings.Contains(key, ".."):
		return "", fmt.Errorf("invalid ticker %q", s)
	case strings.ContainsAny(key, "/\\\x00"):
		return "", fmt.Errorf("invalid ticker %q: contains a path separator", s)
	}
	return key, nil
}
