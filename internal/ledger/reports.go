package ledger

import (
	"context"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amounts = message.NewPrinter(language.English)

// formatAmount renders a money value with thousands separators for report
// payloads. Raw floats stay alongside for machine consumers.
func formatAmount(v float64) string {
	return amounts.Sprintf("%.2f", v)
}

// ReportRow is one account line in a financial report.
type ReportRow struct {
	AccountID int64   `json:"account_id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Display   string  `json:"display"`
}

// ProfitLossReport summarises revenue against expenses over a period.
type ProfitLossReport struct {
	From          *time.Time  `json:"from,omitempty"`
	To            *time.Time  `json:"to,omitempty"`
	Revenue       []ReportRow `json:"revenue"`
	Expenses      []ReportRow `json:"expenses"`
	TotalRevenue  float64     `json:"total_revenue"`
	TotalExpenses float64     `json:"total_expenses"`
	NetIncome     float64     `json:"net_income"`
	Display       string      `json:"display"`
}

// BalanceSheetReport snapshots assets, liabilities and equity as of a date.
// Retained earnings fold current-period income into the equity side so the
// statement balances.
type BalanceSheetReport struct {
	AsOf             *time.Time  `json:"as_of,omitempty"`
	Assets           []ReportRow `json:"assets"`
	Liabilities      []ReportRow `json:"liabilities"`
	Equity           []ReportRow `json:"equity"`
	TotalAssets      float64     `json:"total_assets"`
	TotalLiabilities float64     `json:"total_liabilities"`
	TotalEquity      float64     `json:"total_equity"`
	RetainedEarnings float64     `json:"retained_earnings"`
}

// TrialBalanceReport lists every account with posted activity.
type TrialBalanceReport struct {
	From        *time.Time       `json:"from,omitempty"`
	To          *time.Time       `json:"to,omitempty"`
	Rows        []AccountBalance `json:"rows"`
	TotalDebit  float64          `json:"total_debit"`
	TotalCredit float64          `json:"total_credit"`
	Balanced    bool             `json:"balanced"`
}

// DashboardReport is the headline-figures payload backing the overview page.
type DashboardReport struct {
	AsOf             time.Time `json:"as_of"`
	TotalAssets      float64   `json:"total_assets"`
	TotalLiabilities float64   `json:"total_liabilities"`
	TotalEquity      float64   `json:"total_equity"`
	TotalRevenue     float64   `json:"total_revenue"`
	TotalExpenses    float64   `json:"total_expenses"`
	NetIncome        float64   `json:"net_income"`
	NetIncomeDisplay string    `json:"net_income_display"`
	AccountsActive   int       `json:"accounts_active"`
}

// Dashboard aggregates all-time headline figures per account type.
func (s *Service) Dashboard(ctx context.Context) (*DashboardReport, error) {
	balances, err := s.repo.Balances(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	report := &DashboardReport{AsOf: s.now()}
	for _, b := range balances {
		if b.TotalDebit != 0 || b.TotalCredit != 0 {
			report.AccountsActive++
		}
		switch b.Type {
		case TypeAsset:
			report.TotalAssets += b.Balance
		case TypeLiability:
			report.TotalLiabilities += b.Balance
		case TypeEquity:
			report.TotalEquity += b.Balance
		case TypeRevenue:
			report.TotalRevenue += b.Balance
		case TypeExpense:
			report.TotalExpenses += b.Balance
		}
	}
	report.NetIncome = report.TotalRevenue - report.TotalExpenses
	report.NetIncomeDisplay = formatAmount(report.NetIncome)
	return report, nil
}

// TrialBalance aggregates debits and credits per account over the period.
func (s *Service) TrialBalance(ctx context.Context, from, to *time.Time) (*TrialBalanceReport, error) {
	balances, err := s.repo.Balances(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &TrialBalanceReport{From: from, To: to, Rows: balances}
	for _, b := range balances {
		report.TotalDebit += b.TotalDebit
		report.TotalCredit += b.TotalCredit
	}
	report.Balanced = report.TotalDebit-report.TotalCredit <= balanceEpsilon &&
		report.TotalCredit-report.TotalDebit <= balanceEpsilon
	return report, nil
}

// ProfitLoss computes the income statement for the period.
func (s *Service) ProfitLoss(ctx context.Context, from, to *time.Time) (*ProfitLossReport, error) {
	balances, err := s.repo.Balances(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &ProfitLossReport{From: from, To: to}
	for _, b := range balances {
		row := ReportRow{
			AccountID: b.AccountID,
			Code:      b.Code,
			Name:      b.Name,
			Amount:    b.Balance,
			Display:   formatAmount(b.Balance),
		}
		switch b.Type {
		case TypeRevenue:
			report.Revenue = append(report.Revenue, row)
			report.TotalRevenue += b.Balance
		case TypeExpense:
			report.Expenses = append(report.Expenses, row)
			report.TotalExpenses += b.Balance
		}
	}
	report.NetIncome = report.TotalRevenue - report.TotalExpenses
	report.Display = formatAmount(report.NetIncome)
	return report, nil
}

// BalanceSheet snapshots the financial position as of a date.
func (s *Service) BalanceSheet(ctx context.Context, asOf *time.Time) (*BalanceSheetReport, error) {
	balances, err := s.repo.Balances(ctx, nil, asOf)
	if err != nil {
		return nil, err
	}
	report := &BalanceSheetReport{AsOf: asOf}
	var income float64
	for _, b := range balances {
		row := ReportRow{
			AccountID: b.AccountID,
			Code:      b.Code,
			Name:      b.Name,
			Amount:    b.Balance,
			Display:   formatAmount(b.Balance),
		}
		switch b.Type {
		case TypeAsset:
			report.Assets = append(report.Assets, row)
			report.TotalAssets += b.Balance
		case TypeLiability:
			report.Liabilities = append(report.Liabilities, row)
			report.TotalLiabilities += b.Balance
		case TypeEquity:
			report.Equity = append(report.Equity, row)
			report.TotalEquity += b.Balance
		case TypeRevenue:
			income += b.Balance
		case TypeExpense:
			income -= b.Balance
		}
	}
	report.RetainedEarnings = income
	report.TotalEquity += income
	return report, nil
}
