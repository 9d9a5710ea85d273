package ledger

import "time"

// AccountType classifies a ledger account.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeExpense   AccountType = "expense"
)

// IsValid reports whether the account type is known.
func (t AccountType) IsValid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return true
	default:
		return false
	}
}

// Account is one row of the chart of accounts.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Entry is a posted journal entry. Entries are immutable once stored; a
// mistake is fixed by posting a reversing entry.
type Entry struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	EntryDate    time.Time `json:"entry_date"`
	Memo         string    `json:"memo"`
	SourceModule *string   `json:"source_module,omitempty"`
	SourceRef    *string   `json:"source_ref,omitempty"`
	TotalDebit   float64   `json:"total_debit"`
	TotalCredit  float64   `json:"total_credit"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	Lines        []Line    `json:"lines,omitempty"`
}

// Line is one leg of a journal entry. Exactly one of Debit and Credit is
// non-zero.
type Line struct {
	ID        int64   `json:"id"`
	EntryID   int64   `json:"entry_id"`
	AccountID int64   `json:"account_id"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
	Memo      *string `json:"memo,omitempty"`
}

// AccountBalance aggregates posted amounts for one account.
type AccountBalance struct {
	AccountID   int64       `json:"account_id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	TotalDebit  float64     `json:"total_debit"`
	TotalCredit float64     `json:"total_credit"`
	Balance     float64     `json:"balance"`
}
