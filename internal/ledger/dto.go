package ledger

// CreateAccountRequest creates one chart-of-accounts row.
type CreateAccountRequest struct {
	Code string `json:"code" validate:"required,max=16"`
	Name string `json:"name" validate:"required,max=128"`
	Type string `json:"type" validate:"required,oneof=asset liability equity revenue expense"`
}

// UpdateAccountRequest renames or toggles an account.
type UpdateAccountRequest struct {
	Name   string `json:"name" validate:"required,max=128"`
	Active *bool  `json:"active" validate:"required"`
}

// EntryLineRequest is one leg of a manual journal entry.
type EntryLineRequest struct {
	AccountID int64   `json:"account_id" validate:"required,gt=0"`
	Debit     float64 `json:"debit" validate:"gte=0"`
	Credit    float64 `json:"credit" validate:"gte=0"`
	Memo      string  `json:"memo" validate:"max=256"`
}

// CreateEntryRequest posts a manual journal entry.
type CreateEntryRequest struct {
	EntryDate string             `json:"entry_date" validate:"omitempty,datetime=2006-01-02"`
	Memo      string             `json:"memo" validate:"max=512"`
	Lines     []EntryLineRequest `json:"lines" validate:"required,min=2,dive"`
}
