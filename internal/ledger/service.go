package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NumberPrefix keys the journal entry sequence in document_sequences.
const NumberPrefix = "JE"

const numberRetries = 2

// balanceEpsilon absorbs float rounding when checking that an entry balances.
const balanceEpsilon = 0.01

// Service maintains the chart of accounts and the journal.
type Service struct {
	repo    Repository
	numbers *shared.DocNumberAllocator
	audit   *shared.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the Service. audit may be nil.
func NewService(repo Repository, numbers *shared.DocNumberAllocator,
	audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		numbers: numbers,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccount adds one row to the chart of accounts.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest, actorID int64) (*Account, error) {
	a := &Account{
		Code:   req.Code,
		Name:   req.Name,
		Type:   AccountType(req.Type),
		Active: true,
	}
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.InsertAccount(txCtx, a)
	})
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: account code %q already exists", shared.ErrConflict, req.Code)
		}
		return nil, err
	}
	s.recordAudit(ctx, actorID, "account.create", a.ID, map[string]any{"code": a.Code})
	return a, nil
}

// UpdateAccount renames an account or toggles it in and out of use.
// Deactivation never touches history; posted lines keep referencing the row.
func (s *Service) UpdateAccount(ctx context.Context, id int64, req UpdateAccountRequest, actorID int64) (*Account, error) {
	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Name = req.Name
	a.Active = *req.Active
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "account.update", a.ID, map[string]any{"active": a.Active})
	return s.repo.GetAccount(ctx, id)
}

func (s *Service) GetAccount(ctx context.Context, id int64) (*Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error) {
	return s.repo.ListAccounts(ctx, activeOnly)
}

func (s *Service) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

func (s *Service) ListEntries(ctx context.Context, page shared.CursorPage, from, to *time.Time) ([]Entry, error) {
	return s.repo.ListEntries(ctx, page, from, to)
}

// CreateEntry posts a manual journal entry.
func (s *Service) CreateEntry(ctx context.Context, req CreateEntryRequest, actorID int64) (*Entry, error) {
	entryDate := s.now().Truncate(24 * time.Hour)
	if req.EntryDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EntryDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, req.EntryDate)
		}
		entryDate = parsed
	}

	lines := make([]Line, 0, len(req.Lines))
	for _, src := range req.Lines {
		lines = append(lines, Line{
			AccountID: src.AccountID,
			Debit:     src.Debit,
			Credit:    src.Credit,
			Memo:      optional(src.Memo),
		})
	}
	return s.post(ctx, entryDate, req.Memo, nil, nil, lines, actorID)
}

// PostSource records the journal entry generated by another module for the
// document identified by (module, ref), where ref is the document number.
// Posting the same source twice returns ErrSourcePosted.
func (s *Service) PostSource(ctx context.Context, module, ref string,
	entryDate time.Time, memo string, lines []Line, actorID int64) (*Entry, error) {
	return s.post(ctx, entryDate.Truncate(24*time.Hour), memo, &module, &ref, lines, actorID)
}

// AccountByCode resolves one chart row by its code, for modules posting
// against well-known accounts.
func (s *Service) AccountByCode(ctx context.Context, code string) (*Account, error) {
	return s.repo.GetAccountByCode(ctx, code)
}

func (s *Service) post(ctx context.Context, entryDate time.Time, memo string,
	sourceModule, sourceRef *string, lines []Line, actorID int64) (*Entry, error) {
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: a journal entry needs at least two lines", shared.ErrValidation)
	}

	var totalDebit, totalCredit float64
	for i, ln := range lines {
		debit := ln.Debit > 0
		credit := ln.Credit > 0
		if debit == credit || ln.Debit < 0 || ln.Credit < 0 {
			return nil, fmt.Errorf("%w: line %d must carry exactly one of debit or credit", shared.ErrValidation, i+1)
		}
		totalDebit += ln.Debit
		totalCredit += ln.Credit
	}
	if math.Abs(totalDebit-totalCredit) > balanceEpsilon {
		return nil, &shared.UnbalancedEntryError{TotalDebit: totalDebit, TotalCredit: totalCredit}
	}

	for _, ln := range lines {
		account, err := s.repo.GetAccount(ctx, ln.AccountID)
		if err != nil {
			return nil, err
		}
		if !account.Active {
			return nil, fmt.Errorf("%w: account %s is inactive", shared.ErrValidation, account.Code)
		}
	}

	e := &Entry{
		EntryDate:    entryDate,
		Memo:         memo,
		SourceModule: sourceModule,
		SourceRef:    sourceRef,
		TotalDebit:   totalDebit,
		TotalCredit:  totalCredit,
		CreatedBy:    actorID,
		Lines:        lines,
	}
	if err := s.insertNumbered(ctx, e); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "journal.post", e.ID, map[string]any{
		"number": e.Number,
		"debit":  totalDebit,
	})
	return e, nil
}

func (s *Service) insertNumbered(ctx context.Context, e *Entry) error {
	for attempt := 0; attempt <= numberRetries; attempt++ {
		number, err := s.numbers.Allocate(ctx, NumberPrefix)
		if err != nil {
			return err
		}
		e.Number = number
		err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			return tx.InsertEntry(txCtx, e)
		})
		if err == nil {
			return nil
		}
		if !shared.IsUniqueViolation(err) {
			return err
		}
		s.logger.Warn("journal number collision", slog.String("number", number))
	}

	e.Number = s.numbers.Fallback(NumberPrefix)
	return s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.InsertEntry(txCtx, e)
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ledger",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
