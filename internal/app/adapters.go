package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/ar"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/sales/orders"
	"github.com/meridian-erp/meridian-erp/internal/sales/quotations"
)

// The adapter types below translate between the catalog and the per-module
// gateway interfaces so the domain packages never import each other's
// dependencies directly.

// QuotationProducts adapts the catalog for quotation stock checks.
func QuotationProducts(svc *products.Service) quotations.ProductGateway {
	return quotationProducts{svc: svc}
}

// OrderProducts adapts the catalog for order line snapshots.
func OrderProducts(svc *products.Service) orders.ProductGateway {
	return orderProducts{svc: svc}
}

// ProcurementProducts adapts the catalog for purchase order lines.
func ProcurementProducts(svc *products.Service) procurement.ProductGateway {
	return procurementProducts{svc: svc}
}

// InvoiceProducts adapts the catalog for manual invoice lines.
func InvoiceProducts(svc *products.Service) ar.ProductGateway {
	return invoiceProducts{svc: svc}
}

// StockPoster adapts the movement log for shipping and receiving.
func StockPoster(svc *inventory.Service) inventoryPoster {
	return inventoryPoster{svc: svc}
}

// TaxGateway returns the revenue-authority client.
func TaxGateway(logger *slog.Logger) ar.TaxGateway {
	return loggingTaxGateway{logger: logger}
}

// JournalPoster feeds issued invoices and bill payments into the general
// ledger.
func JournalPoster(svc *ledger.Service) journalPoster {
	return journalPoster{svc: svc}
}

type quotationProducts struct {
	svc *products.Service
}

func (a quotationProducts) Brief(ctx context.Context, productID int64) (*quotations.ProductBrief, error) {
	p, err := a.svc.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &quotations.ProductBrief{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		IsGood:         p.Type == products.TypeGood,
		AvailableStock: p.CurrentStock,
	}, nil
}

type orderProducts struct {
	svc *products.Service
}

func (a orderProducts) Brief(ctx context.Context, productID int64) (*orders.ProductBrief, error) {
	p, err := a.svc.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &orders.ProductBrief{
		ID:     p.ID,
		SKU:    p.SKU,
		Name:   p.Name,
		IsGood: p.Type == products.TypeGood,
	}, nil
}

type procurementProducts struct {
	svc *products.Service
}

func (a procurementProducts) Brief(ctx context.Context, productID int64) (*procurement.ProductBrief, error) {
	p, err := a.svc.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &procurement.ProductBrief{
		ID:     p.ID,
		SKU:    p.SKU,
		Name:   p.Name,
		IsGood: p.Type == products.TypeGood,
	}, nil
}

type invoiceProducts struct {
	svc *products.Service
}

func (a invoiceProducts) Name(ctx context.Context, productID int64) (string, error) {
	p, err := a.svc.Get(ctx, productID)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// inventoryPoster feeds order and purchase events into the movement log.
type inventoryPoster struct {
	svc *inventory.Service
}

func (a inventoryPoster) PostSale(ctx context.Context, productID int64, quantity float64, orderNumber string, actorID int64) error {
	_, err := a.svc.Post(ctx, inventory.MovementInput{
		ProductID: productID,
		Type:      inventory.MovementSale,
		Quantity:  quantity,
		RefType:   "sales_order",
		RefID:     orderNumber,
		ActorID:   actorID,
	})
	return err
}

func (a inventoryPoster) PostPurchase(ctx context.Context, productID int64, quantity float64, orderNumber string, actorID int64) error {
	_, err := a.svc.Post(ctx, inventory.MovementInput{
		ProductID: productID,
		Type:      inventory.MovementPurchase,
		Quantity:  quantity,
		RefType:   "purchase_order",
		RefID:     orderNumber,
		ActorID:   actorID,
	})
	return err
}

// Codes from the seeded chart of accounts that document posting writes
// against.
const (
	accountCash       = "1000"
	accountReceivable = "1100"
	accountPayable    = "2000"
	accountSalesTax   = "2100"
	accountSales      = "4000"
)

// journalPoster translates document events into balanced journal entries,
// keyed by document number so a retried post lands on the source uniqueness
// guard instead of duplicating.
type journalPoster struct {
	svc *ledger.Service
}

func (a journalPoster) InvoiceIssued(ctx context.Context, inv *ar.Invoice, actorID int64) error {
	receivable, err := a.svc.AccountByCode(ctx, accountReceivable)
	if err != nil {
		return err
	}
	revenue, err := a.svc.AccountByCode(ctx, accountSales)
	if err != nil {
		return err
	}
	lines := []ledger.Line{
		{AccountID: receivable.ID, Debit: inv.TotalAmount},
		{AccountID: revenue.ID, Credit: inv.TotalAmount - inv.TaxAmount},
	}
	if inv.TaxAmount > 0 {
		tax, err := a.svc.AccountByCode(ctx, accountSalesTax)
		if err != nil {
			return err
		}
		lines = append(lines, ledger.Line{AccountID: tax.ID, Credit: inv.TaxAmount})
	}
	_, err = a.svc.PostSource(ctx, "invoices", inv.Number, inv.IssueDate,
		"invoice "+inv.Number, lines, actorID)
	if errors.Is(err, ledger.ErrSourcePosted) {
		return nil
	}
	return err
}

func (a journalPoster) BillPaid(ctx context.Context, b *ap.Bill, p *ap.Payment, actorID int64) error {
	payable, err := a.svc.AccountByCode(ctx, accountPayable)
	if err != nil {
		return err
	}
	cash, err := a.svc.AccountByCode(ctx, accountCash)
	if err != nil {
		return err
	}
	lines := []ledger.Line{
		{AccountID: payable.ID, Debit: p.Amount},
		{AccountID: cash.ID, Credit: p.Amount},
	}
	// Each disbursement is its own source; partial payments on one bill must
	// all reach the ledger.
	ref := fmt.Sprintf("%s#%d", b.Number, p.ID)
	_, err = a.svc.PostSource(ctx, "bills", ref, p.PaidAt,
		"payment on bill "+b.Number, lines, actorID)
	if errors.Is(err, ledger.ErrSourcePosted) {
		return nil
	}
	return err
}

// loggingTaxGateway stands in for the revenue-authority client until the real
// integration lands. Submissions succeed and are logged.
// TODO: replace with the FBR HTTP client once API credentials are issued.
type loggingTaxGateway struct {
	logger *slog.Logger
}

func (g loggingTaxGateway) SubmitInvoice(_ context.Context, inv *ar.Invoice) error {
	g.logger.Info("tax submission",
		slog.String("invoice", inv.Number),
		slog.Float64("total", inv.TotalAmount))
	return nil
}
