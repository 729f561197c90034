package audit

import (
	"context"
	"time"

	"github.com/jogardn/aquaflow/internal/store"
	"github.com/jogardn/aquaflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// Report is a point-in-time consistency check of the order/invoice core:
// every delivered order should have exactly one invoice, every invoice
// with an order reference should point at a live order, and stock should
// never be negative.
type Report struct {
	Timestamp               time.Time `json:"timestamp"`
	OrderCount              int       `json:"order_count"`
	InvoiceCount            int       `json:"invoice_count"`
	DeliveredWithoutInvoice []string  `json:"delivered_without_invoice"`
	DuplicateInvoices       []string  `json:"duplicate_invoices"`
	OrphanedInvoices        []string  `json:"orphaned_invoices"`
	DuplicateOrderNumbers   []string  `json:"duplicate_order_numbers"`
	NegativeStockProducts   []string  `json:"negative_stock_products"`
	Consistent              bool      `json:"consistent"`
}

type Auditor struct {
	store  store.Store
	logger *logrus.Logger
}

func NewAuditor(s store.Store, logger *logrus.Logger) *Auditor {
	return &Auditor{store: s, logger: logger}
}

func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	orders, err := a.store.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	invoices, err := a.store.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	products, err := a.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Timestamp:    time.Now(),
		OrderCount:   len(orders),
		InvoiceCount: len(invoices),
	}

	invoicesByOrder := make(map[string]int)
	for _, invoice := range invoices {
		if invoice.OrderID != "" {
			invoicesByOrder[invoice.OrderID]++
		}
	}

	ordersByID := make(map[string]*models.Order, len(orders))
	numbersSeen := make(map[string]bool, len(orders))
	for _, order := range orders {
		ordersByID[order.ID] = order

		if numbersSeen[order.OrderNumber] {
			report.DuplicateOrderNumbers = append(report.DuplicateOrderNumbers, order.OrderNumber)
		}
		numbersSeen[order.OrderNumber] = true

		if order.Status == models.StatusDelivered {
			switch invoicesByOrder[order.ID] {
			case 0:
				report.DeliveredWithoutInvoice = append(report.DeliveredWithoutInvoice, order.ID)
			case 1:
				// Expected
			default:
				report.DuplicateInvoices = append(report.DuplicateInvoices, order.ID)
			}
		}
	}

	for _, invoice := range invoices {
		if invoice.OrderID == "" {
			continue // Manually created invoice, no order to match
		}
		if _, ok := ordersByID[invoice.OrderID]; !ok {
			report.OrphanedInvoices = append(report.OrphanedInvoices, invoice.ID)
		}
	}

	for _, product := range products {
		if product.Stock < 0 {
			report.NegativeStockProducts = append(report.NegativeStockProducts, product.ID)
		}
	}

	report.Consistent = len(report.DeliveredWithoutInvoice) == 0 &&
		len(report.DuplicateInvoices) == 0 &&
		len(report.OrphanedInvoices) == 0 &&
		len(report.DuplicateOrderNumbers) == 0 &&
		len(report.NegativeStockProducts) == 0

	a.logger.WithFields(logrus.Fields{
		"order_count":   report.OrderCount,
		"invoice_count": report.InvoiceCount,
		"consistent":    report.Consistent,
	}).Info("Order/invoice audit completed")

	return report, nil
}
