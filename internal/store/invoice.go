package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/aquaflow/pkg/models"
)

// buildInvoice derives the invoice for a delivered order. The issue date
// is the order's delivery date when stamped, otherwise now; the due date
// follows after the standard payment window.
func buildInvoice(order *models.Order, now time.Time) *models.Invoice {
	issueDate := now
	if order.DeliveryDate != nil {
		issueDate = *order.DeliveryDate
	}

	return &models.Invoice{
		ID:            uuid.New().String(),
		InvoiceNumber: fmt.Sprintf("INV-%s", order.OrderNumber),
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CustomerName:  order.CustomerName,
		IssueDate:     issueDate,
		DueDate:       issueDate.AddDate(0, 0, models.InvoiceDueDays),
		TotalAmount:   order.TotalAmount,
		IsPaid:        false,
	}
}
