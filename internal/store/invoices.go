package store

import (
	"context"
	"database/sql"

	"github.com/jogardn/aquaflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// ensureInvoice creates the invoice for a delivered order unless one
// already exists. Runs inside the status-update transaction, so a failed
// insert aborts the transition too. Returns whether an invoice was newly
// created.
func (s *PostgresStore) ensureInvoice(ctx context.Context, tx *sql.Tx, order *models.Order) (*models.Invoice, bool, error) {
	var existingID string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM invoices WHERE order_id = $1`, order.ID).Scan(&existingID)
	if err == nil {
		return nil, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	invoice := buildInvoice(order, s.now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, order_id, customer_id, customer_name,
			issue_date, due_date, total_amount, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		invoice.ID, invoice.InvoiceNumber, invoice.OrderID, nullString(invoice.CustomerID),
		nullString(invoice.CustomerName), invoice.IssueDate, invoice.DueDate,
		invoice.TotalAmount, invoice.IsPaid)
	if err != nil {
		return nil, false, err
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_number": invoice.InvoiceNumber,
		"order_id":       order.ID,
		"due_date":       invoice.DueDate,
	}).Info("Invoice generated for delivered order")

	return invoice, true, nil
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx, selectInvoice+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "invoice", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *PostgresStore) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, selectInvoice+` ORDER BY issue_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// MarkInvoicePaid flips the paid flag. Paying twice is accepted and
// changes nothing.
func (s *PostgresStore) MarkInvoicePaid(ctx context.Context, id string) (*models.Invoice, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET is_paid = TRUE WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &NotFoundError{Entity: "invoice", ID: id}
	}
	return s.GetInvoice(ctx, id)
}

const selectInvoice = `
	SELECT id, invoice_number, order_id, customer_id, customer_name,
		issue_date, due_date, total_amount, is_paid
	FROM invoices`

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	var orderID, customerID, customerName sql.NullString

	err := row.Scan(&invoice.ID, &invoice.InvoiceNumber, &orderID, &customerID,
		&customerName, &invoice.IssueDate, &invoice.DueDate,
		&invoice.TotalAmount, &invoice.IsPaid)
	if err != nil {
		return nil, err
	}

	invoice.OrderID = orderID.String
	invoice.CustomerID = customerID.String
	invoice.CustomerName = customerName.String
	return invoice, nil
}
