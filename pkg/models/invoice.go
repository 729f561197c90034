package models

import "time"

// InvoiceDueDays is how long after the issue date an invoice becomes due.
const InvoiceDueDays = 15

type Invoice struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	OrderID       string    `json:"order_id,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty"`
	CustomerName  string    `json:"customer_name"`
	IssueDate     time.Time `json:"issue_date"`
	DueDate       time.Time `json:"due_date"`
	TotalAmount   float64   `json:"total_amount"`
	IsPaid        bool      `json:"is_paid"`
}
