package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jogardn/aquaflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// Store is the persistence surface the HTTP layer works against. The
// production implementation is Postgres; tests run against the in-memory
// implementation, which shares the validation, sequencing, transition,
// and invoice-derivation logic.
type Store interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)

	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*StatusChange, error)
	DeleteOrder(ctx context.Context, id string) error

	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	ListInvoices(ctx context.Context) ([]*models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, id string) (*models.Invoice, error)
}

// StatusChange is the result of a status transition. Invoice is non-nil
// only when the transition created one, so callers can publish events for
// exactly the side effects that happened.
type StatusChange struct {
	Order   *models.Order
	Invoice *models.Invoice
}

type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

func NewPostgresStore(db *sql.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// InitSchema creates the tables and seeds the order-number counter from
// any existing order rows, so upgraded deployments continue the legacy
// numbering instead of reissuing numbers.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(255),
			unit_price DECIMAL(10,2) NOT NULL,
			wholesale_price DECIMAL(10,2),
			stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
			description TEXT,
			image_url TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(255) PRIMARY KEY,
			order_number VARCHAR(64) NOT NULL UNIQUE,
			customer_id VARCHAR(255),
			customer_name VARCHAR(255),
			driver_id VARCHAR(255),
			total_amount DECIMAL(10,2) NOT NULL,
			status VARCHAR(50) NOT NULL,
			order_date TIMESTAMP NOT NULL,
			delivery_date TIMESTAMP,
			payment_method VARCHAR(50) NOT NULL,
			sale_type VARCHAR(50) NOT NULL,
			delivery_address TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id VARCHAR(255) PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL REFERENCES orders(id),
			product_id VARCHAR(255) NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price DECIMAL(10,2) NOT NULL,
			total_price DECIMAL(10,2) NOT NULL,
			sale_type VARCHAR(50) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id VARCHAR(255) PRIMARY KEY,
			invoice_number VARCHAR(64) NOT NULL,
			order_id VARCHAR(255) REFERENCES orders(id),
			customer_id VARCHAR(255),
			customer_name VARCHAR(255),
			issue_date TIMESTAMP NOT NULL,
			due_date TIMESTAMP NOT NULL,
			total_amount DECIMAL(10,2) NOT NULL,
			is_paid BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS order_sequence (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_value BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_order_id ON invoices(order_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return s.seedSequence(ctx)
}

// seedSequence initializes the singleton counter row and advances it past
// the highest order number already on file. Legacy numbers are parsed by
// their trailing digit run; digit-less values count as zero.
func (s *PostgresStore) seedSequence(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_sequence (id, last_value) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT order_number FROM orders`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return err
		}
		numbers = append(numbers, number)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	highest := maxOrderNumber(numbers)
	if highest == 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE order_sequence SET last_value = GREATEST(last_value, $1) WHERE id = 1`, highest)
	if err != nil {
		return err
	}

	s.logger.WithField("last_value", highest).Info("Order number sequence seeded from existing orders")
	return nil
}

// nextOrderNumber locks the counter row, increments it, and returns the
// new number. Must run inside the transaction that inserts the order, so
// two concurrent creations serialize at the row lock and can never issue
// the same number.
func (s *PostgresStore) nextOrderNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	var last int64
	err := tx.QueryRowContext(ctx,
		`SELECT last_value FROM order_sequence WHERE id = 1 FOR UPDATE`).Scan(&last)
	if err != nil {
		return "", err
	}

	next := last + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE order_sequence SET last_value = $1 WHERE id = 1`, next); err != nil {
		return "", err
	}

	return formatOrderNumber(next), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
