package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"
	"github.com/jogardn/aquaflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// CreateOrder reserves stock, assigns the next order number, and persists
// the order with its items in one transaction. Any failure rolls the
// whole thing back: no order, no items, no stock mutation.
func (s *PostgresStore) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	total, err := validateCreateOrder(req)
	if err != nil {
		return nil, err
	}
	status, _ := models.ParseStatus(req.Status)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock product rows in a stable order so two concurrent orders over
	// the same products cannot deadlock, then verify stock covers the
	// aggregated quantity per product.
	needed := quantityByProduct(req.Items)
	productIDs := make([]string, 0, len(needed))
	for id := range needed {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	for _, productID := range productIDs {
		var name string
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT name, stock FROM products WHERE id = $1 FOR UPDATE`, productID).
			Scan(&name, &stock)
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Entity: "product", ID: productID}
		}
		if err != nil {
			return nil, err
		}
		if stock < needed[productID] {
			return nil, &InsufficientStockError{
				ProductID:   productID,
				ProductName: name,
				Requested:   needed[productID],
				Available:   stock,
			}
		}
	}

	orderNumber, err := s.nextOrderNumber(ctx, tx)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		OrderNumber:     orderNumber,
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		DriverID:        req.DriverID,
		TotalAmount:     total,
		Status:          status,
		OrderDate:       s.now(),
		PaymentMethod:   req.PaymentMethod,
		SaleType:        req.SaleType,
		DeliveryAddress: req.DeliveryAddress,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, customer_name, driver_id,
			total_amount, status, order_date, delivery_date, payment_method, sale_type, delivery_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		order.ID, order.OrderNumber, nullString(order.CustomerID), nullString(order.CustomerName),
		nullString(order.DriverID), order.TotalAmount, order.Status.String(), order.OrderDate,
		nullTime(order.DeliveryDate), order.PaymentMethod, order.SaleType,
		nullString(order.DeliveryAddress))
	if err != nil {
		return nil, err
	}

	for _, reqItem := range req.Items {
		item := models.OrderItem{
			ID:          uuid.New().String(),
			ProductID:   reqItem.ProductID,
			ProductName: reqItem.ProductName,
			Quantity:    reqItem.Quantity,
			UnitPrice:   reqItem.UnitPrice,
			TotalPrice:  float64(reqItem.Quantity) * reqItem.UnitPrice,
			SaleType:    reqItem.SaleType,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, total_price, sale_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, order.ID, item.ProductID, item.ProductName,
			item.Quantity, item.UnitPrice, item.TotalPrice, item.SaleType)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $1 WHERE id = $2`,
			item.Quantity, item.ProductID)
		if err != nil {
			return nil, err
		}

		order.Items = append(order.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total_amount": order.TotalAmount,
		"items_count":  len(order.Items),
	}).Info("Order created")

	return order, nil
}

// UpdateOrderStatus applies one transition of the order lifecycle. A
// transition to delivered stamps the delivery date (first time only) and
// generates the invoice inside the same transaction, so the status change
// and its invoicing side effect commit or roll back together.
func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*StatusChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransition(status) {
		return nil, validationErrorf("order %s cannot move from %s to %s", id, order.Status, status)
	}

	order.Status = status
	if status == models.StatusDelivered && order.DeliveryDate == nil {
		now := s.now()
		order.DeliveryDate = &now
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, delivery_date = $2 WHERE id = $3`,
		order.Status.String(), nullTime(order.DeliveryDate), id)
	if err != nil {
		return nil, err
	}

	change := &StatusChange{Order: order}
	if status == models.StatusDelivered {
		invoice, created, err := s.ensureInvoice(ctx, tx, order)
		if err != nil {
			return nil, err
		}
		if created {
			change.Invoice = invoice
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":        id,
		"status":          status.String(),
		"invoice_created": change.Invoice != nil,
	}).Info("Order status updated")

	return change, nil
}

// DeleteOrder removes the order, its items, and its invoice in one
// transaction. Consumed stock and the order number are not given back.
func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE order_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Entity: "order", ID: id}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.WithField("order_id", id).Info("Order deleted with items and invoice")
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, selectOrder+` ORDER BY order_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := s.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

const selectOrder = `
	SELECT id, order_number, customer_id, customer_name, driver_id, total_amount,
		status, order_date, delivery_date, payment_method, sale_type, delivery_address
	FROM orders`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var customerID, customerName, driverID, deliveryAddress sql.NullString
	var status string
	var deliveryDate sql.NullTime

	err := row.Scan(&order.ID, &order.OrderNumber, &customerID, &customerName, &driverID,
		&order.TotalAmount, &status, &order.OrderDate, &deliveryDate,
		&order.PaymentMethod, &order.SaleType, &deliveryAddress)
	if err != nil {
		return nil, err
	}

	order.CustomerID = customerID.String
	order.CustomerName = customerName.String
	order.DriverID = driverID.String
	order.DeliveryAddress = deliveryAddress.String
	order.Status = models.OrderStatus(status)
	if deliveryDate.Valid {
		order.DeliveryDate = &deliveryDate.Time
	}
	return order, nil
}

func (s *PostgresStore) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, total_price, sale_type
		FROM order_items WHERE order_id = $1`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	order.Items = nil
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.SaleType)
		if err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}
