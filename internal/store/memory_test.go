package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jogardn/aquaflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *MemoryStore, id string, stock int, price float64) {
	t.Helper()
	err := s.CreateProduct(context.Background(), &models.Product{
		ID:        id,
		Name:      "19L Bottle " + id,
		Category:  "water",
		UnitPrice: price,
		Stock:     stock,
	})
	require.NoError(t, err)
}

func orderFor(productID string, quantity int, price float64) *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		CustomerName:  "Ahmed",
		Status:        "pending",
		PaymentMethod: "cash",
		SaleType:      "retail",
		Items: []models.CreateOrderItemRequest{
			{ProductID: productID, ProductName: "19L Bottle", Quantity: quantity, UnitPrice: price, SaleType: "retail"},
		},
	}
}

func TestCreateOrderReservesStock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	order, err := s.CreateOrder(ctx, orderFor("p1", 5, 10))
	require.NoError(t, err)
	assert.Equal(t, "1", order.OrderNumber)
	assert.Equal(t, 50.0, order.TotalAmount)
	assert.Equal(t, models.StatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 50.0, order.Items[0].TotalPrice)

	product, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	_, err := s.CreateOrder(ctx, orderFor("p1", 5, 10))
	require.NoError(t, err)

	_, err = s.CreateOrder(ctx, orderFor("p1", 1, 10))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p1", stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Requested)
	assert.Equal(t, 0, stockErr.Available)

	// Stock unchanged, no second order persisted.
	product, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)

	orders, err := s.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCreateOrderAtomicOnPartialFailure(t *testing.T) {
	// Second item fails the stock check; the first item's stock must be
	// untouched and no order or item rows may exist afterward.
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 10, 10)
	seedProduct(t, s, "p2", 1, 20)

	req := &models.CreateOrderRequest{
		CustomerName:  "Ahmed",
		Status:        "pending",
		PaymentMethod: "cash",
		SaleType:      "retail",
		Items: []models.CreateOrderItemRequest{
			{ProductID: "p1", ProductName: "Small", Quantity: 2, UnitPrice: 10, SaleType: "retail"},
			{ProductID: "p2", ProductName: "Large", Quantity: 5, UnitPrice: 20, SaleType: "retail"},
		},
	}

	_, err := s.CreateOrder(ctx, req)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p2", stockErr.ProductID)

	p1, _ := s.GetProduct(ctx, "p1")
	p2, _ := s.GetProduct(ctx, "p2")
	assert.Equal(t, 10, p1.Stock)
	assert.Equal(t, 1, p2.Stock)

	orders, _ := s.ListOrders(ctx)
	assert.Empty(t, orders)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.CreateOrder(context.Background(), orderFor("missing", 1, 10))
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "product", notFound.Entity)
}

func TestOrderNumbersMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 1000, 10)

	const n = 25
	for i := 1; i <= n; i++ {
		order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), order.OrderNumber)
	}

	// Deleting an order must not free its number for reuse.
	orders, _ := s.ListOrders(ctx)
	require.NoError(t, s.DeleteOrder(ctx, orders[0].ID))

	order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(n+1), order.OrderNumber)
}

func TestOrderNumbersUniqueUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 100000, 10)

	const numGoroutines = 50
	const ordersPerGoroutine = 10

	var wg sync.WaitGroup
	numberChan := make(chan string, numGoroutines*ordersPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ordersPerGoroutine; j++ {
				order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				numberChan <- order.OrderNumber
			}
		}()
	}

	wg.Wait()
	close(numberChan)

	seen := make(map[string]bool)
	for number := range numberChan {
		if seen[number] {
			t.Errorf("duplicate order number issued: %s", number)
		}
		seen[number] = true
	}
	assert.Len(t, seen, numGoroutines*ordersPerGoroutine)
}

func TestStockNeverNegativeUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 30, 10)

	const numGoroutines = 60

	var wg sync.WaitGroup
	var succeeded int64
	var mu sync.Mutex

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var stockErr *InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Errorf("unexpected error type: %v", err)
			}
		}()
	}
	wg.Wait()

	product, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, product.Stock, 0)
	assert.Equal(t, int64(30), succeeded)
	assert.Equal(t, 0, product.Stock)
}

func TestDeliveredTransitionCreatesInvoiceOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	order, err := s.CreateOrder(ctx, orderFor("p1", 5, 10))
	require.NoError(t, err)

	change, err := s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, change.Invoice)
	assert.Equal(t, "INV-1", change.Invoice.InvoiceNumber)
	assert.Equal(t, order.ID, change.Invoice.OrderID)
	assert.Equal(t, 50.0, change.Invoice.TotalAmount)
	assert.False(t, change.Invoice.IsPaid)
	require.NotNil(t, change.Order.DeliveryDate)
	assert.Equal(t, *change.Order.DeliveryDate, change.Invoice.IssueDate)
	assert.Equal(t, change.Invoice.IssueDate.AddDate(0, 0, 15), change.Invoice.DueDate)

	// Repeating the delivered transition succeeds but creates nothing.
	change, err = s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Nil(t, change.Invoice)

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestDeliveredTransitionAcceptsLegacyArabicStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	order, err := s.CreateOrder(ctx, orderFor("p1", 5, 10))
	require.NoError(t, err)

	status, err := models.ParseStatus("تم التوصيل")
	require.NoError(t, err)

	change, err := s.UpdateOrderStatus(ctx, order.ID, status)
	require.NoError(t, err)
	require.NotNil(t, change.Invoice)
	assert.Equal(t, "INV-1", change.Invoice.InvoiceNumber)
}

func TestDeliveryDateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })

	order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
	require.NoError(t, err)

	change, err := s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)
	first := *change.Order.DeliveryDate
	assert.Equal(t, clock, first)

	// Later re-confirmation must not move the timestamp.
	clock = clock.Add(48 * time.Hour)
	change, err = s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, first, *change.Order.DeliveryDate)
}

func TestIllegalTransitionsRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 10, 10)

	order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
	require.NoError(t, err)

	_, err = s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)

	var ve *ValidationError
	for _, next := range []models.OrderStatus{models.StatusPending, models.StatusOutForDelivery, models.StatusCancelled} {
		_, err = s.UpdateOrderStatus(ctx, order.ID, next)
		assert.ErrorAsf(t, err, &ve, "delivered -> %s", next)
	}

	cancelled, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
	require.NoError(t, err)
	_, err = s.UpdateOrderStatus(ctx, cancelled.ID, models.StatusCancelled)
	require.NoError(t, err)
	_, err = s.UpdateOrderStatus(ctx, cancelled.ID, models.StatusDelivered)
	assert.ErrorAs(t, err, &ve)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.UpdateOrderStatus(context.Background(), "missing", models.StatusDelivered)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "order", notFound.Entity)
}

func TestDeleteOrderCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
	require.NoError(t, err)
	_, err = s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)

	require.NoError(t, s.DeleteOrder(ctx, order.ID))

	var notFound *NotFoundError
	_, err = s.GetOrder(ctx, order.ID)
	assert.ErrorAs(t, err, &notFound)

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	err = s.DeleteOrder(ctx, order.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestSeedOrderNumbers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	s.SeedOrderNumbers([]string{"ORD-41", "17", "draft"})

	order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
	require.NoError(t, err)
	assert.Equal(t, "42", order.OrderNumber)
}

func TestMarkInvoicePaid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "p1", 5, 10)

	order, err := s.CreateOrder(ctx, orderFor("p1", 1, 10))
	require.NoError(t, err)
	change, err := s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)

	paid, err := s.MarkInvoicePaid(ctx, change.Invoice.ID)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)

	// Paying again changes nothing.
	paid, err = s.MarkInvoicePaid(ctx, change.Invoice.ID)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)

	var notFound *NotFoundError
	_, err = s.MarkInvoicePaid(ctx, "missing")
	assert.ErrorAs(t, err, &notFound)
}

func TestWholesaleOrderScenario(t *testing.T) {
	// End-to-end walk of the common flow: stock 5, sell 5, next order
	// rejected, delivery generates INV-1, re-delivery is a no-op.
	ctx := context.Background()
	s := NewMemoryStore()
	seedProduct(t, s, "P", 5, 10)

	order, err := s.CreateOrder(ctx, orderFor("P", 5, 10))
	require.NoError(t, err)
	assert.Equal(t, "1", order.OrderNumber)

	product, _ := s.GetProduct(ctx, "P")
	assert.Equal(t, 0, product.Stock)

	_, err = s.CreateOrder(ctx, orderFor("P", 1, 10))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	product, _ = s.GetProduct(ctx, "P")
	assert.Equal(t, 0, product.Stock)

	change, err := s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, change.Invoice)
	assert.Equal(t, "INV-1", change.Invoice.InvoiceNumber)
	assert.Equal(t, change.Invoice.IssueDate.AddDate(0, 0, 15), change.Invoice.DueDate)

	change, err = s.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Nil(t, change.Invoice)

	invoices, _ := s.ListInvoices(ctx)
	require.Len(t, invoices, 1)
	assert.Equal(t, fmt.Sprintf("INV-%s", order.OrderNumber), invoices[0].InvoiceNumber)
}
