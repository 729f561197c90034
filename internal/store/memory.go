package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/aquaflow/pkg/models"
)

// MemoryStore is a map-backed Store used by tests and local development.
// A single mutex serializes mutations, which gives the same observable
// semantics as the Postgres transaction and row locks: no partial orders,
// no duplicate order numbers, no stock underflow.
type MemoryStore struct {
	mu         sync.RWMutex
	products   map[string]*models.Product
	orders     map[string]*models.Order
	invoices   map[string]*models.Invoice
	lastNumber int64
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*models.Product),
		orders:   make(map[string]*models.Order),
		invoices: make(map[string]*models.Invoice),
		now:      time.Now,
	}
}

// SetClock overrides the store's notion of now. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SeedOrderNumbers advances the counter past existing legacy numbers, the
// same way the Postgres store seeds its counter row on startup.
func (s *MemoryStore) SeedOrderNumbers(numbers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if highest := maxOrderNumber(numbers); highest > s.lastNumber {
		s.lastNumber = highest
	}
}

func (s *MemoryStore) CreateProduct(_ context.Context, product *models.Product) error {
	if product.Name == "" {
		return validationErrorf("product name is required")
	}
	if product.Stock < 0 {
		return validationErrorf("product stock must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	copied := *product
	s.products[product.ID] = &copied
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, &NotFoundError{Entity: "product", ID: id}
	}
	copied := *product
	return &copied, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]*models.Product, 0, len(s.products))
	for _, product := range s.products {
		copied := *product
		products = append(products, &copied)
	}
	return products, nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	total, err := validateCreateOrder(req)
	if err != nil {
		return nil, err
	}
	status, _ := models.ParseStatus(req.Status)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stock check before any mutation, so a failing item leaves nothing
	// behind.
	for productID, quantity := range quantityByProduct(req.Items) {
		product, ok := s.products[productID]
		if !ok {
			return nil, &NotFoundError{Entity: "product", ID: productID}
		}
		if product.Stock < quantity {
			return nil, &InsufficientStockError{
				ProductID:   productID,
				ProductName: product.Name,
				Requested:   quantity,
				Available:   product.Stock,
			}
		}
	}

	s.lastNumber++
	order := &models.Order{
		ID:              uuid.New().String(),
		OrderNumber:     formatOrderNumber(s.lastNumber),
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

	for _, reqItem := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:          uuid.New().String(),
			ProductID:   reqItem.ProductID,
			ProductName: reqItem.ProductName,
			Quantity:    reqItem.Quantity,
			UnitPrice:   reqItem.UnitPrice,
			TotalPrice:  float64(reqItem.Quantity) * reqItem.UnitPrice,
			SaleType:    reqItem.SaleType,
		})
		s.products[reqItem.ProductID].Stock -= reqItem.Quantity
	}

	stored := copyOrder(order)
	s.orders[order.ID] = stored
	return order, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, &NotFoundError{Entity: "order", ID: id}
	}
	return copyOrder(order), nil
}

func (s *MemoryStore) ListOrders(_ context.Context) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*models.Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, copyOrder(order))
	}
	return orders, nil
}

func (s *MemoryStore) UpdateOrderStatus(_ context.Context, id string, status models.OrderStatus) (*StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, &NotFoundError{Entity: "order", ID: id}
	}

	if !order.Status.CanTransition(status) {
		return nil, validationErrorf("order %s cannot move from %s to %s", id, order.Status, status)
	}

	order.Status = status
	if status == models.StatusDelivered && order.DeliveryDate == nil {
		now := s.now()
		order.DeliveryDate = &now
	}

	change := &StatusChange{Order: copyOrder(order)}
	if status == models.StatusDelivered && !s.invoiceExistsForOrder(id) {
		invoice := buildInvoice(order, s.now())
		s.invoices[invoice.ID] = invoice
		copied := *invoice
		change.Invoice = &copied
	}
	return change, nil
}

func (s *MemoryStore) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return &NotFoundError{Entity: "order", ID: id}
	}

	for invoiceID, invoice := range s.invoices {
		if invoice.OrderID == id {
			delete(s.invoices, invoiceID)
		}
	}
	delete(s.orders, id)
	return nil
}

func (s *MemoryStore) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, &NotFoundError{Entity: "invoice", ID: id}
	}
	copied := *invoice
	return &copied, nil
}

func (s *MemoryStore) ListInvoices(_ context.Context) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]*models.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		copied := *invoice
		invoices = append(invoices, &copied)
	}
	return invoices, nil
}

func (s *MemoryStore) MarkInvoicePaid(_ context.Context, id string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, &NotFoundError{Entity: "invoice", ID: id}
	}
	invoice.IsPaid = true
	copied := *invoice
	return &copied, nil
}

func (s *MemoryStore) invoiceExistsForOrder(orderID string) bool {
	for _, invoice := range s.invoices {
		if invoice.OrderID == orderID {
			return true
		}
	}
	return false
}

func copyOrder(order *models.Order) *models.Order {
	copied := *order
	copied.Items = append([]models.OrderItem(nil), order.Items...)
	if order.DeliveryDate != nil {
		d := *order.DeliveryDate
		copied.DeliveryDate = &d
	}
	return &copied
}
