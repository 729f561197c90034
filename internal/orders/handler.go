package orders

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/aquaflow/internal/events"
	"github.com/jogardn/aquaflow/internal/store"
	"github.com/jogardn/aquaflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// EventPublisher is the slice of the Kafka producer the handler needs.
// Nil-able so the service can run without a broker in development.
type EventPublisher interface {
	PublishOrderCreated(event events.OrderCreatedEvent) error
	PublishOrderDelivered(event events.OrderDeliveredEvent) error
	PublishInvoiceCreated(event events.InvoiceCreatedEvent) error
}

type OrderFeed interface {
	Broadcast(eventType string, data interface{})
}

type Handler struct {
	store     store.Store
	publisher EventPublisher
	feed      OrderFeed
	logger    *logrus.Logger
}

func NewHandler(s store.Store, logger *logrus.Logger) *Handler {
	return &Handler{
		store:  s,
		logger: logger,
	}
}

func (h *Handler) SetEventPublisher(publisher EventPublisher) {
	h.publisher = publisher
}

func (h *Handler) SetOrderFeed(feed OrderFeed) {
	h.feed = feed
}

// Register wires the handler's routes onto the router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	router.HandleFunc("/orders", h.ListOrders).Methods("GET")
	router.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	router.HandleFunc("/orders/{id}", h.DeleteOrder).Methods("DELETE")
	router.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods("PUT")

	router.HandleFunc("/products", h.CreateProduct).Methods("POST")
	router.HandleFunc("/products", h.ListProducts).Methods("GET")
	router.HandleFunc("/products/{id}", h.GetProduct).Methods("GET")

	router.HandleFunc("/invoices", h.ListInvoices).Methods("GET")
	router.HandleFunc("/invoices/{id}", h.GetInvoice).Methods("GET")
	router.HandleFunc("/invoices/{id}/pay", h.PayInvoice).Methods("PUT")
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.store.CreateOrder(r.Context(), &req)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to create order")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total_amount": order.TotalAmount,
		"items_count":  len(order.Items),
	}).Info("Order created")

	if h.publisher != nil {
		event := events.OrderCreatedEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			CustomerID:   order.CustomerID,
			CustomerName: order.CustomerName,
			TotalAmount:  order.TotalAmount,
			ItemCount:    len(order.Items),
			OrderDate:    order.OrderDate,
		}
		if err := h.publisher.PublishOrderCreated(event); err != nil {
			// The order is committed; a missed event never fails the request.
			h.logger.WithError(err).Error("Failed to publish order created event")
		}
	}

	if h.feed != nil {
		h.feed.Broadcast("order_created", order)
	}

	h.respondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Order created successfully",
		Order:   order,
	})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orderID := vars["id"]

	var req models.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status == "" {
		h.respondWithError(w, http.StatusBadRequest, "Status is required")
		return
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Unknown status")
		return
	}

	change, err := h.store.UpdateOrderStatus(r.Context(), orderID, status)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to update order status")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":        orderID,
		"status":          status.String(),
		"invoice_created": change.Invoice != nil,
	}).Info("Order status updated")

	h.publishStatusChange(change)

	if h.feed != nil {
		h.feed.Broadcast("order_status_changed", change.Order)
		if change.Invoice != nil {
			h.feed.Broadcast("invoice_created", change.Invoice)
		}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Order status updated successfully",
	})
}

func (h *Handler) publishStatusChange(change *store.StatusChange) {
	if h.publisher == nil {
		return
	}

	order := change.Order
	if order.Status == models.StatusDelivered && order.DeliveryDate != nil {
		event := events.OrderDeliveredEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			CustomerID:   order.CustomerID,
			CustomerName: order.CustomerName,
			DriverID:     order.DriverID,
			DeliveredAt:  *order.DeliveryDate,
		}
		if err := h.publisher.PublishOrderDelivered(event); err != nil {
			h.logger.WithError(err).Error("Failed to publish order delivered event")
		}
	}

	if change.Invoice != nil {
		event := events.InvoiceCreatedEvent{
			InvoiceID:     change.Invoice.ID,
			InvoiceNumber: change.Invoice.InvoiceNumber,
			OrderID:       change.Invoice.OrderID,
			TotalAmount:   change.Invoice.TotalAmount,
			DueDate:       change.Invoice.DueDate,
		}
		if err := h.publisher.PublishInvoiceCreated(event); err != nil {
			h.logger.WithError(err).Error("Failed to publish invoice created event")
		}
	}
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orderID := vars["id"]

	if err := h.store.DeleteOrder(r.Context(), orderID); err != nil {
		h.respondWithStoreError(w, err, "Failed to delete order")
		return
	}

	h.logger.WithField("order_id", orderID).Info("Order deleted")

	if h.feed != nil {
		h.feed.Broadcast("order_deleted", map[string]string{"order_id": orderID})
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	order, err := h.store.GetOrder(r.Context(), vars["id"])
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to get order")
		return
	}

	h.respondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListOrders(r.Context())
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to list orders")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
	})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.store.CreateProduct(r.Context(), &product); err != nil {
		h.respondWithStoreError(w, err, "Failed to create product")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"product_id": product.ID,
		"name":       product.Name,
		"stock":      product.Stock,
	}).Info("Product created")

	h.respondWithJSON(w, http.StatusCreated, product)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	product, err := h.store.GetProduct(r.Context(), vars["id"])
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to get product")
		return
	}

	h.respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to list products")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"products": products,
		"count":    len(products),
	})
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.store.ListInvoices(r.Context())
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to list invoices")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	invoice, err := h.store.GetInvoice(r.Context(), vars["id"])
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to get invoice")
		return
	}

	h.respondWithJSON(w, http.StatusOK, invoice)
}

func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	invoice, err := h.store.MarkInvoicePaid(r.Context(), vars["id"])
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to mark invoice paid")
		return
	}

	h.logger.WithField("invoice_id", invoice.ID).Info("Invoice marked paid")
	h.respondWithJSON(w, http.StatusOK, invoice)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "order-service",
	})
}

// respondWithStoreError maps the store error taxonomy onto HTTP status
// codes. Unexpected errors are logged with detail and answered with a
// generic 500.
func (h *Handler) respondWithStoreError(w http.ResponseWriter, err error, logMessage string) {
	var validation *store.ValidationError
	var insufficientStock *store.InsufficientStockError
	var notFound *store.NotFoundError

	switch {
	case errors.As(err, &validation):
		h.respondWithError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &insufficientStock):
		h.respondWithError(w, http.StatusBadRequest, insufficientStock.Error())
	case errors.As(err, &notFound):
		h.respondWithError(w, http.StatusNotFound, notFound.Error())
	default:
		h.logger.WithError(err).Error(logMessage)
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
