package models

import (
	"time"
)

type Order struct {
	ID              string      `json:"id"`
	OrderNumber     string      `json:"order_number"`
	CustomerID      string      `json:"customer_id,omitempty"`
	CustomerName    string      `json:"customer_name"`
	DriverID        string      `json:"driver_id,omitempty"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"total_amount"`
	Status          OrderStatus `json:"status"`
	OrderDate       time.Time   `json:"order_date"`
	DeliveryDate    *time.Time  `json:"delivery_date,omitempty"`
	PaymentMethod   string      `json:"payment_method"`
	SaleType        string      `json:"sale_type"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
}

// OrderItem carries a product name snapshot so historical orders stay
// accurate when the product is later renamed.
type OrderItem struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
	SaleType    string  `json:"sale_type"`
}

type CreateOrderRequest struct {
	CustomerID      string                   `json:"customer_id,omitempty"`
	CustomerName    string                   `json:"customer_name,omitempty"`
	DriverID        string                   `json:"driver_id,omitempty"`
	Items           []CreateOrderItemRequest `json:"items"`
	TotalAmount     float64                  `json:"total_amount"`
	Status          string                   `json:"status"`
	PaymentMethod   string                   `json:"payment_method"`
	SaleType        string                   `json:"sale_type"`
	DeliveryAddress string                   `json:"delivery_address,omitempty"`
}

type CreateOrderItemRequest struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
	SaleType    string  `json:"sale_type"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
}
