package store

import (
	"math"

	"github.com/jogardn/aquaflow/pkg/models"
)

// amountTolerance absorbs float rounding between the client and server
// when comparing money amounts.
const amountTolerance = 0.01

// validateCreateOrder checks a create-order request and returns the
// server-side recomputed order total. Item totals and the order total are
// recomputed from quantity and unit price; a caller-supplied amount that
// disagrees is rejected rather than trusted.
func validateCreateOrder(req *models.CreateOrderRequest) (float64, error) {
	if len(req.Items) == 0 {
		return 0, validationErrorf("order must contain at least one item")
	}
	if req.Status == "" {
		return 0, validationErrorf("status is required")
	}
	if _, err := models.ParseStatus(req.Status); err != nil {
		return 0, validationErrorf("invalid status %q", req.Status)
	}
	if req.PaymentMethod == "" {
		return 0, validationErrorf("payment_method is required")
	}
	if req.SaleType == "" {
		return 0, validationErrorf("sale_type is required")
	}

	var total float64
	for i, item := range req.Items {
		if item.ProductID == "" {
			return 0, validationErrorf("item %d: product_id is required", i)
		}
		if item.Quantity <= 0 {
			return 0, validationErrorf("item %d: quantity must be positive", i)
		}
		if item.UnitPrice < 0 {
			return 0, validationErrorf("item %d: unit_price must not be negative", i)
		}

		lineTotal := float64(item.Quantity) * item.UnitPrice
		if item.TotalPrice != 0 && math.Abs(item.TotalPrice-lineTotal) > amountTolerance {
			return 0, validationErrorf("item %d: total_price %.2f does not match quantity x unit_price %.2f",
				i, item.TotalPrice, lineTotal)
		}
		total += lineTotal
	}

	if req.TotalAmount != 0 && math.Abs(req.TotalAmount-total) > amountTolerance {
		return 0, validationErrorf("total_amount %.2f does not match sum of item totals %.2f",
			req.TotalAmount, total)
	}

	return total, nil
}

// quantityByProduct folds the requested items into per-product quantities
// so stock checks lock each product row once even when an order carries
// the same product on multiple lines.
func quantityByProduct(items []models.CreateOrderItemRequest) map[string]int {
	needed := make(map[string]int, len(items))
	for _, item := range items {
		needed[item.ProductID] += item.Quantity
	}
	return needed
}
