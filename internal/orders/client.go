package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jogardn/aquaflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// Client is the HTTP client other services use to talk to the order
// service, e.g. the delivery monitor fetching the full order behind a
// Kafka event.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) CreateOrder(req *models.CreateOrderRequest) (*models.OrderResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+"/orders", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to order service: %w", err)
	}
	defer resp.Body.Close()

	var orderResp models.OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, fmt.Errorf("failed to decode order service response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("order service returned status %d: %s", resp.StatusCode, orderResp.Message)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": orderResp.Order.ID,
		"status":   resp.StatusCode,
	}).Info("Order created via order service")

	return &orderResp, nil
}

func (c *Client) GetOrder(orderID string) (*models.Order, error) {
	req, err := http.NewRequest("GET", c.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("order %s not found in order service", orderID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned error status: %d", resp.StatusCode)
	}

	var order models.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode order service response: %w", err)
	}

	return &order, nil
}

func (c *Client) GetOrders() ([]models.Order, error) {
	req, err := http.NewRequest("GET", c.baseURL+"/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to order service: %w", err)
	}
	defer resp.Body.Close()

	var response struct {
		Success bool           `json:"success"`
		Orders  []models.Order `json:"orders"`
		Count   int            `json:"count"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode order service response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned error status: %d", resp.StatusCode)
	}

	c.logger.WithField("count", response.Count).Info("Retrieved orders from order service")
	return response.Orders, nil
}

func (c *Client) UpdateOrderStatus(orderID, status string) error {
	jsonData, err := json.Marshal(models.UpdateStatusRequest{Status: status})
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	req, err := http.NewRequest("PUT", c.baseURL+"/orders/"+orderID+"/status", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("order service returned error status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) DeleteOrder(orderID string) error {
	req, err := http.NewRequest("DELETE", c.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("order %s not found in order service", orderID)
	}
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("order service returned error status: %d", resp.StatusCode)
	}
	return nil
}
