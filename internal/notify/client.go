package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DeliveryNotification is what the SMS/push gateway receives when an
// order is delivered.
type DeliveryNotification struct {
	OrderID      string    `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	CustomerID   string    `json:"customer_id,omitempty"`
	CustomerName string    `json:"customer_name,omitempty"`
	DeliveredAt  time.Time `json:"delivered_at"`
}

type notifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client talks to the customer-notification gateway.
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

// SendDeliveryNotification posts a delivery confirmation to the gateway.
func (c *Client) SendDeliveryNotification(notification DeliveryNotification) error {
	c.logger.WithField("order_id", notification.OrderID).Info("Sending delivery notification")

	jsonData, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+"/notifications", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach notification gateway: %w", err)
	}
	defer resp.Body.Close()

	var result notifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("notification gateway returned status %d: %s", resp.StatusCode, result.Message)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": notification.OrderID,
		"status":   resp.StatusCode,
	}).Info("Delivery notification accepted by gateway")

	return nil
}

// HealthCheck probes the gateway.
func (c *Client) HealthCheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("notification gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification gateway unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
