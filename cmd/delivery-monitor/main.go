package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jogardn/aquaflow/internal/circuitbreaker"
	"github.com/jogardn/aquaflow/internal/events"
	"github.com/jogardn/aquaflow/internal/notify"
	"github.com/jogardn/aquaflow/internal/orders"
	"github.com/sirupsen/logrus"
)

// deliveryNotifier reacts to delivered-order events: it fetches the full
// order from the order service and pushes a delivery confirmation to the
// notification gateway, behind a circuit breaker.
type deliveryNotifier struct {
	ordersClient *orders.Client
	notifyClient *notify.Client
	breaker      *circuitbreaker.CircuitBreaker
	logger       *logrus.Logger
}

func (n *deliveryNotifier) HandleOrderDelivered(event events.OrderDeliveredEvent) error {
	order, err := n.ordersClient.GetOrder(event.OrderID)
	if err != nil {
		return err
	}

	notification := notify.DeliveryNotification{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerID:   order.CustomerID,
		CustomerName: order.CustomerName,
		DeliveredAt:  event.DeliveredAt,
	}

	err = n.breaker.Execute(func() error {
		return n.notifyClient.SendDeliveryNotification(notification)
	})
	if err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}).Info("Delivery notification sent")

	return nil
}

// IsRetryable treats gateway and transport failures as transient. An
// order the order service no longer knows about will never succeed.
func (n *deliveryNotifier) IsRetryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return true
	}
	return !strings.Contains(err.Error(), "not found")
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	kafkaBrokers := getEnv("KAFKA_BROKERS", "localhost:9092")
	orderServiceURL := getEnv("ORDER_SERVICE_URL", "http://localhost:8080")
	notifyGatewayURL := getEnv("NOTIFY_GATEWAY_URL", "http://localhost:8082")
	replayDLQ := getEnv("DLQ_REPLAY", "") == "true"

	notifier := &deliveryNotifier{
		ordersClient: orders.NewClient(orderServiceURL, logger),
		notifyClient: notify.NewClient(notifyGatewayURL, logger),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:        "notify-gateway",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			MaxRequests: 2,
		}, logger),
		logger: logger,
	}

	var consumer *events.DeliveryConsumer
	var err error

	// Kafka may still be starting when the monitor comes up.
	for i := 0; i < 10; i++ {
		consumer, err = events.NewDeliveryConsumer(kafkaBrokers, "delivery-monitor-group", notifier, logger)
		if err == nil {
			logger.Info("Successfully connected to Kafka")
			break
		}
		logger.WithError(err).WithField("attempt", i+1).Warn("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer after retries")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.WithField("brokers", kafkaBrokers).Info("Starting delivery event consumer")
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Delivery consumer error")
		}
	}()

	if replayDLQ {
		replayer, err := events.NewDLQReplayer(kafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create DLQ replayer")
		}
		defer replayer.Close()

		go func() {
			logger.Info("DLQ replay enabled - draining order.delivered.dlq")
			if err := replayer.Run(ctx); err != nil {
				logger.WithError(err).Error("DLQ replayer error")
			}
		}()
	}

	// Periodic metrics report
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics := consumer.Metrics()
				logger.WithFields(logrus.Fields{
					"processed":   metrics.Processed,
					"succeeded":   metrics.Succeeded,
					"failed":      metrics.Failed,
					"retries":     metrics.Retries,
					"sent_to_dlq": metrics.SentToDLQ,
					"breaker":     notifier.breaker.State().String(),
				}).Info("Delivery monitor metrics")
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("Delivery monitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down delivery monitor...")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
