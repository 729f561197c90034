package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/aquaflow/internal/notify"
	"github.com/sirupsen/logrus"
)

// notificationLog records everything the mock gateway "sent", so local
// runs can inspect what the delivery monitor produced.
type notificationLog struct {
	mutex   sync.RWMutex
	entries []notify.DeliveryNotification
}

func (l *notificationLog) add(notification notify.DeliveryNotification) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, notification)
	return len(l.entries)
}

func (l *notificationLog) all() []notify.DeliveryNotification {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return append([]notify.DeliveryNotification(nil), l.entries...)
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	port := getEnv("NOTIFY_MOCK_PORT", "8082")
	failurePercent, _ := strconv.Atoi(getEnv("NOTIFY_MOCK_FAILURE_PERCENT", "0"))

	log := &notificationLog{}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "notify-mock"})
	}).Methods("GET")

	router.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		var notification notify.DeliveryNotification
		if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false, "message": "Invalid request body",
			})
			return
		}

		// Simulated flakiness for exercising the monitor's retry and
		// circuit-breaker paths.
		if failurePercent > 0 && rand.Intn(100) < failurePercent {
			logger.WithField("order_id", notification.OrderID).Warn("Simulating gateway failure")
			respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"success": false, "message": "Simulated gateway failure",
			})
			return
		}

		// Simulated SMS send latency
		time.Sleep(time.Duration(rand.Intn(200)+50) * time.Millisecond)

		total := log.add(notification)
		logger.WithFields(logrus.Fields{
			"order_id":     notification.OrderID,
			"order_number": notification.OrderNumber,
			"total_sent":   total,
		}).Info("Delivery notification delivered")

		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true, "message": "Notification sent",
		})
	}).Methods("POST")

	router.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		entries := log.all()
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":       true,
			"notifications": entries,
			"count":         len(entries),
		})
	}).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.WithField("port", port).Info("Starting notify-mock gateway")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down notify-mock...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
