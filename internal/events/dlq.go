package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// DLQReplayer drains the delivery dead-letter queue back onto the live
// topic so parked events get another pass once the downstream gateway
// recovers.
type DLQReplayer struct {
	consumer sarama.ConsumerGroup
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewDLQReplayer(brokers string, logger *logrus.Logger) (*DLQReplayer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	consumer, err := sarama.NewConsumerGroup(strings.Split(brokers, ","), "dlq-replayer-group", consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), producerConfig)
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create replay producer: %w", err)
	}

	return &DLQReplayer{
		consumer: consumer,
		producer: producer,
		logger:   logger,
	}, nil
}

func (r *DLQReplayer) Run(ctx context.Context) error {
	handler := &dlqReplayHandler{replayer: r, logger: r.logger}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("DLQ replayer context cancelled")
			return nil
		default:
			if err := r.consumer.Consume(ctx, []string{OrderDeliveredDLQTopic}, handler); err != nil {
				r.logger.WithError(err).Error("Error consuming from DLQ")
				return err
			}
		}
	}
}

func (r *DLQReplayer) Close() error {
	if err := r.producer.Close(); err != nil {
		r.logger.WithError(err).Error("Failed to close replay producer")
	}
	return r.consumer.Close()
}

func (r *DLQReplayer) replay(message *sarama.ConsumerMessage) error {
	replayMessage := &sarama.ProducerMessage{
		Topic: OrderDeliveredTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
	}

	partition, offset, err := r.producer.SendMessage(replayMessage)
	if err != nil {
		return fmt.Errorf("failed to replay DLQ message: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"topic":     OrderDeliveredTopic,
		"partition": partition,
		"offset":    offset,
		"key":       string(message.Key),
	}).Info("DLQ message replayed")

	return nil
}

type dlqReplayHandler struct {
	replayer *DLQReplayer
	logger   *logrus.Logger
}

func (h *dlqReplayHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *dlqReplayHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *dlqReplayHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var metadata MessageMetadata
		for _, header := range message.Headers {
			if string(header.Key) == "metadata" {
				json.Unmarshal(header.Value, &metadata)
			}
		}

		h.logger.WithFields(logrus.Fields{
			"key":         string(message.Key),
			"retry_count": metadata.RetryCount,
			"error":       metadata.ErrorMessage,
		}).Warn("Replaying dead-lettered delivery event")

		if err := h.replayer.replay(message); err != nil {
			h.logger.WithError(err).Error("Failed to replay message, leaving on DLQ")
			continue
		}

		session.MarkMessage(message, "")
	}
	return nil
}
