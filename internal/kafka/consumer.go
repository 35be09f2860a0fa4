package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
)

// PredictionMessage is the wire format for a prediction submission. A zero
// RoundID targets whatever round is currently accepting predictions.
type PredictionMessage struct {
	PlayerUID string        `json:"player_uid"`
	RoundID   int64         `json:"round_id,omitempty"`
	Choice    domain.Choice `json:"choice"`
}

// PredictionHandler applies consumed submissions to the game.
type PredictionHandler interface {
	ActiveRound(ctx context.Context) (*domain.Round, error)
	SubmitPrediction(ctx context.Context, roundID int64, playerUID string, choice domain.Choice) (*domain.Prediction, *domain.Round, error)
}

// Consumer consumes prediction submissions from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       PredictionHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler PredictionHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. Every message is
// marked: a submission rejected by game rules is unrecoverable and retrying
// it would only wedge the partition.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var msg PredictionMessage
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if msg.PlayerUID == "" || !msg.Choice.Valid() {
				h.consumer.logger.Warn("invalid prediction message",
					"player_uid", msg.PlayerUID,
					"choice", int(msg.Choice),
				)
				session.MarkMessage(message, "")
				continue
			}

			h.process(msg)
			session.MarkMessage(message, "")
		}
	}
}

func (h *consumerGroupHandler) process(msg PredictionMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	roundID := msg.RoundID
	if roundID == 0 {
		round, err := h.consumer.handler.ActiveRound(ctx)
		if err != nil {
			h.consumer.logger.Warn("no active round for submission",
				"player_uid", msg.PlayerUID,
				"error", err,
			)
			return
		}
		roundID = round.ID
	}

	if _, _, err := h.consumer.handler.SubmitPrediction(ctx, roundID, msg.PlayerUID, msg.Choice); err != nil {
		h.consumer.logger.Warn("submission rejected",
			"round_id", roundID,
			"player_uid", msg.PlayerUID,
			"choice", msg.Choice.String(),
			"error", err,
		)
		return
	}

	h.consumer.logger.Debug("submission applied",
		"round_id", roundID,
		"player_uid", msg.PlayerUID,
		"choice", msg.Choice.String(),
	)
}
