package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	app "mri-classifier/internal/application"
	"mri-classifier/internal/domain/entity"
)

const retryDelay = 2 * time.Second

// publisher часть amqp.Channel, нужная для ответов.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Reply тело ответа на запрос классификации.
type Reply struct {
	Prediction       string             `json:"prediction,omitempty"`
	HasTumor         bool               `json:"has_tumor"`
	Confidence       float64            `json:"confidence,omitempty"`
	AllProbabilities map[string]float64 `json:"all_probabilities,omitempty"`
	Message          string             `json:"message,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Worker RPC-обработчик: тело сообщения — байты снимка, ответ уходит в ReplyTo
// с тем же CorrelationId.
type Worker struct {
	predictions *app.PredictionService
	queue       string
	timeout     time.Duration
	log         *zap.Logger
}

func NewWorker(predictions *app.PredictionService, queue string, timeout time.Duration, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{predictions: predictions, queue: queue, timeout: timeout, log: log}
}

// Dial подключается к брокеру, повторяя попытки до отмены ctx.
func Dial(ctx context.Context, url string, log *zap.Logger) (*amqp.Connection, error) {
	for attempt := 1; ; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			log.Info("connected to rabbitmq")
			return conn, nil
		}

		log.Warn("failed to connect to rabbitmq", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to rabbitmq: %w", errors.Join(ctx.Err(), err))
		case <-time.After(retryDelay):
		}
	}
}

// Run объявляет очередь и обрабатывает сообщения по одному до отмены ctx.
func (w *Worker) Run(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		w.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", w.queue, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queue, err)
	}
	w.log.Info("worker consuming", zap.String("queue", w.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handle(ctx, ch, d)
		}
	}
}

// handle обрабатывает одно сообщение. Без ReplyTo ответить некуда, такое
// сообщение отбрасывается без возврата в очередь.
func (w *Worker) handle(ctx context.Context, pub publisher, d amqp.Delivery) {
	if d.ReplyTo == "" {
		w.log.Warn("rejecting delivery without reply_to", zap.String("correlation_id", d.CorrelationId))
		if err := d.Reject(false); err != nil {
			w.log.Error("reject delivery", zap.Error(err))
		}
		return
	}

	reply := w.classify(ctx, d.Body)
	body, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("encode reply", zap.Error(err))
		_ = d.Reject(false)
		return
	}

	err = pub.PublishWithContext(ctx,
		"",        // exchange
		d.ReplyTo, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: d.CorrelationId,
			Body:          body,
		})
	if err != nil {
		w.log.Error("publish reply", zap.String("correlation_id", d.CorrelationId), zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			w.log.Error("nack delivery", zap.Error(err))
		}
		return
	}

	if err := d.Ack(false); err != nil {
		w.log.Error("ack delivery", zap.Error(err))
	}
}

func (w *Worker) classify(ctx context.Context, image []byte) Reply {
	if len(image) == 0 {
		return Reply{Error: "Image file is empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err := w.predictions.Predict(ctx, app.SourceQueue, image)
	if err != nil {
		w.log.Warn("queue prediction failed", zap.Error(err))
		if errors.Is(err, entity.ErrModelNotLoaded) {
			return Reply{Error: "Model not loaded"}
		}
		return Reply{Error: "Error processing image: " + err.Error()}
	}

	return Reply{
		Prediction:       string(res.Label),
		HasTumor:         res.HasTumor,
		Confidence:       res.Confidence,
		AllProbabilities: res.Probabilities.Map(),
		Message:          res.Message,
	}
}
