package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
	"github.com/policywatch/policywatch/pkg/tracing"
)

// NotificationProducer publishes change notifications to the delivery
// channel. Delivery success or failure downstream is not this service's
// concern; a rejected enqueue surfaces as a DispatchError.
type NotificationProducer interface {
	Start(ctx context.Context)
	Enqueue(ctx context.Context, notif model.ChangeNotification) error
	Close(ctx context.Context)
}

type producer struct {
	asyncProducer sarama.AsyncProducer
	topic         string
	log           *slog.Logger
	wg            *sync.WaitGroup
	closeOnce     sync.Once
	tracer        *tracing.Tracer
}

// NewProducer uses DI to inject AsyncProducer, logger, topic, WaitGroup, and tracer.
func NewProducer(asyncProducer sarama.AsyncProducer, topic string, log *slog.Logger, wg *sync.WaitGroup, tracer *tracing.Tracer) NotificationProducer {
	if asyncProducer == nil || log == nil || wg == nil || tracer == nil {
		panic("NewProducer: nil dependencies provided")
	}
	if topic == "" {
		panic("NewProducer: topic must not be empty")
	}
	return &producer{
		asyncProducer: asyncProducer,
		topic:         topic,
		log:           log,
		wg:            wg,
		tracer:        tracer,
	}
}

// Start launches background handlers for success and error channels
func (p *producer) Start(ctx context.Context) {
	p.log.Info("Starting Kafka producer handlers")
	p.wg.Add(2)
	go p.handleSuccess(ctx)
	go p.handleErrors(ctx)
}

// handleSuccess logs successful deliveries
func (p *producer) handleSuccess(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case msg, ok := <-p.asyncProducer.Successes():
			if !ok {
				p.log.Info("Kafka successes channel closed")
				return
			}

			key, _ := msg.Key.Encode()
			p.log.Info("Notification delivered to broker",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("key", string(key)))
		case <-ctx.Done():
			p.log.Info("Kafka success handler stopped by context")
			return
		}
	}
}

// handleErrors logs failed deliveries
func (p *producer) handleErrors(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case err, ok := <-p.asyncProducer.Errors():
			if !ok {
				p.log.Info("Kafka errors channel closed")
				return
			}
			p.log.Error("Notification delivery failed",
				slog.String("topic", err.Msg.Topic),
				slog.Any("error", err.Err))
		case <-ctx.Done():
			p.log.Info("Kafka error handler stopped by context")
			return
		}
	}
}

// Enqueue sends a change notification to the Kafka topic with tracing and
// context propagation.
func (p *producer) Enqueue(ctx context.Context, notif model.ChangeNotification) error {
	ctx, span := p.tracer.StartClientSpan(ctx, "KafkaEnqueue")
	defer span.End()

	data, err := json.Marshal(notif)
	if err != nil {
		p.log.Error("Failed to marshal notification",
			slog.String("change_id", notif.ChangeID),
			slog.Any("error", err))
		p.tracer.RecordError(span, err)
		return apperrors.NewDispatchError(notif.ChangeID, err)
	}

	// Inject trace context into headers for propagation to the consumer
	headers := tracing.InjectTraceContext(ctx, nil)

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(notif.DocumentID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers:   headers,
	}

	select {
	case p.asyncProducer.Input() <- msg:
		p.log.Info("Notification queued to Kafka",
			slog.String("topic", p.topic),
			slog.String("document_id", notif.DocumentID),
			slog.String("change_id", notif.ChangeID))
		p.tracer.AddKafkaAttributes(span, p.topic, "enqueue")
		span.SetAttributes(attribute.String("notification.change_id", notif.ChangeID))
		return nil
	case <-ctx.Done():
		p.log.Warn("Enqueue cancelled by context",
			slog.String("change_id", notif.ChangeID))
		p.tracer.RecordError(span, ctx.Err())
		return apperrors.NewDispatchError(notif.ChangeID, ctx.Err())
	}
}

// Close shuts down the producer and waits for workers
func (p *producer) Close(_ context.Context) {
	p.closeOnce.Do(func() {
		p.log.Info("Closing Kafka producer...")
		p.asyncProducer.AsyncClose()
		p.wg.Wait()
		p.log.Info("Kafka producer closed")
	})
}
