// Package events publishes order state changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/bakery-shop/internal/domain/order"
)

// ErrBufferFull is returned when the outbound buffer cannot take more events.
var ErrBufferFull = errors.New("event buffer full")

// maxBatch bounds the events handed to one WriteMessages call.
const maxBatch = 100

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers order events and writes them to a Kafka topic from a
// single goroutine. Publish never blocks on the broker.
type Producer struct {
	w     messageWriter
	inbox chan kafka.Message
	done  chan struct{}
}

// NewProducer creates a Producer writing to topic on brokers.
func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    maxBatch,
		BatchTimeout: 50 * time.Millisecond,
	}, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	return &Producer{
		w:     w,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

type envelope struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	PaymentRef    string    `json:"paymentRef,omitempty"`
	FinalPrice    string    `json:"finalPrice"`
	Message       string    `json:"message,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publish enqueues e keyed by order id so events of one order stay ordered.
func (p *Producer) Publish(_ context.Context, e order.Event) error {
	value, err := json.Marshal(envelope{
		Type:          e.Type,
		OrderID:       e.OrderID,
		UserID:        e.UserID,
		Status:        string(e.Status),
		PaymentStatus: string(e.PaymentStatus),
		PaymentRef:    e.PaymentRef,
		FinalPrice:    e.FinalPrice.StringFixed(2),
		Message:       e.Message,
		OccurredAt:    e.OccurredAt.UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	msg := kafka.Message{
		Key:     []byte(e.OrderID),
		Value:   value,
		Time:    e.OccurredAt,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run writes buffered events until ctx is done, then flushes what is left
// and closes the writer. Events waiting together are written as one batch.
func (p *Producer) Run(ctx context.Context) error {
	defer close(p.done)
	lg := zctx.From(ctx)
	batch := make([]kafka.Message, 0, maxBatch)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				batch = p.collect(batch[:0])
				if len(batch) == 0 {
					return p.w.Close()
				}
				p.write(flushCtx, lg, batch)
			}
		case m := <-p.inbox:
			// A batch in flight is not abandoned when shutdown starts.
			p.write(context.WithoutCancel(ctx), lg, p.collect(append(batch[:0], m)))
		}
	}
}

// Done is closed once Run has returned.
func (p *Producer) Done() <-chan struct{} { return p.done }

// collect appends the events already waiting in the inbox, up to maxBatch.
func (p *Producer) collect(batch []kafka.Message) []kafka.Message {
	for len(batch) < maxBatch {
		select {
		case m := <-p.inbox:
			batch = append(batch, m)
		default:
			return batch
		}
	}
	return batch
}

func (p *Producer) write(ctx context.Context, lg *zap.Logger, batch []kafka.Message) {
	if err := p.w.WriteMessages(ctx, batch...); err != nil {
		lg.Error("Publish order events",
			zap.Int("count", len(batch)),
			zap.String("first_order_id", string(batch[0].Key)),
			zap.Error(err),
		)
	}
}
