// Package consumer reads study events from Kafka and feeds them to projections.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrPermanent marks handler failures that retrying cannot fix. Such messages
// are committed and skipped.
var ErrPermanent = errors.New("permanent handler failure")

// Reader is the part of *kafka.Reader the processor uses.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler applies one decoded event.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a study event as framed by the outbox dispatcher: a
// Schema Registry header in the value and routing data in Kafka headers.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetry sets how often a failing handler is attempted for one message and
// the pause between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.retryDelay = delay
	}
}

// Processor fetches, decodes and handles messages from one reader, committing
// each offset once its event has been applied.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     *log.Logger
	attempts   int
	retryDelay time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled.
//
// Undecodable messages and permanent handler failures are committed so they
// cannot block the partition. A message whose handler keeps failing after all
// attempts is left uncommitted; the next successful commit on the partition
// moves past it.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			if !sleep(ctx, p.retryDelay) {
				return ctx.Err()
			}
			continue
		}

		event, err := decodeMessage(msg)
		if err != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, err)
			recordDecodeError(msg.Topic)
			p.commit(ctx, msg)
			continue
		}

		err = p.handle(ctx, event)
		switch {
		case err == nil:
			if p.commit(ctx, msg) {
				recordProcessed(event)
			}
		case errors.Is(err, ErrPermanent):
			p.logger.Printf("dropping event (event_type=%s, user=%s, offset=%d): %v", event.EventType, event.UserID, event.Offset, err)
			recordHandlerError(event)
			p.commit(ctx, msg)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			p.logger.Printf("handler gave up (event_type=%s, user=%s, offset=%d): %v", event.EventType, event.UserID, event.Offset, err)
			recordHandlerError(event)
		}
	}
}

func (p *Processor) handle(ctx context.Context, event Message) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, event); err == nil || errors.Is(err, ErrPermanent) {
			return err
		}
		if attempt < p.attempts {
			recordRetry(event)
			if !sleep(ctx, p.retryDelay) {
				return ctx.Err()
			}
		}
	}
	return err
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit error (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// decodeMessage strips the 5-byte Schema Registry prefix (magic 0, big-endian
// schema id) and reads the routing headers.
func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte: %d", msg.Value[0])
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers["event_type"]
	if eventType == "" {
		return Message{}, errors.New("missing event_type header")
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     eventType,
		UserID:        headers["user_id"],
		SchemaSubject: headers["schema_subject"],
		SchemaID:      int(binary.BigEndian.Uint32(msg.Value[1:5])),
		Payload:       json.RawMessage(append([]byte(nil), msg.Value[5:]...)),
	}, nil
}
