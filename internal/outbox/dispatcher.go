// Package outbox delivers study events recorded by the remote store to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

// claimLease is how long a claimed batch stays invisible to other dispatchers.
const claimLease = time.Minute

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is one outbox row.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// failure is a message that could not be published and why.
type failure struct {
	Message
	Reason string
}

// Dispatcher polls the outbox and publishes study events to Kafka in the
// Schema Registry wire format. Events that cannot be published are moved to
// the dead-letter table so later events are not held back.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	dlq          *DLQWriter
	pollInterval time.Duration
	batchSize    int
	schemaIDs    sync.Map
	now          func() time.Time
	done         chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		dlq:          NewDLQWriter(pool),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
		done:         make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is cancelled. Call it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has stopped.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.claim(ctx)
	if err != nil || len(messages) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	delivered, failed := d.deliver(ctx, messages)
	deliveredCounter.Add(float64(len(delivered)))

	if len(failed) > 0 {
		failedCounter.Add(float64(len(failed)))
		for _, f := range failed {
			log.Printf("outbox: event %d (%s) not delivered: %s", f.EventID, f.EventType, f.Reason)
		}
		if err := d.dlq.WriteAll(ctx, failed); err != nil {
			// Leave the batch unpublished; the lease expires and it is retried.
			return fmt.Errorf("dead-letter %d events: %w", len(failed), err)
		}
		for _, f := range failed {
			dlqCounter.WithLabelValues(f.Topic).Inc()
		}
	}
	return d.markPublished(ctx, messages)
}

// claim leases the oldest unpublished rows. Rows whose lease expired, for
// example after a crash mid-delivery, become claimable again.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	const query = `UPDATE outbox SET claimed_at = NOW()
        WHERE event_id IN (
            SELECT event_id FROM outbox
            WHERE published_at IS NULL
              AND (claimed_at IS NULL OR claimed_at < NOW() - $2::interval)
            ORDER BY event_id
            LIMIT $1
            FOR UPDATE SKIP LOCKED)
        RETURNING event_id, user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload`

	rows, err := d.pool.Query(ctx, query, d.batchSize, claimLease)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
	if err != nil {
		return nil, err
	}
	slices.SortFunc(messages, func(a, b Message) int {
		return int(a.EventID - b.EventID)
	})
	return messages, nil
}

// deliver frames the messages and writes them grouped by topic, keeping
// outbox order within a topic. A topic whose write fails only fails its own
// messages.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) ([]Message, []failure) {
	var (
		topics    []string
		batches   = make(map[string][]kafka.Message)
		originals = make(map[string][]Message)
		failed    []failure
		delivered []Message
	)

	for _, msg := range messages {
		record, err := d.encode(ctx, msg)
		if err != nil {
			failed = append(failed, failure{Message: msg, Reason: err.Error()})
			continue
		}
		if _, seen := batches[msg.Topic]; !seen {
			topics = append(topics, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
		originals[msg.Topic] = append(originals[msg.Topic], msg)
	}

	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			reason := fmt.Sprintf("write %s: %v", topic, err)
			for _, msg := range originals[topic] {
				failed = append(failed, failure{Message: msg, Reason: reason})
			}
			continue
		}
		delivered = append(delivered, originals[topic]...)
	}
	return delivered, failed
}

func (d *Dispatcher) encode(ctx context.Context, msg Message) (kafka.Message, error) {
	meta, ok := schemaCatalog[msg.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  d.now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "user_id", Value: []byte(msg.UserID)},
			{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
		},
	}, nil
}

// schemaID registers each subject/schema pair once per process.
func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "::" + schema
	if id, ok := d.schemaIDs.Load(key); ok {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDs.Store(key, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

// encodeWireFormat prefixes payload with the Confluent magic byte and the
// big-endian schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
