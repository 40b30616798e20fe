// Package worker publishes outbox rows to Kafka. Events are written to the
// outbox in the same transaction as the state change that caused them; this
// worker is the at-least-once bridge to the stream.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"pkt.systems/pslog"

	"registrar/internal/platform/logger"
)

const batchSize = 100

// Worker drains unpublished outbox rows into a Kafka topic.
type Worker struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	interval time.Duration
	log      pslog.Logger
}

// New connects a producer and ensures the topic exists.
func New(db *sql.DB, brokers []string, topic string, interval time.Duration, log pslog.Logger) (*Worker, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	if err := ensureTopic(context.Background(), client, topic); err != nil {
		client.Close()
		return nil, err
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		db:       db,
		client:   client,
		topic:    topic,
		interval: interval,
		log:      logger.WithSubsystem(log, "audit.outbox"),
	}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, res.Err)
		}
	}
	return nil
}

// Run polls the outbox until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.publishBatch(ctx); err != nil {
				w.log.Error("registrar.outbox.publish_failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id          string
	aggregateID string
	eventType   string
	payload     []byte
}

func (w *Worker) publishBatch(ctx context.Context) error {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, batchSize)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}
	var batch []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.aggregateID, &r.eventType, &r.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox: %w", err)
	}

	for _, row := range batch {
		record := &kgo.Record{
			Topic: w.topic,
			Key:   []byte(row.aggregateID),
			Value: row.payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(row.eventType)},
			},
		}
		// Produce before marking: a crash between the two replays the
		// event, which consumers deduplicate by ID.
		if err := w.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce outbox row %s: %w", row.id, err)
		}
		if _, err := w.db.ExecContext(ctx,
			`UPDATE outbox SET published_at = $2 WHERE id = $1`,
			row.id, time.Now()); err != nil {
			return fmt.Errorf("mark outbox row %s: %w", row.id, err)
		}
	}
	if len(batch) > 0 {
		w.log.Debug("registrar.outbox.published", "count", len(batch))
	}
	return nil
}

// Close flushes and releases the producer.
func (w *Worker) Close() {
	w.client.Close()
}
