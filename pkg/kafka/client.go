// Package kafka carries export tasks between the web service and the export
// worker.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"oc-search-go/internal/config"
	"oc-search-go/pkg/database"
	"oc-search-go/pkg/log"
	"oc-search-go/pkg/tasks"
)

// maxAttempts is how many times a failing task is redelivered before its
// offset is committed anyway.
const maxAttempts = 3

// TaskProcessor handles one export task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ExportTask) error
}

var producer *kafka.Writer

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer creates the export task writer.
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka producer initialized")
}

// ProduceExportTask queues task, keyed by its cache key so duplicate
// requests land on the same partition.
func ProduceExportTask(ctx context.Context, task tasks.ExportTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{Key: []byte(task.CacheKey), Value: taskBytes})
}

// CloseProducer flushes and closes the writer.
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// StartConsumer processes export tasks until ctx is cancelled. Offsets are
// committed after success, for undecodable messages, and once a task has
// failed maxAttempts times.
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka consumer started, topic '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("failed to read Kafka message", err)
			}
			break
		}

		var task tasks.ExportTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("cannot decode Kafka message: %v, value: %s", err, string(m.Value))
			commit(ctx, r, m)
			continue
		}

		log.Infof("export task received: id=%s, search=%s, offset=%d", task.TaskID, task.SearchID, m.Offset)
		attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.TaskID)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("export task failed: id=%s, error: %v", task.TaskID, err)
			attempts, incErr := database.RDB.Incr(ctx, attemptsKey).Result()
			if incErr != nil {
				// without a counter, leave the offset for redelivery
				continue
			}
			_ = database.RDB.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			if attempts >= maxAttempts {
				log.Errorf("export task failed %d times, giving up: id=%s", attempts, task.TaskID)
				commit(ctx, r, m)
			}
			continue
		}

		log.Infof("export task done: id=%s", task.TaskID)
		_ = database.RDB.Del(ctx, attemptsKey).Err()
		commit(ctx, r, m)
	}

	if err := r.Close(); err != nil {
		log.Errorf("failed to close Kafka consumer: %v", err)
	}
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("failed to commit Kafka offset: %v", err)
	}
}
