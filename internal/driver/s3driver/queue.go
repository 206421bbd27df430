// queue.go — очередь backup/file-log задач поверх Kafka.
// Публикация best-effort: ошибка логируется и никогда не поднимается
// до обработчика запроса.
package s3driver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/bigkaa/gaiahub/internal/domain/model"
)

// publishTimeout — предельное время публикации одной задачи.
const publishTimeout = 5 * time.Second

// taskEnvelope — сообщение очереди задач.
type taskEnvelope struct {
	ID          string                `json:"id"`
	BackupPaths []string              `json:"backupPaths"`
	FileLogs    []model.FileLogRecord `json:"fileLogs"`
	EnqueuedAt  time.Time             `json:"enqueuedAt"`
}

// taskQueue — Kafka-producer очереди задач.
// При пустом списке брокеров очередь отключена: задачи только логируются.
type taskQueue struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func newTaskQueue(brokers []string, topic string, logger *slog.Logger) *taskQueue {
	q := &taskQueue{
		logger: logger.With(slog.String("component", "task_queue")),
	}
	if len(brokers) == 0 {
		return q
	}
	q.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return q
}

func (q *taskQueue) enabled() bool {
	return q.writer != nil
}

// publish отправляет задачу в топик. Ошибки не поднимаются.
func (q *taskQueue) publish(ctx context.Context, task *model.Task) {
	env := taskEnvelope{
		ID:          uuid.New().String(),
		BackupPaths: task.BackupPaths,
		FileLogs:    task.FileLogs,
		EnqueuedAt:  time.Now().UTC(),
	}

	if q.writer == nil {
		q.logger.Debug("Очередь задач отключена, задача пропущена",
			slog.Int("backup_paths", len(env.BackupPaths)),
			slog.Int("file_logs", len(env.FileLogs)),
		)
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		q.logger.Error("Ошибка кодирования задачи очереди", slog.String("error", err.Error()))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := q.writer.WriteMessages(pubCtx, kafka.Message{
		Key:   []byte(env.ID),
		Value: payload,
	}); err != nil {
		q.logger.Error("Ошибка публикации задачи в очередь",
			slog.String("task_id", env.ID),
			slog.String("error", err.Error()),
		)
	}
}
