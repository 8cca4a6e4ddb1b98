package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-iam/internal/jobs"
	"github.com/odyssey-erp/odyssey-iam/internal/notifications"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSendNotification is the task type for delivering a notification.
	TaskSendNotification = "notification:send"
)

// NotificationPayload is the queued form of a notification.
type NotificationPayload struct {
	Kind notifications.Kind `json:"kind"`
	Data json.RawMessage    `json:"data"`
}

// NewNotificationTask constructs an Asynq task carrying n.
func NewNotificationTask(n notifications.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode %s notification: %w", n.Kind(), err)
	}
	payload, err := json.Marshal(NotificationPayload{Kind: n.Kind(), Data: data})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendNotification, payload), nil
}

// Sender delivers a decoded notification payload.
type Sender interface {
	SendEncoded(ctx context.Context, kind notifications.Kind, payload []byte) error
}

// NotificationJob processes TaskSendNotification tasks.
type NotificationJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotificationJob wires dependencies for the notification handler.
func NewNotificationJob(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle decodes and delivers a queued notification. Malformed payloads are not retried.
func (j *NotificationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("notification job: handler not configured")
	}
	tracker := j.Metrics.Track(TaskSendNotification)

	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.Logger.Warn("discard malformed notification task", slog.Any("error", err))
		return tracker.End(fmt.Errorf("notification job: decode payload: %w", asynq.SkipRetry))
	}
	logger := j.Logger.With(slog.String("kind", string(payload.Kind)))
	if _, err := notifications.Decode(payload.Kind, payload.Data); err != nil {
		logger.Warn("discard invalid notification", slog.Any("error", err))
		return tracker.End(fmt.Errorf("notification job: %v: %w", err, asynq.SkipRetry))
	}
	if err := j.Sender.SendEncoded(ctx, payload.Kind, payload.Data); err != nil {
		logger.Error("deliver notification", slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
