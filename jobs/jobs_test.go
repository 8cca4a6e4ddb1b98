package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/notifications"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (c *captureEnqueuer) Close() error { return nil }

type captureSender struct {
	kinds    []notifications.Kind
	payloads [][]byte
	err      error
}

func (s *captureSender) SendEncoded(ctx context.Context, kind notifications.Kind, payload []byte) error {
	s.kinds = append(s.kinds, kind)
	s.payloads = append(s.payloads, payload)
	return s.err
}

func TestPublishPasswordRecoveryQueuesNotification(t *testing.T) {
	enq := &captureEnqueuer{}
	client := &Client{client: enq}
	expires := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	err := client.PublishPasswordRecovery(context.Background(), auth.PasswordRecoveryRequested{Email: "ana@x.com", Token: "tok", ExpiresAt: expires})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskSendNotification, enq.tasks[0].Type())

	var payload NotificationPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, notifications.KindPasswordRecovery, payload.Kind)

	n, err := notifications.Decode(payload.Kind, payload.Data)
	require.NoError(t, err)
	assert.Equal(t, notifications.PasswordRecovery{Email: "ana@x.com", Token: "tok", ExpiresAt: expires}, n)
}

func TestPublishPropagatesEnqueueError(t *testing.T) {
	boom := errors.New("redis down")
	client := &Client{client: &captureEnqueuer{err: boom}}
	err := client.EnqueueNotification(context.Background(), notifications.Example{Email: "a@x.com"})
	require.ErrorIs(t, err, boom)
}

func TestNotificationJobDeliversPayload(t *testing.T) {
	sender := &captureSender{}
	job := NewNotificationJob(sender, nil, nil)
	task, err := NewNotificationTask(notifications.Example{Email: "a@x.com", Message: "hi"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []notifications.Kind{notifications.KindExample}, sender.kinds)
	assert.JSONEq(t, `{"email":"a@x.com","message":"hi"}`, string(sender.payloads[0]))
}

func TestNotificationJobSkipsRetryForBadPayload(t *testing.T) {
	sender := &captureSender{}
	job := NewNotificationJob(sender, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSendNotification, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskSendNotification, []byte(`{"kind":"fax","data":{}}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, sender.kinds)
}

func TestNotificationJobRetriesDeliveryFailure(t *testing.T) {
	boom := errors.New("smtp down")
	job := NewNotificationJob(&captureSender{err: boom}, nil, nil)
	task, err := NewNotificationTask(notifications.Example{Email: "a@x.com"})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Failed: 1}}, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"active":0,"retry":0,"archived":0,"processed":0,"failed":1}`, rec.Body.String())

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{err: errors.New("down")}, nil).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
