package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/pkg/jobs"
	"github.com/noah-isme/bursary-api/pkg/notify"
)

type captureSender struct {
	mu       sync.Mutex
	channel  string
	err      error
	messages []notify.Message
}

func (c *captureSender) Channel() string { return c.channel }

func (c *captureSender) Send(ctx context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return c.err
}

type captureQueue struct {
	jobs []jobs.Job
}

func (q *captureQueue) TryEnqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func notificationUsers() stubUsers {
	phone := "0712345678"
	return stubUsers{"student-1": {ID: "student-1", FullName: "Jane Wanjiru", Email: "jane@example.com", Phone: &phone}}
}

func TestNotificationServiceRendersEachEventKind(t *testing.T) {
	email := &captureSender{channel: "email"}
	svc := NewNotificationService(notificationUsers(), []notify.Sender{email}, nil, zap.NewNop())

	base := lifecycle.Event{ApplicationID: "app-1", StudentID: "student-1", AcademicYear: "2025/2026", Amount: 15000, Reference: "MPESAABCDEF12"}
	kinds := []lifecycle.EventKind{lifecycle.EventSubmitted, lifecycle.EventRecommended, lifecycle.EventApproved, lifecycle.EventRejected, lifecycle.EventDisbursed}
	for _, kind := range kinds {
		evt := base
		evt.Kind = kind
		svc.Dispatch(context.Background(), evt)
	}

	require.Len(t, email.messages, 4)
	assert.Equal(t, "Bursary Application Received", email.messages[0].Subject)
	assert.Contains(t, email.messages[0].Body, "2025/2026")
	assert.Equal(t, "Application Recommended", email.messages[1].Subject)
	assert.Equal(t, "Application Status Update", email.messages[2].Subject)
	assert.Equal(t, "Funds Disbursed!", email.messages[3].Subject)
	assert.Contains(t, email.messages[3].Body, "KES 15000.00")
	assert.Contains(t, email.messages[3].Body, "Payment Reference: MPESAABCDEF12")
	assert.Equal(t, "jane@example.com", email.messages[3].To.Email)
	assert.Equal(t, "0712345678", email.messages[3].To.Phone)
}

func TestNotificationServiceSwallowsDeliveryFailures(t *testing.T) {
	failing := &captureSender{channel: "email", err: errors.New("smtp down")}
	sms := &captureSender{channel: "sms"}
	metrics := NewMetricsService()
	svc := NewNotificationService(notificationUsers(), []notify.Sender{failing, sms}, metrics, zap.NewNop())

	assert.NotPanics(t, func() {
		svc.Dispatch(context.Background(), lifecycle.Event{Kind: lifecycle.EventSubmitted, StudentID: "student-1"})
	})
	assert.Len(t, sms.messages, 1)
}

func TestNotificationServiceSkipsUnknownRecipient(t *testing.T) {
	email := &captureSender{channel: "email"}
	svc := NewNotificationService(stubUsers{}, []notify.Sender{email}, nil, zap.NewNop())
	svc.Dispatch(context.Background(), lifecycle.Event{Kind: lifecycle.EventSubmitted, StudentID: "ghost"})
	assert.Empty(t, email.messages)
}

func TestNotificationServiceQueuesWhenConfigured(t *testing.T) {
	email := &captureSender{channel: "email"}
	svc := NewNotificationService(notificationUsers(), []notify.Sender{email}, nil, zap.NewNop())
	queue := &captureQueue{}
	svc.UseQueue(queue)

	svc.Dispatch(context.Background(), lifecycle.Event{Kind: lifecycle.EventRejected, ApplicationID: "app-1", StudentID: "student-1"})
	require.Len(t, queue.jobs, 1)
	assert.Empty(t, email.messages)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))
	require.Len(t, email.messages, 1)
	assert.Equal(t, "Application Status Update", email.messages[0].Subject)
}

func TestNotificationServiceHandleJobPropagatesFailureForRetry(t *testing.T) {
	failing := &captureSender{channel: "email", err: errors.New("smtp down")}
	svc := NewNotificationService(notificationUsers(), []notify.Sender{failing}, nil, zap.NewNop())

	err := svc.HandleJob(context.Background(), jobs.Job{ID: "j1", Payload: notify.Message{Subject: "x", To: notify.Recipient{Email: "a@b.c"}}})
	require.Error(t, err)
	assert.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "j2", Payload: "garbage"}))
}


func TestNotificationServiceDropsWhenQueueIsFull(t *testing.T) {
	block := make(chan struct{})
	email := &captureSender{channel: "email"}
	svc := NewNotificationService(notificationUsers(), []notify.Sender{email}, NewMetricsService(), zap.NewNop())
	queue := jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, jobs.QueueConfig{Workers: 1, BufferSize: 1})
	queue.Start(context.Background())
	defer func() {
		close(block)
		queue.Stop()
	}()
	svc.UseQueue(queue)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			svc.Dispatch(context.Background(), lifecycle.Event{Kind: lifecycle.EventSubmitted, ApplicationID: "app-1", StudentID: "student-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a stalled queue")
	}
	assert.NotZero(t, queue.Stats().Dropped)
	assert.Empty(t, email.messages)
}
