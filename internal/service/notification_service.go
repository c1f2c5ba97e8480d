package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/pkg/jobs"
	"github.com/noah-isme/bursary-api/pkg/notify"
)

const notificationJobType = "notification"

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationService turns committed lifecycle events into email and SMS messages.
// Delivery failures are logged and never reach the caller.
type NotificationService struct {
	users   userReader
	out     notify.Fanout
	queue   notificationQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService wraps each sender with delivery metrics.
func NewNotificationService(users userReader, senders []notify.Sender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(notify.Fanout, 0, len(senders))
	for _, sender := range senders {
		if sender == nil {
			continue
		}
		out = append(out, meteredSender{Sender: sender, metrics: metrics})
	}
	return &NotificationService{users: users, out: out, metrics: metrics, logger: logger}
}

// UseQueue routes deliveries through a background queue built by the caller
// around HandleJob.
func (s *NotificationService) UseQueue(queue notificationQueue) {
	s.queue = queue
}

// Dispatch implements EventDispatcher. Queued delivery never blocks the caller;
// a full queue drops the message.
func (s *NotificationService) Dispatch(ctx context.Context, events ...lifecycle.Event) {
	for _, evt := range events {
		msg, ok := s.render(ctx, evt)
		if !ok {
			continue
		}
		if s.queue != nil {
			job := jobs.Job{ID: uuid.NewString(), Type: notificationJobType, Payload: msg, Enqueued: time.Now().UTC()}
			if err := s.queue.TryEnqueue(job); err != nil {
				s.metrics.RecordNotification("queue", false)
				s.logger.Warn("notification enqueue failed",
					zap.String("application_id", evt.ApplicationID),
					zap.String("event", string(evt.Kind)),
					zap.Error(err),
				)
			}
			continue
		}
		if err := s.out.Send(ctx, msg); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("application_id", evt.ApplicationID),
				zap.String("event", string(evt.Kind)),
				zap.Error(err),
			)
		}
	}
}

// HandleJob delivers a queued message. Returned errors let the queue retry.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(notify.Message)
	if !ok {
		s.logger.Warn("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.out.Send(ctx, msg)
}

func (s *NotificationService) render(ctx context.Context, evt lifecycle.Event) (notify.Message, bool) {
	if evt.Kind == lifecycle.EventApproved {
		return notify.Message{}, false
	}
	student, err := s.users.FindByID(ctx, evt.StudentID)
	if err != nil {
		s.logger.Warn("notification recipient lookup failed", zap.String("student_id", evt.StudentID), zap.Error(err))
		return notify.Message{}, false
	}

	msg := notify.Message{To: notify.Recipient{Name: student.FullName, Email: student.Email, Phone: student.PhoneNumber()}}
	switch evt.Kind {
	case lifecycle.EventSubmitted:
		msg.Subject = "Bursary Application Received"
		msg.Body = fmt.Sprintf("Hello %s, your application for the %s academic year has been successfully submitted and is pending review.", student.FullName, evt.AcademicYear)
	case lifecycle.EventRecommended:
		msg.Subject = "Application Recommended"
		msg.Body = fmt.Sprintf("Great news! Your application ID %s has been recommended by the committee for final approval.", evt.ApplicationID)
	case lifecycle.EventRejected:
		msg.Subject = "Application Status Update"
		msg.Body = fmt.Sprintf("We regret to inform you that your application ID %s was not approved. You can view the reason on the dashboard.", evt.ApplicationID)
	case lifecycle.EventDisbursed:
		msg.Subject = "Funds Disbursed!"
		msg.Body = fmt.Sprintf("Success! Your bursary of KES %s has been disbursed. Payment Reference: %s. Please check with your school for fee confirmation.", formatAmount(evt.Amount), evt.Reference)
	default:
		return notify.Message{}, false
	}
	return msg, true
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

type meteredSender struct {
	notify.Sender
	metrics *MetricsService
}

func (m meteredSender) Send(ctx context.Context, msg notify.Message) error {
	err := m.Sender.Send(ctx, msg)
	m.metrics.RecordNotification(m.Channel(), err == nil)
	return err
}
