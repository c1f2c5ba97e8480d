// Package lifecycle defines the application status machine and the events
// produced when an application changes state.
package lifecycle

import (
	"time"

	"github.com/noah-isme/bursary-api/internal/models"
)

var transitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationStatusPending:     {models.ApplicationStatusRecommended, models.ApplicationStatusRejected},
	models.ApplicationStatusRecommended: {models.ApplicationStatusApproved, models.ApplicationStatusRejected},
	models.ApplicationStatusApproved:    {models.ApplicationStatusPaid},
}

// CanTransition reports whether from -> to is an allowed single step.
func CanTransition(from, to models.ApplicationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves status.
func Terminal(status models.ApplicationStatus) bool {
	return len(transitions[status]) == 0
}

// Sources lists the statuses that may move to target.
func Sources(target models.ApplicationStatus) []models.ApplicationStatus {
	var out []models.ApplicationStatus
	for _, from := range []models.ApplicationStatus{
		models.ApplicationStatusPending,
		models.ApplicationStatusRecommended,
		models.ApplicationStatusApproved,
	} {
		if CanTransition(from, target) {
			out = append(out, from)
		}
	}
	return out
}

// Editable reports whether the owner may still change the application.
func Editable(status models.ApplicationStatus) bool {
	return status == models.ApplicationStatusPending
}

// EventKind names a lifecycle event.
type EventKind string

const (
	EventSubmitted   EventKind = "submitted"
	EventRecommended EventKind = "recommended"
	EventApproved    EventKind = "approved"
	EventRejected    EventKind = "rejected"
	EventDisbursed   EventKind = "disbursed"
)

// Event describes one committed state change.
type Event struct {
	Kind          EventKind
	ApplicationID string
	StudentID     string
	AcademicYear  string
	From          models.ApplicationStatus
	To            models.ApplicationStatus
	Amount        float64
	Reference     string
	Reason        string
	ActorID       string
	OccurredAt    time.Time
}

// Detail carries the optional event attributes.
type Detail struct {
	Reference string
	Reason    string
	ActorID   string
}

// Submitted builds the event for a newly created application.
func Submitted(app *models.Application, actorID string, at time.Time) Event {
	return Event{
		Kind:          EventSubmitted,
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		AcademicYear:  app.AcademicYear,
		To:            models.ApplicationStatusPending,
		Amount:        app.AmountRequested,
		ActorID:       actorID,
		OccurredAt:    at,
	}
}

// NewTransitionEvent builds the event for from -> to. It returns false when
// the status did not change or the target has no event kind.
func NewTransitionEvent(app *models.Application, from, to models.ApplicationStatus, detail Detail, at time.Time) (Event, bool) {
	if from == to {
		return Event{}, false
	}
	kind, ok := kindFor(to)
	if !ok {
		return Event{}, false
	}
	return Event{
		Kind:          kind,
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		AcademicYear:  app.AcademicYear,
		From:          from,
		To:            to,
		Amount:        app.AmountRequested,
		Reference:     detail.Reference,
		Reason:        detail.Reason,
		ActorID:       detail.ActorID,
		OccurredAt:    at,
	}, true
}

func kindFor(status models.ApplicationStatus) (EventKind, bool) {
	switch status {
	case models.ApplicationStatusRecommended:
		return EventRecommended, true
	case models.ApplicationStatusApproved:
		return EventApproved, true
	case models.ApplicationStatusRejected:
		return EventRejected, true
	case models.ApplicationStatusPaid:
		return EventDisbursed, true
	}
	return "", false
}
