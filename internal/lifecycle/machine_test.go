package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bursary-api/internal/models"
)

func TestTransitionTable(t *testing.T) {
	all := []models.ApplicationStatus{
		models.ApplicationStatusPending,
		models.ApplicationStatusRecommended,
		models.ApplicationStatusApproved,
		models.ApplicationStatusPaid,
		models.ApplicationStatusRejected,
	}
	allowed := map[[2]models.ApplicationStatus]bool{
		{models.ApplicationStatusPending, models.ApplicationStatusRecommended}:  true,
		{models.ApplicationStatusPending, models.ApplicationStatusRejected}:     true,
		{models.ApplicationStatusRecommended, models.ApplicationStatusApproved}: true,
		{models.ApplicationStatusRecommended, models.ApplicationStatusRejected}: true,
		{models.ApplicationStatusApproved, models.ApplicationStatusPaid}:        true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]models.ApplicationStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, Terminal(models.ApplicationStatusPaid))
	assert.True(t, Terminal(models.ApplicationStatusRejected))
	assert.False(t, Terminal(models.ApplicationStatusPending))
	assert.False(t, Terminal(models.ApplicationStatusApproved))
}

func TestSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.ApplicationStatus{models.ApplicationStatusPending, models.ApplicationStatusRecommended},
		Sources(models.ApplicationStatusRejected))
	assert.Equal(t, []models.ApplicationStatus{models.ApplicationStatusApproved}, Sources(models.ApplicationStatusPaid))
	assert.Empty(t, Sources(models.ApplicationStatusPending))
}

func TestEditableOnlyWhilePending(t *testing.T) {
	assert.True(t, Editable(models.ApplicationStatusPending))
	assert.False(t, Editable(models.ApplicationStatusRecommended))
	assert.False(t, Editable(models.ApplicationStatusRejected))
}

func TestNewTransitionEvent(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	app := &models.Application{ID: "app-1", StudentID: "stu-1", AcademicYear: "2025/2026", AmountRequested: 15000}

	evt, ok := NewTransitionEvent(app, models.ApplicationStatusApproved, models.ApplicationStatusPaid, Detail{Reference: "MPESA0A1B2C3D", ActorID: "admin-1"}, at)
	assert.True(t, ok)
	assert.Equal(t, EventDisbursed, evt.Kind)
	assert.Equal(t, "MPESA0A1B2C3D", evt.Reference)
	assert.Equal(t, 15000.0, evt.Amount)
	assert.Equal(t, at, evt.OccurredAt)

	_, ok = NewTransitionEvent(app, models.ApplicationStatusRejected, models.ApplicationStatusRejected, Detail{}, at)
	assert.False(t, ok)

	_, ok = NewTransitionEvent(app, models.ApplicationStatusRecommended, models.ApplicationStatusPending, Detail{}, at)
	assert.False(t, ok)
}

func TestSubmittedEvent(t *testing.T) {
	app := &models.Application{ID: "app-1", StudentID: "stu-1", AcademicYear: "2025/2026"}
	evt := Submitted(app, "stu-1", time.Now())
	assert.Equal(t, EventSubmitted, evt.Kind)
	assert.Equal(t, models.ApplicationStatusPending, evt.To)
	assert.Empty(t, evt.From)
}
