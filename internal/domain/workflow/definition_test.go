package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath_Prescription(t *testing.T) {
	p := ResolvePath(true)
	assert.Equal(t, Path{
		StatusConsultationPending, StatusIntakeCompleted, StatusProviderReview,
		StatusProviderApproved, StatusPrescriptionCreated, StatusPrescriptionSent,
		StatusPharmacyReceived, StatusPharmacyFilling, StatusPharmacyReady,
		StatusPharmacyDispensed, StatusCompleted,
	}, p)
}

func TestResolvePath_OTC(t *testing.T) {
	p := ResolvePath(false)
	assert.Equal(t, Path{
		StatusPaymentPending, StatusPaymentCompleted, StatusOrderProcessing,
		StatusOrderShipped, StatusOrderDelivered, StatusCompleted,
	}, p)
}

func TestResolvePath_ReturnsCopy(t *testing.T) {
	p := ResolvePath(true)
	p[0] = StatusException
	assert.Equal(t, StatusConsultationPending, ResolvePath(true)[0])
}

func TestCategoryOf_TotalOverPaths(t *testing.T) {
	for _, rx := range []bool{true, false} {
		for _, s := range ResolvePath(rx) {
			c := CategoryOf(s)
			assert.NotEmpty(t, c, "status %s", s)
			assert.Equal(t, c, CategoryOf(s), "deterministic for %s", s)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		status Status
		want   StatusCategory
	}{
		{StatusConsultationPending, CategoryPending},
		{StatusPaymentPending, CategoryPending},
		{StatusProviderReview, CategoryInProgress},
		{StatusOrderShipped, CategoryInProgress},
		{StatusPharmacyReady, CategoryReady},
		{StatusOrderDelivered, CategoryReady},
		{StatusCompleted, CategoryCompleted},
		{StatusCancelled, CategoryCancelled},
		{StatusException, CategoryPending},
		{Status("teleported"), CategoryPending},
		{Status(""), CategoryPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.status))
		})
	}
}

func TestTerminalAndEscape(t *testing.T) {
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal(StatusException))
	assert.True(t, IsEscape(StatusException))
	assert.True(t, IsEscape(StatusCancelled))
	assert.False(t, IsEscape(StatusCompleted))
}

func TestNextPossibleActions(t *testing.T) {
	p := ResolvePath(false)
	assert.Equal(t, []Action{ActionAdvance, ActionCancel, ActionFlag}, NextPossibleActions(p, StatusOrderShipped))
	assert.Equal(t, []Action{ActionResume, ActionCancel}, NextPossibleActions(p, StatusException))
	assert.Empty(t, NextPossibleActions(p, StatusCompleted))
	assert.Empty(t, NextPossibleActions(p, StatusCancelled))
}

func TestPath_RemainingDwell(t *testing.T) {
	p := ResolvePath(false)
	require.Equal(t, 5, p.IndexOf(StatusCompleted))

	assert.Equal(t, time.Hour, p.RemainingDwell(p.IndexOf(StatusOrderDelivered)))
	assert.Equal(t, time.Duration(0), p.RemainingDwell(p.IndexOf(StatusCompleted)))
	assert.Equal(t, 15*time.Minute+5*time.Minute+24*time.Hour+72*time.Hour+time.Hour, p.RemainingDwell(0))
}
