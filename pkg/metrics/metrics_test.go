package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTransition(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.ObserveTransition("assign", nil)
	m.ObserveTransition("assign", errors.New("slot taken"))
	m.ObserveTransition("assign", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AppointmentTransitions.WithLabelValues("assign", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AppointmentTransitions.WithLabelValues("assign", "error")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("cancel", nil)
		m.SlotConflict()
		m.TokenVerified("ok")
		m.Decision("appointment", true)
		m.DatabaseOperation("insert", nil)
	})
}

func TestDecisionLabels(t *testing.T) {
	m := NewNop()
	m.Decision("appointment", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorizationDecisions.WithLabelValues("appointment", "deny")))
}
