package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.InvitationResponses.WithLabelValues("event", "accepted").Inc()
	m.RealtimeConnected.Set(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvitationResponses.WithLabelValues("event", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimeConnected))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewMetrics_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NopMetrics()
		NopMetrics()
	})
}
