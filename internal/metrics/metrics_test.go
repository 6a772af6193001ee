package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryExposesRelayCollectors(t *testing.T) {
	SessionsTerminated.WithLabelValues(CauseHeartbeatTimeout).Inc()

	families, err := NewRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["relay_session_active"])
	assert.True(t, names["relay_session_terminated_total"])
	assert.True(t, names["relay_lobby_messages_relayed_total"])
	assert.True(t, names["relay_lobby_messages_dropped_total"])
}

func TestNewRegistryIsIndependent(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = NewRegistry()
		_ = NewRegistry()
	})
}
