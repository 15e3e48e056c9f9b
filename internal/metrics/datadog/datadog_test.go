package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoimport/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := NewBackend(Config{})
	require.Error(t, err)
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, labelsToTags(nil))
	assert.Equal(t,
		[]string{"job:geo", "kind:processed"},
		labelsToTags(metrics.Labels{"kind": "processed", "job": "geo"}))
}

func TestZeroBackendIsSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	assert.NotPanics(t, func() {
		b.IncCounter(metrics.ChunksTotal, 1, nil)
		b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
	})
	assert.NoError(t, b.Flush())
}

func TestBackendSendsToAgent(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String(), Namespace: "geo.", GlobalTags: []string{"env:test"}})
	require.NoError(t, err)

	b.IncCounter(metrics.ChunksTotal, 4, metrics.Labels{"job": "geoimport"})
	require.NoError(t, b.Flush())

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	got := string(buf[:n])
	assert.True(t, strings.Contains(got, "geo."+metrics.ChunksTotal+":4|c"), got)
	assert.Contains(t, got, "job:geoimport")
	assert.Contains(t, got, "env:test")
}
