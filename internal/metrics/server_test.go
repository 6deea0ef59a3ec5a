package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesCounters(t *testing.T) {
	ICRCChecksTotal.WithLabelValues(ResultValid).Inc()

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `rocev2_icrc_checks_total{result="valid"}`)
}

func TestServerListenError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", "/metrics")
	assert.Error(t, s.Start(context.Background()))
	assert.Nil(t, s.Addr())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(FramesSentTotal.WithLabelValues("test"))
	FramesSentTotal.WithLabelValues("test").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(FramesSentTotal.WithLabelValues("test")))
}
