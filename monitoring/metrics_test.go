package monitoring

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/tnprobe/peerwire"
	"github.com/lightningnetwork/tnprobe/probecfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, clock.NewTestClock(time.Unix(1000, 0)))
	require.NoError(t, err)

	return m, reg
}

// TestMetricsCounters checks every recording method updates its counter.
func TestMetricsCounters(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)

	m.DialAttempt(nil)
	m.DialAttempt(io.EOF)
	require.EqualValues(t, 2, testutil.ToFloat64(m.dialAttempts))
	require.EqualValues(t, 1, testutil.ToFloat64(m.dialFailures))

	m.MessageSent(peerwire.CmdVersion)
	require.EqualValues(t, 1, testutil.ToFloat64(
		m.messagesSent.WithLabelValues(peerwire.CmdVersion),
	))

	m.HeaderDecoded(&peerwire.MessageHeader{Command: "verack"}, nil)
	require.EqualValues(t, 1, testutil.ToFloat64(
		m.headersDecoded.WithLabelValues("verack"),
	))

	_, err := peerwire.DecodeHeader(make([]byte, 3))
	m.HeaderDecoded(nil, err)
	require.EqualValues(t, 1, testutil.ToFloat64(
		m.headerErrors.WithLabelValues(ReasonShort),
	))

	m.ChecksumChecked(nil)
	m.ChecksumChecked(peerwire.ErrChecksumMismatch)
	require.EqualValues(t, 1, testutil.ToFloat64(m.checksumFailures))
}

// TestNilMetrics asserts a nil *Metrics can be used freely.
func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.DialAttempt(io.EOF)
		m.MessageSent(peerwire.CmdVersion)
		m.HeaderDecoded(nil, io.EOF)
		m.ChecksumChecked(io.EOF)
	})
}

// TestDuplicateRegistration asserts registering twice on one registry fails.
func TestDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, nil)
	require.NoError(t, err)

	_, err = NewMetrics(reg, nil)
	require.Error(t, err)
}

// TestHeaderErrorReason checks the label each decoding error maps to.
func TestHeaderErrorReason(t *testing.T) {
	t.Parallel()

	mainnet, err := peerwire.NewCodec(wire.MainNet).Encode(nil, "ping")
	require.NoError(t, err)
	_, magicErr := peerwire.DecodeHeader(mainnet)

	badCmd, err := peerwire.Encode(nil, "ping")
	require.NoError(t, err)
	badCmd[5] = 0x01
	_, cmdErr := peerwire.DecodeHeader(badCmd)

	_, shortErr := peerwire.DecodeHeader(nil)

	tests := []struct {
		err  error
		want string
	}{
		{err: shortErr, want: ReasonShort},
		{err: magicErr, want: ReasonMagic},
		{err: cmdErr, want: ReasonCommand},
		{err: io.EOF, want: ReasonOther},
	}
	for _, test := range tests {
		require.Equal(t, test.want, HeaderErrorReason(test.err),
			"error: %v", test.err)
	}
}

// TestExportPrometheusMetrics scrapes the exporter over HTTP.
func TestExportPrometheusMetrics(t *testing.T) {
	t.Parallel()

	m, reg := newTestMetrics(t)
	m.MessageSent(peerwire.CmdVersion)

	cfg := probecfg.Prometheus{Enable: true, Listen: "127.0.0.1:0"}
	srv, addr, err := ExportPrometheusMetrics(cfg, reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown(context.Background()))
	})

	resp, err := http.Get(fmt.Sprintf("http://%v/metrics", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(
		t, string(body),
		`tnprobe_messages_sent_total{command="version"} 1`,
	)
	require.Contains(t, string(body), "tnprobe_uptime_seconds")
}
