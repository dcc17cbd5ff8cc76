package monitoring

import (
	"errors"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/tnprobe/build"
	"github.com/lightningnetwork/tnprobe/peerwire"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tnprobe"

// Header error reasons used as label values.
const (
	ReasonShort   = "short"
	ReasonMagic   = "magic"
	ReasonCommand = "command"
	ReasonOther   = "other"
)

// Metrics holds the counters the probe updates. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	dialAttempts     prometheus.Counter
	dialFailures     prometheus.Counter
	messagesSent     *prometheus.CounterVec
	headersDecoded   *prometheus.CounterVec
	headerErrors     *prometheus.CounterVec
	checksumFailures prometheus.Counter
}

// NewMetrics creates the probe metrics and registers them, along with a
// version and an uptime gauge, with reg.
func NewMetrics(reg prometheus.Registerer, clk clock.Clock) (*Metrics,
	error) {

	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	m := &Metrics{
		dialAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_attempts_total",
			Help:      "Number of seed connections attempted.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Number of seed connections that failed.",
		}),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Number of messages written to peers.",
			}, []string{"command"},
		),
		headersDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "headers_decoded_total",
				Help:      "Number of inbound headers decoded.",
			}, []string{"command"},
		),
		headerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "header_errors_total",
				Help:      "Number of inbound headers rejected.",
			}, []string{"reason"},
		),
		checksumFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_failures_total",
			Help:      "Number of payloads failing checksum checks.",
		}),
	}

	versionGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "version",
			Help:      "Version of tnprobe running.",
		}, []string{"version", "commit"},
	)
	versionGauge.WithLabelValues(build.Version(), build.Commit).Set(1)

	startTime := clk.Now()
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Uptime of tnprobe in seconds.",
		},
		func() float64 {
			return clk.Now().Sub(startTime).Seconds()
		},
	)

	collectors := []prometheus.Collector{
		m.dialAttempts, m.dialFailures, m.messagesSent,
		m.headersDecoded, m.headerErrors, m.checksumFailures,
		versionGauge, uptime,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// DialAttempt records a connection attempt and whether it failed.
func (m *Metrics) DialAttempt(err error) {
	if m == nil {
		return
	}

	m.dialAttempts.Inc()
	if err != nil {
		m.dialFailures.Inc()
	}
}

// MessageSent records an outbound message.
func (m *Metrics) MessageSent(command string) {
	if m == nil {
		return
	}

	m.messagesSent.WithLabelValues(command).Inc()
}

// HeaderDecoded records the outcome of decoding an inbound header.
func (m *Metrics) HeaderDecoded(hdr *peerwire.MessageHeader, err error) {
	if m == nil {
		return
	}

	if err != nil {
		m.headerErrors.WithLabelValues(HeaderErrorReason(err)).Inc()
		return
	}

	m.headersDecoded.WithLabelValues(hdr.Command).Inc()
}

// ChecksumChecked records the outcome of a checksum verification.
func (m *Metrics) ChecksumChecked(err error) {
	if m == nil || err == nil {
		return
	}

	m.checksumFailures.Inc()
}

// HeaderErrorReason maps a header decoding error to its label value.
func HeaderErrorReason(err error) string {
	var magicErr *peerwire.ErrMagicMismatch
	switch {
	case errors.Is(err, peerwire.ErrShortHeader):
		return ReasonShort

	case errors.As(err, &magicErr):
		return ReasonMagic

	case errors.Is(err, peerwire.ErrInvalidCommand):
		return ReasonCommand

	default:
		return ReasonOther
	}
}
