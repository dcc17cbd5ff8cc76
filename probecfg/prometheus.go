package probecfg

import (
	"fmt"
	"net"
)

// DefaultPrometheusListen is the address the metrics exporter binds to when
// enabled without an explicit listen address.
const DefaultPrometheusListen = "127.0.0.1:8989"

// Prometheus configures the Prometheus metrics exporter.
//
//nolint:lll
type Prometheus struct {
	Enable bool   `long:"enable" description:"Export Prometheus metrics over HTTP"`
	Listen string `long:"listen" description:"The interface:port the Prometheus exporter listens on"`
}

// DefaultPrometheus is the default configuration for the Prometheus metrics
// exporter.
func DefaultPrometheus() Prometheus {
	return Prometheus{
		Listen: DefaultPrometheusListen,
	}
}

// Enabled returns whether or not Prometheus monitoring is enabled.
func (p *Prometheus) Enabled() bool {
	return p.Enable
}

// Validate checks the listen address when the exporter is enabled.
func (p *Prometheus) Validate() error {
	if !p.Enable {
		return nil
	}

	if _, _, err := net.SplitHostPort(p.Listen); err != nil {
		return fmt.Errorf("invalid prometheus.listen %q: %w", p.Listen,
			err)
	}

	return nil
}
