package probecfg

import (
	"fmt"
	"net"

	"github.com/lightningnetwork/lnd/tor"
)

const (
	// DefaultTorSOCKS is the address Tor's SOCKS5 proxy listens on by
	// default.
	DefaultTorSOCKS = "localhost:9050"

	// DefaultTorDNS is the DNS server used for SRV lookups over Tor.
	DefaultTorDNS = "soa.nodes.lightning.directory:53"
)

// Tor holds the configuration options for routing the probe through Tor.
//
//nolint:lll
type Tor struct {
	Active                      bool   `long:"active" description:"Route outbound connections through Tor"`
	SOCKS                       string `long:"socks" description:"The host:port that Tor's exposed SOCKS5 proxy is listening on"`
	DNS                         string `long:"dns" description:"The DNS server as host:port that Tor will use for SRV queries - NOTE must have TCP resolution enabled"`
	StreamIsolation             bool   `long:"streamisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection."`
	SkipProxyForClearNetTargets bool   `long:"skip-proxy-for-clearnet-targets" description:"Dial clearnet seeds directly while Tor is active. Only onion targets use the proxy."`
}

// DefaultTor returns the default Tor options.
func DefaultTor() Tor {
	return Tor{
		SOCKS: DefaultTorSOCKS,
		DNS:   DefaultTorDNS,
	}
}

// Validate checks the proxy addresses are well formed when Tor is active.
func (t *Tor) Validate() error {
	if !t.Active {
		return nil
	}

	if _, _, err := net.SplitHostPort(t.SOCKS); err != nil {
		return fmt.Errorf("invalid tor.socks %q: %w", t.SOCKS, err)
	}
	if _, _, err := net.SplitHostPort(t.DNS); err != nil {
		return fmt.Errorf("invalid tor.dns %q: %w", t.DNS, err)
	}

	if t.StreamIsolation && t.SkipProxyForClearNetTargets {
		return fmt.Errorf("tor.streamisolation and " +
			"tor.skip-proxy-for-clearnet-targets are mutually exclusive")
	}

	return nil
}

// Net returns the network the probe dials through: a SOCKS proxied network
// when Tor is active, the plain clearnet otherwise.
func (t *Tor) Net() tor.Net {
	if !t.Active {
		return &tor.ClearNet{}
	}

	return &tor.ProxyNet{
		SOCKS:                       t.SOCKS,
		DNS:                         t.DNS,
		StreamIsolation:             t.StreamIsolation,
		SkipProxyForClearNetTargets: t.SkipProxyForClearNetTargets,
	}
}
