package seed

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrNoSeeds is returned when neither the chain parameters nor the
	// caller supply a single endpoint to try.
	ErrNoSeeds = errors.New("no seed endpoints available")

	// ErrNilParams is returned when Candidates is called without chain
	// parameters.
	ErrNilParams = errors.New("chain params must be set")
)

// Candidates returns the ordered list of host:port endpoints the probe tries.
// When overrides is non-empty it is used in the given order, with the default
// port of params appended to entries that carry no port. Otherwise the DNS
// seeds of params are returned in their declared order.
func Candidates(params *chaincfg.Params, overrides []string) ([]string,
	error) {

	if params == nil {
		return nil, ErrNilParams
	}

	if len(overrides) > 0 {
		addrs := make([]string, 0, len(overrides))
		for _, override := range overrides {
			addr, err := normalizeAddr(override, params.DefaultPort)
			if err != nil {
				return nil, err
			}
			addrs = append(addrs, addr)
		}

		log.Debugf("Using %d configured seed(s) for %v", len(addrs),
			params.Name)

		return addrs, nil
	}

	if len(params.DNSSeeds) == 0 {
		return nil, fmt.Errorf("%w: %v has no dns seeds", ErrNoSeeds,
			params.Name)
	}

	addrs := make([]string, 0, len(params.DNSSeeds))
	for _, dnsSeed := range params.DNSSeeds {
		addrs = append(
			addrs, net.JoinHostPort(dnsSeed.Host, params.DefaultPort),
		)
	}

	log.Debugf("Using %d dns seed(s) for %v", len(addrs), params.Name)

	return addrs, nil
}

// normalizeAddr appends defaultPort to addr if it carries no port of its own.
func normalizeAddr(addr, defaultPort string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty seed address")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// Bare hosts, including unbracketed IPv6 literals, get the
		// default port.
		var addrErr *net.AddrError
		if !errors.As(err, &addrErr) ||
			!strings.Contains(addrErr.Err, "missing port") &&
				!strings.Contains(addrErr.Err, "too many colons") {

			return "", fmt.Errorf("invalid seed address %q: %w",
				addr, err)
		}

		return net.JoinHostPort(
			strings.Trim(addr, "[]"), defaultPort,
		), nil
	}

	if host == "" || port == "" {
		return "", fmt.Errorf("invalid seed address %q", addr)
	}

	return net.JoinHostPort(host, port), nil
}
