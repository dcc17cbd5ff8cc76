package seed

import (
	"net"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// TestCandidatesDNSSeeds asserts the DNS seeds are returned in order with
// the default port of the network.
func TestCandidatesDNSSeeds(t *testing.T) {
	t.Parallel()

	params := &chaincfg.TestNet3Params
	addrs, err := Candidates(params, nil)
	require.NoError(t, err)
	require.Len(t, addrs, len(params.DNSSeeds))

	for i, addr := range addrs {
		host, port, err := net.SplitHostPort(addr)
		require.NoError(t, err)
		require.Equal(t, params.DNSSeeds[i].Host, host)
		require.Equal(t, "18333", port)
	}
}

// TestCandidatesNoSeeds checks networks without DNS seeds are reported.
func TestCandidatesNoSeeds(t *testing.T) {
	t.Parallel()

	_, err := Candidates(&chaincfg.RegressionNetParams, nil)
	require.ErrorIs(t, err, ErrNoSeeds)

	_, err = Candidates(nil, nil)
	require.ErrorIs(t, err, ErrNilParams)
}

// TestCandidatesOverrides checks configured seeds keep their order and gain
// the default port when they have none.
func TestCandidatesOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		override string
		want     string
		valid    bool
	}{
		{
			name:     "host and port",
			override: "seed.example.com:1234",
			want:     "seed.example.com:1234",
			valid:    true,
		},
		{
			name:     "bare host",
			override: "seed.example.com",
			want:     "seed.example.com:18333",
			valid:    true,
		},
		{
			name:     "ipv4",
			override: " 127.0.0.1 ",
			want:     "127.0.0.1:18333",
			valid:    true,
		},
		{
			name:     "bracketed ipv6 with port",
			override: "[::1]:8333",
			want:     "[::1]:8333",
			valid:    true,
		},
		{
			name:     "bare ipv6",
			override: "::1",
			want:     "[::1]:18333",
			valid:    true,
		},
		{
			name:     "empty",
			override: "  ",
		},
		{
			name:     "empty port",
			override: "seed.example.com:",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			addrs, err := Candidates(
				&chaincfg.TestNet3Params, []string{test.override},
			)
			if !test.valid {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, []string{test.want}, addrs)
		})
	}

	addrs, err := Candidates(
		&chaincfg.TestNet3Params, []string{"b.example", "a.example:1"},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"b.example:18333", "a.example:1"}, addrs)
}
