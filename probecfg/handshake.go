package probecfg

import (
	"fmt"
	"time"

	"github.com/lightningnetwork/tnprobe/peerwire"
)

const (
	// DefaultDialTimeout bounds how long a single dial may take.
	DefaultDialTimeout = 10 * time.Second

	// DefaultReadTimeout bounds how long we wait for the peer's reply.
	DefaultReadTimeout = 30 * time.Second

	// DefaultReadBuffer is the size of the buffer the reply is read into.
	DefaultReadBuffer = 1024

	// DefaultMaxReplyPayload is the largest declared reply payload the probe
	// will read to completion for checksum verification.
	DefaultMaxReplyPayload = 64 * 1024
)

// Handshake holds the options of the version handshake the probe sends.
//
//nolint:lll
type Handshake struct {
	UserAgent       string        `long:"useragent" description:"The user agent announced in the version message"`
	ProtocolVersion int32         `long:"protocolversion" description:"The protocol version announced in the version message"`
	Services        uint64        `long:"services" description:"The services bitmask announced in the version message"`
	StartHeight     int32         `long:"startheight" description:"The best block height announced in the version message"`
	Relay           bool          `long:"relay" description:"Ask the peer to relay transactions"`
	DialTimeout     time.Duration `long:"dialtimeout" description:"How long to wait for a connection to a seed"`
	ReadTimeout     time.Duration `long:"readtimeout" description:"How long to wait for the seed's reply"`
	ReadBuffer      int           `long:"readbuffer" description:"Size in bytes of the buffer the reply is read into"`
	VerifyChecksum  bool          `long:"verifychecksum" description:"Read the full reply payload and verify its checksum"`
	MaxReplyPayload int           `long:"maxreplypayload" description:"Largest reply payload read for checksum verification"`
}

// DefaultHandshake returns the default handshake options.
func DefaultHandshake(userAgent string) Handshake {
	return Handshake{
		UserAgent:       userAgent,
		ProtocolVersion: peerwire.ProtocolVersion,
		DialTimeout:     DefaultDialTimeout,
		ReadTimeout:     DefaultReadTimeout,
		ReadBuffer:      DefaultReadBuffer,
		MaxReplyPayload: DefaultMaxReplyPayload,
	}
}

// Validate checks that the handshake options can produce a valid message.
func (h *Handshake) Validate() error {
	switch {
	case len(h.UserAgent) > peerwire.MaxUserAgentLen:
		return fmt.Errorf("useragent is %d bytes, max is %d",
			len(h.UserAgent), peerwire.MaxUserAgentLen)

	case h.ProtocolVersion <= 0:
		return fmt.Errorf("protocolversion must be positive")

	case h.StartHeight < 0:
		return fmt.Errorf("startheight must not be negative")

	case h.DialTimeout <= 0:
		return fmt.Errorf("dialtimeout must be positive")

	case h.ReadTimeout <= 0:
		return fmt.Errorf("readtimeout must be positive")

	case h.ReadBuffer < peerwire.MessageHeaderSize:
		return fmt.Errorf("readbuffer must hold at least a %d byte "+
			"header", peerwire.MessageHeaderSize)

	case h.MaxReplyPayload < 0 ||
		h.MaxReplyPayload > peerwire.MaxPayloadSize:

		return fmt.Errorf("maxreplypayload must be within [0, %d]",
			peerwire.MaxPayloadSize)
	}

	return nil
}
