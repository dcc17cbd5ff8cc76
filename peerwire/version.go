package peerwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// ProtocolVersion is the protocol version announced by default. It
	// is the last version before BIP 339 wtxid relay.
	ProtocolVersion int32 = 70015

	// NetAddressSize is the width of a network address in the version
	// payload: services 8 bytes + IPv6 16 bytes + port 2 bytes.
	NetAddressSize = 26

	// MaxUserAgentLen is the longest user agent the single byte length
	// prefix can describe.
	MaxUserAgentLen = 255

	// DefaultUserAgent is the user agent announced when none is set.
	DefaultUserAgent = "/tnprobe:0.1/"

	// versionFixedSize is the size of every field of the version payload
	// except the user agent bytes.
	versionFixedSize = 4 + 8 + 8 + NetAddressSize + NetAddressSize + 8 +
		1 + 4 + 1
)

// ErrUserAgentTooLong is returned when a user agent does not fit behind its
// single byte length prefix. User agents are never truncated.
var ErrUserAgentTooLong = fmt.Errorf("user agent exceeds %d bytes",
	MaxUserAgentLen)

// NetAddress is an opaque network address slot of the version payload. The
// handshake built here leaves both slots zeroed.
type NetAddress [NetAddressSize]byte

// MsgVersion is the handshake payload announcing a peer's protocol version
// and capabilities.
type MsgVersion struct {
	// ProtocolVersion is the version of the protocol the sender speaks.
	ProtocolVersion int32

	// Services is the bitmask of services the sender offers.
	Services wire.ServiceFlag

	// Timestamp is the time the message was built. Only second
	// precision survives encoding.
	Timestamp time.Time

	// AddrRecv is the address of the receiving peer.
	AddrRecv NetAddress

	// AddrFrom is the address of the sending peer.
	AddrFrom NetAddress

	// Nonce is a random value used to detect connections to self.
	Nonce uint64

	// UserAgent identifies the sending software.
	UserAgent string

	// StartHeight is the best block height known to the sender.
	StartHeight int32

	// Relay is whether the sender wants inventory relayed to it.
	Relay bool
}

// VersionConfig holds the inputs NewMsgVersion needs to build a handshake
// payload.
type VersionConfig struct {
	// ProtocolVersion defaults to ProtocolVersion when zero.
	ProtocolVersion int32

	// Services is the bitmask of services to announce.
	Services wire.ServiceFlag

	// UserAgent defaults to DefaultUserAgent when empty.
	UserAgent string

	// StartHeight is the best block height to announce.
	StartHeight int32

	// Relay sets the relay flag.
	Relay bool

	// Clock supplies the timestamp. The system clock is used when nil.
	Clock clock.Clock

	// Nonce supplies the nonce. wire.RandomUint64 is used when nil.
	Nonce func() (uint64, error)
}

// A compile time check to ensure MsgVersion can be sent through a codec.
var _ Payload = (*MsgVersion)(nil)

// NewMsgVersion builds a fresh handshake payload from cfg, stamping it with
// the current time and a new nonce.
func NewMsgVersion(cfg VersionConfig) (*MsgVersion, error) {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if len(userAgent) > MaxUserAgentLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrUserAgentTooLong,
			len(userAgent))
	}

	pver := cfg.ProtocolVersion
	if pver == 0 {
		pver = ProtocolVersion
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	nonceSource := cfg.Nonce
	if nonceSource == nil {
		nonceSource = wire.RandomUint64
	}
	nonce, err := nonceSource()
	if err != nil {
		return nil, fmt.Errorf("unable to generate nonce: %w", err)
	}

	return &MsgVersion{
		ProtocolVersion: pver,
		Services:        cfg.Services,
		Timestamp:       time.Unix(clk.Now().Unix(), 0),
		Nonce:           nonce,
		UserAgent:       userAgent,
		StartHeight:     cfg.StartHeight,
		Relay:           cfg.Relay,
	}, nil
}

// Command returns the command the payload is framed with.
//
// This is part of the Payload interface.
func (m *MsgVersion) Command() string {
	return CmdVersion
}

// SerializeSize returns the number of bytes Encode writes.
func (m *MsgVersion) SerializeSize() int {
	return versionFixedSize + len(m.UserAgent)
}

// Encode writes the payload to w in its fixed field order.
//
// This is part of the Payload interface.
func (m *MsgVersion) Encode(w io.Writer) error {
	if len(m.UserAgent) > MaxUserAgentLen {
		return fmt.Errorf("%w: %d bytes", ErrUserAgentTooLong,
			len(m.UserAgent))
	}

	return writeElements(w,
		m.ProtocolVersion,
		m.Services,
		m.Timestamp.Unix(),
		m.AddrRecv,
		m.AddrFrom,
		m.Nonce,
		[]byte(m.UserAgent),
		m.StartHeight,
		m.Relay,
	)
}

// Serialize returns the encoded payload.
func (m *MsgVersion) Serialize() ([]byte, error) {
	var b bytes.Buffer
	b.Grow(m.SerializeSize())
	if err := m.Encode(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Decode reads a payload written by Encode. Peers that predate BIP 37 may
// omit the trailing relay byte, in which case Relay is left false.
func (m *MsgVersion) Decode(r io.Reader) error {
	var (
		timestamp int64
		userAgent []byte
	)
	err := readElements(r,
		&m.ProtocolVersion,
		&m.Services,
		&timestamp,
		&m.AddrRecv,
		&m.AddrFrom,
		&m.Nonce,
		&userAgent,
		&m.StartHeight,
	)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("unable to decode version: %w", err)
	}

	m.Timestamp = time.Unix(timestamp, 0)
	m.UserAgent = string(userAgent)

	err = readElement(r, &m.Relay)
	switch {
	case errors.Is(err, io.EOF):
		m.Relay = false

	case err != nil:
		return fmt.Errorf("unable to decode relay flag: %w", err)
	}

	return nil
}

// String returns a short human readable description of the payload.
func (m *MsgVersion) String() string {
	return fmt.Sprintf("version(pver=%d, services=%v, ua=%q, height=%d, "+
		"relay=%v)", m.ProtocolVersion, m.Services, m.UserAgent,
		m.StartHeight, m.Relay)
}
