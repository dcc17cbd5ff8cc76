package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tor"
	"github.com/lightningnetwork/tnprobe/lnutils"
	"github.com/lightningnetwork/tnprobe/monitoring"
	"github.com/lightningnetwork/tnprobe/peerwire"
)

var (
	// ErrNoReachablePeer is returned by Run when no candidate accepted a
	// connection and answered.
	ErrNoReachablePeer = errors.New("unable to connect to any seeds")

	// ErrNoCandidates is returned by Run when it is given nothing to try.
	ErrNoCandidates = errors.New("no candidates to probe")
)

// Config holds the collaborators and limits of a Prober.
type Config struct {
	// Net is the network seeds are dialed through.
	Net tor.Net

	// Codec frames the outbound message and parses the reply header.
	Codec *peerwire.Codec

	// Version holds the inputs of the version message built for every
	// attempt.
	Version peerwire.VersionConfig

	// DialTimeout bounds a single dial.
	DialTimeout time.Duration

	// ReadTimeout bounds the write of the handshake and the read of the
	// reply.
	ReadTimeout time.Duration

	// ReadBufferSize is the size of the single read of the reply.
	ReadBufferSize int

	// VerifyChecksum makes the prober read the full reply payload, up to
	// MaxReplyPayload bytes, and check it against the header checksum.
	VerifyChecksum bool

	// MaxReplyPayload is the largest declared payload read to completion.
	MaxReplyPayload int

	// Metrics is optional.
	Metrics *monitoring.Metrics
}

// Result is the outcome of probing a single peer that accepted the
// connection.
type Result struct {
	// Addr is the endpoint that answered.
	Addr string

	// Sent is the version message written to the peer.
	Sent *peerwire.MsgVersion

	// Received holds the bytes returned by the single read of the reply.
	Received []byte

	// Header is the decoded reply header, if it could be decoded.
	Header fn.Option[*peerwire.MessageHeader]

	// HeaderErr is the reason the reply header could not be decoded.
	HeaderErr error

	// ChecksumValid reports the checksum verification of the reply
	// payload, if it was performed.
	ChecksumValid fn.Option[bool]

	// PeerVersion is the peer's version message, set when the reply is a
	// complete version message.
	PeerVersion fn.Option[*peerwire.MsgVersion]
}

// Prober dials candidates, sends a version message and inspects the reply.
type Prober struct {
	cfg Config
}

// New returns a Prober for cfg.
func New(cfg Config) (*Prober, error) {
	switch {
	case cfg.Net == nil:
		return nil, errors.New("probe: net must be set")

	case cfg.Codec == nil:
		return nil, errors.New("probe: codec must be set")

	case cfg.ReadBufferSize < peerwire.MessageHeaderSize:
		return nil, fmt.Errorf("probe: read buffer must hold at least "+
			"%d bytes", peerwire.MessageHeaderSize)

	case cfg.DialTimeout <= 0 || cfg.ReadTimeout <= 0:
		return nil, errors.New("probe: timeouts must be positive")
	}

	return &Prober{cfg: cfg}, nil
}

// Run probes candidates in order and returns the result of the first one
// that accepts the connection and answers. Transport failures move on to the
// next candidate.
func (p *Prober) Run(ctx context.Context, candidates []string) (*Result,
	error) {

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	for _, addr := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := p.Probe(ctx, addr)
		if err == nil {
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warnf("Failed to connect to %v: %v", addr, err)
	}

	log.Errorf("Unable to connect to any of %d seeds", len(candidates))

	return nil, ErrNoReachablePeer
}

// Probe sends a fresh version message to addr and reads a single buffer of
// the reply. An error is returned only when the peer could not be reached
// or did not answer. Problems with the reply itself are reported in the
// Result.
func (p *Prober) Probe(ctx context.Context, addr string) (*Result, error) {
	ver, err := peerwire.NewMsgVersion(p.cfg.Version)
	if err != nil {
		return nil, err
	}
	msg, err := p.cfg.Codec.EncodePayload(ver)
	if err != nil {
		return nil, err
	}

	conn, err := p.cfg.Net.Dial("tcp", addr, p.cfg.DialTimeout)
	p.cfg.Metrics.DialAttempt(err)
	if err != nil {
		return nil, fmt.Errorf("unable to dial: %w", err)
	}
	defer conn.Close()

	// Unblock any pending write or read once the context is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	log.Infof("Connected to seed: %v", addr)

	deadline := time.Now().Add(p.cfg.ReadTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("unable to set deadline: %w", err)
	}

	if _, err := conn.Write(msg); err != nil {
		return nil, fmt.Errorf("unable to send %v: %w", ver.Command(),
			err)
	}
	p.cfg.Metrics.MessageSent(ver.Command())

	log.Debugf("Sent %v to %v", ver, addr)

	buf := make([]byte, p.cfg.ReadBufferSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, fmt.Errorf("unable to read reply: %w", err)
	}

	res := &Result{
		Addr:     addr,
		Sent:     ver,
		Received: buf[:n],
	}

	log.Debugf("Received %d bytes from %v: %v", n, addr,
		lnutils.LogHexDump(res.Received))

	p.inspectReply(conn, res)

	return res, nil
}

// inspectReply decodes the header of the reply and, when the payload is
// available, verifies it and decodes the peer's version.
func (p *Prober) inspectReply(conn net.Conn, res *Result) {
	hdr, err := p.cfg.Codec.DecodeHeader(res.Received)
	p.cfg.Metrics.HeaderDecoded(hdr, err)
	if err != nil {
		log.Warnf("Unable to decode reply header from %v: %v",
			res.Addr, err)
		res.HeaderErr = err

		return
	}
	res.Header = fn.Some(hdr)

	log.Infof("Received %v header from %v, payload=%d bytes",
		hdr.Command, res.Addr, hdr.Length)
	log.Tracef("Reply header: %v", lnutils.SpewLogClosure(hdr))

	payload, ok := p.replyPayload(conn, hdr, res.Received)
	if !ok {
		return
	}

	if p.cfg.VerifyChecksum {
		err := hdr.VerifyChecksum(payload)
		p.cfg.Metrics.ChecksumChecked(err)
		res.ChecksumValid = fn.Some(err == nil)

		if err != nil {
			log.Warnf("Reply from %v failed verification: %v",
				res.Addr, err)
			return
		}
	}

	if hdr.Command != peerwire.CmdVersion {
		return
	}

	var peerVer peerwire.MsgVersion
	if err := peerVer.Decode(bytes.NewReader(payload)); err != nil {
		log.Warnf("Unable to decode version from %v: %v", res.Addr,
			err)
		return
	}
	res.PeerVersion = fn.Some(&peerVer)

	log.Infof("Peer %v runs %v", res.Addr, &peerVer)
}

// replyPayload returns the payload declared by hdr. When the single read did
// not return all of it and checksums are verified, the rest is read from
// conn as long as the declared length is within the configured cap.
func (p *Prober) replyPayload(conn net.Conn, hdr *peerwire.MessageHeader,
	received []byte) ([]byte, bool) {

	have := received[peerwire.MessageHeaderSize:]
	if len(have) >= int(hdr.Length) {
		return have[:hdr.Length], true
	}

	if !p.cfg.VerifyChecksum {
		return nil, false
	}
	if uint64(hdr.Length) > uint64(p.cfg.MaxReplyPayload) {
		log.Debugf("Not reading %d byte %v payload, limit is %d",
			hdr.Length, hdr.Command, p.cfg.MaxReplyPayload)
		return nil, false
	}

	payload := make([]byte, hdr.Length)
	copy(payload, have)
	if _, err := io.ReadFull(conn, payload[len(have):]); err != nil {
		log.Warnf("Unable to read %d byte %v payload: %v", hdr.Length,
			hdr.Command, err)
		return nil, false
	}

	return payload, true
}
