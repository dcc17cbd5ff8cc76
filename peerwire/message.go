// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2022 The Lightning Network Developers

package peerwire

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/tnprobe/lnutils"
)

const (
	// MessageHeaderSize is the number of bytes in a message header.
	// Network (magic) 4 bytes + command 12 bytes + payload length 4 bytes +
	// checksum 4 bytes.
	MessageHeaderSize = 24

	// CommandSize is the fixed size of the command field in the message
	// header. Shorter commands are NUL padded.
	CommandSize = 12

	// ChecksumSize is the number of leading bytes of the double SHA-256
	// digest that are carried in the header.
	ChecksumSize = 4

	// MaxPayloadSize is the largest payload a single message may carry.
	MaxPayloadSize = 32 * 1024 * 1024

	// magicSize is the width of the network magic on the wire.
	magicSize = 4

	cmdOffset      = magicSize
	lengthOffset   = cmdOffset + CommandSize
	checksumOffset = lengthOffset + 4
)

// CmdVersion is the command of the handshake message.
const CmdVersion = "version"

var (
	// ErrMalformedHeader is matched by every error DecodeHeader returns.
	ErrMalformedHeader = errors.New("malformed message header")

	// ErrShortHeader is returned when a buffer cannot hold a full
	// message header.
	ErrShortHeader = fmt.Errorf("buffer shorter than %d byte header",
		MessageHeaderSize)

	// ErrInvalidCommand is returned when a command contains bytes that are
	// not printable ASCII, or when the NUL padding of a received command
	// field is interrupted by other bytes.
	ErrInvalidCommand = errors.New("command is not printable ascii")

	// ErrCommandTooLong is returned when a command does not fit within
	// CommandSize bytes. Commands are never truncated.
	ErrCommandTooLong = fmt.Errorf("command exceeds %d bytes", CommandSize)

	// ErrPayloadTooLarge is returned when a payload exceeds
	// MaxPayloadSize.
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes",
		MaxPayloadSize)

	// ErrChecksumMismatch is returned by VerifyChecksum when the payload
	// does not hash to the checksum carried in the header.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")

	// ErrPayloadLength is returned by VerifyChecksum when the payload length
	// differs from the length declared in the header.
	ErrPayloadLength = errors.New("payload length does not match header")

	// ErrIncompletePayload is returned by SplitMessage when the buffer ends
	// before the declared payload does.
	ErrIncompletePayload = errors.New("buffer holds incomplete payload")
)

// ErrMagicMismatch is returned when a header carries the magic of a network
// other than the one the codec was created for.
type ErrMagicMismatch struct {
	// Want is the network the codec expects.
	Want wire.BitcoinNet

	// Got is the network read from the buffer.
	Got wire.BitcoinNet
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *ErrMagicMismatch) Error() string {
	return fmt.Sprintf("unexpected network magic %#08x, want %#08x (%v)",
		uint32(e.Got), uint32(e.Want), e.Want)
}

// malformed tags a header decoding failure so that it matches
// ErrMalformedHeader as well as its specific cause.
func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedHeader, err)
}

// MessageHeader is the decoded fixed-size prefix of a wire message.
type MessageHeader struct {
	// Net is the network the message was tagged with.
	Net wire.BitcoinNet

	// Command is the command name with its NUL padding removed.
	Command string

	// Length is the declared length of the payload that follows the
	// header.
	Length uint32

	// Checksum is the first four bytes of the double SHA-256 of the
	// payload, as claimed by the sender.
	Checksum [ChecksumSize]byte
}

// MessageSize is the number of bytes the complete message occupies on the
// wire according to the header.
func (h *MessageHeader) MessageSize() int {
	return MessageHeaderSize + int(h.Length)
}

// VerifyChecksum checks payload against the length and checksum declared in
// the header. Decoding a header never does this on its own.
func (h *MessageHeader) VerifyChecksum(payload []byte) error {
	if uint64(len(payload)) != uint64(h.Length) {
		return fmt.Errorf("%w: header=%d, payload=%d",
			ErrPayloadLength, h.Length, len(payload))
	}

	sum := Checksum(payload)
	if sum != h.Checksum {
		return fmt.Errorf("%w: header=%x, computed=%x",
			ErrChecksumMismatch, h.Checksum[:], sum[:])
	}

	return nil
}

// Codec frames payloads for a single network. A Codec is immutable and safe
// for concurrent use.
type Codec struct {
	net   wire.BitcoinNet
	magic [magicSize]byte
}

// NewCodec returns a codec that tags outbound messages with the magic of net
// and rejects inbound headers carrying any other magic.
func NewCodec(net wire.BitcoinNet) *Codec {
	c := &Codec{net: net}
	binary.LittleEndian.PutUint32(c.magic[:], uint32(net))

	return c
}

// Net returns the network the codec frames messages for.
func (c *Codec) Net() wire.BitcoinNet {
	return c.net
}

// Magic returns the network magic as it appears on the wire.
func (c *Codec) Magic() [magicSize]byte {
	return c.magic
}

// Encode wraps payload in a message envelope for command. The payload length
// and checksum are always derived from payload itself.
func (c *Codec) Encode(payload []byte, command string) ([]byte, error) {
	cmd, err := encodeCommand(command)
	if err != nil {
		return nil, err
	}

	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: got %d", ErrPayloadTooLarge,
			len(payload))
	}

	msg := make([]byte, MessageHeaderSize+len(payload))
	copy(msg[:cmdOffset], c.magic[:])
	copy(msg[cmdOffset:lengthOffset], cmd[:])
	binary.LittleEndian.PutUint32(
		msg[lengthOffset:checksumOffset], uint32(len(payload)),
	)

	sum := Checksum(payload)
	copy(msg[checksumOffset:MessageHeaderSize], sum[:])
	copy(msg[MessageHeaderSize:], payload)

	log.TraceS(context.TODO(), "Encoded message", "command", command,
		lnutils.LogMagic("magic", c.magic[:]),
		"payload_len", len(payload), btclog.Hex("checksum", sum[:]))

	return msg, nil
}

// DecodeHeader parses the fixed-size header at the start of buf. It neither
// verifies the checksum nor requires the payload to be present in buf; use
// SplitMessage and VerifyChecksum for that.
func (c *Codec) DecodeHeader(buf []byte) (*MessageHeader, error) {
	if len(buf) < MessageHeaderSize {
		return nil, malformed(ErrShortHeader)
	}

	net := wire.BitcoinNet(binary.LittleEndian.Uint32(buf[:cmdOffset]))
	if net != c.net {
		return nil, malformed(&ErrMagicMismatch{Want: c.net, Got: net})
	}

	command, err := decodeCommand(buf[cmdOffset:lengthOffset])
	if err != nil {
		return nil, malformed(err)
	}

	hdr := &MessageHeader{
		Net:     net,
		Command: command,
		Length: binary.LittleEndian.Uint32(
			buf[lengthOffset:checksumOffset],
		),
	}
	copy(hdr.Checksum[:], buf[checksumOffset:MessageHeaderSize])

	return hdr, nil
}

// SplitMessage decodes the header at the start of buf and returns it along
// with the payload it declares. ErrIncompletePayload is returned when buf
// ends before the payload does. The checksum is not verified.
func (c *Codec) SplitMessage(buf []byte) (*MessageHeader, []byte, error) {
	hdr, err := c.DecodeHeader(buf)
	if err != nil {
		return nil, nil, err
	}

	if len(buf) < hdr.MessageSize() {
		return hdr, nil, fmt.Errorf("%w: have %d of %d bytes",
			ErrIncompletePayload, len(buf)-MessageHeaderSize,
			hdr.Length)
	}

	return hdr, buf[MessageHeaderSize:hdr.MessageSize()], nil
}

// encodeCommand left-justifies command in a NUL padded field.
func encodeCommand(command string) ([CommandSize]byte, error) {
	var cmd [CommandSize]byte
	if len(command) > CommandSize {
		return cmd, fmt.Errorf("%w: %q is %d bytes", ErrCommandTooLong,
			command, len(command))
	}

	for i := 0; i < len(command); i++ {
		if !isCommandByte(command[i]) {
			return cmd, fmt.Errorf("%w: %q", ErrInvalidCommand,
				command)
		}
	}
	copy(cmd[:], command)

	return cmd, nil
}

// decodeCommand strips the trailing NUL padding from a command field.
func decodeCommand(field []byte) (string, error) {
	end := len(field)
	for end > 0 && field[end-1] == 0 {
		end--
	}

	for _, b := range field[:end] {
		if !isCommandByte(b) {
			return "", fmt.Errorf("%w: %x", ErrInvalidCommand, field)
		}
	}

	return string(field[:end]), nil
}

func isCommandByte(b byte) bool {
	return b >= 0x20 && b <= 0x7e
}
