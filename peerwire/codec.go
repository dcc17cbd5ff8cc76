package peerwire

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// testNetCodec frames messages for the third test network. It backs the
// package level Encode and DecodeHeader helpers.
var testNetCodec = NewCodec(wire.TestNet3)

// TestNetCodec returns the process wide codec for testnet3.
func TestNetCodec() *Codec {
	return testNetCodec
}

// Encode wraps payload in a testnet3 envelope for command.
func Encode(payload []byte, command string) ([]byte, error) {
	return testNetCodec.Encode(payload, command)
}

// DecodeHeader parses a testnet3 message header from the start of buf.
func DecodeHeader(buf []byte) (*MessageHeader, error) {
	return testNetCodec.DecodeHeader(buf)
}

// ErrNilParams is returned when CodecForParams is called without chain
// parameters.
var ErrNilParams = errors.New("chain params must be set")

// CodecForParams returns a codec for the network described by params.
func CodecForParams(params *chaincfg.Params) (*Codec, error) {
	if params == nil {
		return nil, ErrNilParams
	}
	if params.Net == testNetCodec.net {
		return testNetCodec, nil
	}

	return NewCodec(params.Net), nil
}
