package peerwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testNetMagic is the on-the-wire form of the testnet3 network id.
var testNetMagic = []byte{0x0b, 0x11, 0x09, 0x07}

// commandCharset is the set of bytes random commands are drawn from.
const commandCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"0123456789"

// randCommand draws a valid command of 0 to CommandSize bytes.
func randCommand(t *rapid.T) string {
	n := rapid.IntRange(0, CommandSize).Draw(t, "commandLen")
	var sb strings.Builder
	for i := 0; i < n; i++ {
		idx := rapid.IntRange(0, len(commandCharset)-1).Draw(t, "char")
		sb.WriteByte(commandCharset[idx])
	}

	return sb.String()
}

// TestEncodeEmptyVersion asserts the exact envelope of an empty version
// message on testnet.
func TestEncodeEmptyVersion(t *testing.T) {
	t.Parallel()

	msg, err := Encode(nil, CmdVersion)
	require.NoError(t, err)
	require.Len(t, msg, MessageHeaderSize)

	expected := []byte{
		// Magic.
		0x0b, 0x11, 0x09, 0x07,

		// Command, NUL padded.
		'v', 'e', 'r', 's', 'i', 'o', 'n', 0, 0, 0, 0, 0,

		// Payload length.
		0, 0, 0, 0,

		// Checksum of the empty payload.
		0x5d, 0xf6, 0xe0, 0xe2,
	}
	require.Equal(t, expected, msg)

	hdr, err := DecodeHeader(msg)
	require.NoError(t, err)
	require.Equal(t, CmdVersion, hdr.Command)
	require.EqualValues(t, 0, hdr.Length)
	require.Equal(t, wire.TestNet3, hdr.Net)
	require.NoError(t, hdr.VerifyChecksum(nil))
}

// TestEncodeDecodeRoundTrip checks that any valid command and payload
// survives an encode followed by a header decode.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		command := randCommand(t)
		payload := rapid.SliceOfN(rapid.Byte(), 0, 2048).Draw(
			t, "payload",
		)

		msg, err := Encode(payload, command)
		require.NoError(t, err)
		require.Len(t, msg, MessageHeaderSize+len(payload))
		require.Equal(t, testNetMagic, msg[:4])
		require.Equal(t, payload, msg[MessageHeaderSize:])

		hdr, err := DecodeHeader(msg)
		require.NoError(t, err)
		require.Equal(t, command, hdr.Command)
		require.EqualValues(t, len(payload), hdr.Length)
		require.NoError(t, hdr.VerifyChecksum(payload))
	})
}

// TestEncodeDeterministic asserts that encoding is a pure function of its
// inputs.
func TestEncodeDeterministic(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		command := randCommand(t)
		payload := rapid.SliceOf(rapid.Byte()).Draw(t, "payload")

		first, err := Encode(payload, command)
		require.NoError(t, err)
		second, err := Encode(payload, command)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})
}

// TestChecksumSensitivity flips single bits of a payload and asserts the
// checksum changes each time.
func TestChecksumSensitivity(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	payload := make([]byte, 256)
	_, _ = rng.Read(payload)
	orig := Checksum(payload)

	flip := func(idx int, bit uint) {
		mutated := bytes.Clone(payload)
		mutated[idx] ^= 1 << bit
		require.NotEqual(t, orig, Checksum(mutated),
			"byte %d bit %d", idx, bit)
	}

	// The first and last bytes are always covered.
	for bit := uint(0); bit < 8; bit++ {
		flip(0, bit)
		flip(len(payload)-1, bit)
	}

	for i := 0; i < 200; i++ {
		flip(rng.Intn(len(payload)), uint(rng.Intn(8)))
	}
}

// TestDecodeHeaderShortBuffer asserts that buffers that can't hold a header
// are rejected.
func TestDecodeHeaderShortBuffer(t *testing.T) {
	t.Parallel()

	full, err := Encode([]byte{1, 2, 3}, "ping")
	require.NoError(t, err)

	for _, size := range []int{0, 1, MessageHeaderSize - 1} {
		hdr, err := DecodeHeader(full[:size])
		require.Nil(t, hdr)
		require.ErrorIs(t, err, ErrMalformedHeader)
		require.ErrorIs(t, err, ErrShortHeader)
	}

	// Exactly a header is enough even though the payload is missing.
	hdr, err := DecodeHeader(full[:MessageHeaderSize])
	require.NoError(t, err)
	require.Equal(t, "ping", hdr.Command)
	require.EqualValues(t, 3, hdr.Length)
}

// TestDecodeHeaderMagicMismatch asserts that any buffer not starting with the
// codec's magic is rejected regardless of what follows.
func TestDecodeHeaderMagicMismatch(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		magic := rapid.Uint32().Filter(func(v uint32) bool {
			return v != uint32(wire.TestNet3)
		}).Draw(t, "magic")
		rest := rapid.SliceOfN(rapid.Byte(), MessageHeaderSize-4, 512).
			Draw(t, "rest")

		buf := make([]byte, 4, 4+len(rest))
		binary.LittleEndian.PutUint32(buf, magic)
		buf = append(buf, rest...)

		hdr, err := DecodeHeader(buf)
		require.Nil(t, hdr)
		require.ErrorIs(t, err, ErrMalformedHeader)

		var mismatch *ErrMagicMismatch
		require.ErrorAs(t, err, &mismatch)
		require.Equal(t, wire.BitcoinNet(magic), mismatch.Got)
		require.Equal(t, wire.TestNet3, mismatch.Want)
	})
}

// TestCrossNetworkRejection asserts that a message framed for mainnet is not
// accepted by the testnet codec and vice versa.
func TestCrossNetworkRejection(t *testing.T) {
	t.Parallel()

	mainNet, err := CodecForParams(&chaincfg.MainNetParams)
	require.NoError(t, err)

	msg, err := mainNet.Encode(nil, CmdVersion)
	require.NoError(t, err)
	require.Equal(t, []byte{0xf9, 0xbe, 0xb4, 0xd9}, msg[:4])
	require.Equal(t, [4]byte{0xf9, 0xbe, 0xb4, 0xd9}, mainNet.Magic())
	require.Equal(t, [4]byte{0x0b, 0x11, 0x09, 0x07}, TestNetCodec().Magic())

	_, err = DecodeHeader(msg)
	require.ErrorIs(t, err, ErrMalformedHeader)

	msg, err = Encode(nil, CmdVersion)
	require.NoError(t, err)
	_, err = mainNet.DecodeHeader(msg)
	require.ErrorIs(t, err, ErrMalformedHeader)

	testNet, err := CodecForParams(&chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.Same(t, TestNetCodec(), testNet)

	_, err = CodecForParams(nil)
	require.ErrorIs(t, err, ErrNilParams)
}

// TestEncodeCommandValidation checks the commands Encode refuses to frame.
func TestEncodeCommandValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		err     error
	}{
		{
			name:    "max length",
			command: "sendaddrv2ab",
		},
		{
			name:    "empty",
			command: "",
		},
		{
			name:    "too long",
			command: "thirteenbytes",
			err:     ErrCommandTooLong,
		},
		{
			name:    "embedded nul",
			command: "ver\x00sion",
			err:     ErrInvalidCommand,
		},
		{
			name:    "non ascii",
			command: "versión",
			err:     ErrInvalidCommand,
		},
		{
			name:    "control byte",
			command: "ping\n",
			err:     ErrInvalidCommand,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msg, err := Encode([]byte{0xaa}, test.command)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				require.Nil(t, msg)
				return
			}

			require.NoError(t, err)
			hdr, err := DecodeHeader(msg)
			require.NoError(t, err)
			require.Equal(t, test.command, hdr.Command)
		})
	}
}

// TestDecodeHeaderInvalidCommand checks that command fields which are not
// text are rejected.
func TestDecodeHeaderInvalidCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field string
	}{
		{
			name:  "nul before text",
			field: "ver\x00sion\x00\x00\x00\x00",
		},
		{
			name:  "high byte",
			field: "vers\xffon\x00\x00\x00\x00\x00",
		},
		{
			name:  "leading nul",
			field: "\x00version\x00\x00\x00\x00",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msg, err := Encode(nil, "")
			require.NoError(t, err)
			copy(msg[4:16], test.field)

			_, err = DecodeHeader(msg)
			require.ErrorIs(t, err, ErrMalformedHeader)
			require.ErrorIs(t, err, ErrInvalidCommand)
		})
	}
}

// TestEncodePayloadTooLarge asserts the payload size cap.
func TestEncodePayloadTooLarge(t *testing.T) {
	t.Parallel()

	_, err := Encode(make([]byte, MaxPayloadSize+1), "block")
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

// TestVerifyChecksum checks that tampered or truncated payloads are caught
// once verification is explicitly requested.
func TestVerifyChecksum(t *testing.T) {
	t.Parallel()

	payload := []byte("the payload")
	msg, err := Encode(payload, "test")
	require.NoError(t, err)

	hdr, body, err := TestNetCodec().SplitMessage(msg)
	require.NoError(t, err)
	require.Equal(t, payload, body)
	require.NoError(t, hdr.VerifyChecksum(body))

	// A tampered payload still decodes, only verification catches it.
	msg[len(msg)-1] ^= 0x01
	hdr, body, err = TestNetCodec().SplitMessage(msg)
	require.NoError(t, err)
	require.ErrorIs(t, hdr.VerifyChecksum(body), ErrChecksumMismatch)

	require.ErrorIs(
		t, hdr.VerifyChecksum(body[:len(body)-1]), ErrPayloadLength,
	)
}

// TestSplitMessage covers the buffer boundaries SplitMessage handles.
func TestSplitMessage(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0x42}, 10)
	msg, err := Encode(payload, "test")
	require.NoError(t, err)

	// Trailing bytes of a following message are not part of the payload.
	withTrailer := append(bytes.Clone(msg), 0xde, 0xad)
	hdr, body, err := TestNetCodec().SplitMessage(withTrailer)
	require.NoError(t, err)
	require.Equal(t, payload, body)
	require.Equal(t, len(msg), hdr.MessageSize())

	hdr, body, err = TestNetCodec().SplitMessage(msg[:len(msg)-1])
	require.ErrorIs(t, err, ErrIncompletePayload)
	require.NotNil(t, hdr)
	require.Nil(t, body)

	_, _, err = TestNetCodec().SplitMessage(msg[:3])
	require.ErrorIs(t, err, ErrShortHeader)
}

// TestEncodePayload frames a typed payload under its own command.
func TestEncodePayload(t *testing.T) {
	t.Parallel()

	ver := testVersion(t, "/node:0.1/")
	msg, err := TestNetCodec().EncodePayload(ver)
	require.NoError(t, err)

	hdr, body, err := TestNetCodec().SplitMessage(msg)
	require.NoError(t, err)
	require.Equal(t, CmdVersion, hdr.Command)
	require.NoError(t, hdr.VerifyChecksum(body))

	serialized, err := ver.Serialize()
	require.NoError(t, err)
	require.Equal(t, serialized, body)

	ver.UserAgent = strings.Repeat("a", MaxUserAgentLen+1)
	_, err = TestNetCodec().EncodePayload(ver)
	require.ErrorIs(t, err, ErrUserAgentTooLong)
}

// TestConcurrentEncode exercises a shared codec from many goroutines.
func TestConcurrentEncode(t *testing.T) {
	t.Parallel()

	codec := TestNetCodec()
	expected, err := codec.Encode([]byte("shared"), "test")
	require.NoError(t, err)

	errs := make(chan error, 16)
	for i := 0; i < cap(errs); i++ {
		go func() {
			msg, err := codec.Encode([]byte("shared"), "test")
			if err == nil && !bytes.Equal(msg, expected) {
				err = errors.New("concurrent encode diverged")
			}
			errs <- err
		}()
	}

	for i := 0; i < cap(errs); i++ {
		require.NoError(t, <-errs)
	}
}
