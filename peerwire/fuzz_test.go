package peerwire

import (
	"bytes"
	"errors"
	"testing"
)

// FuzzDecodeHeader checks that arbitrary buffers never panic the header
// parser, and that any complete message it accepts with a valid checksum
// re-encodes to the exact same bytes.
func FuzzDecodeHeader(f *testing.F) {
	seed, err := Encode([]byte("seed"), CmdVersion)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(seed)
	f.Add([]byte{})
	f.Add(testNetMagic)

	f.Fuzz(func(t *testing.T, data []byte) {
		// Keep the magic intact for most inputs so the fuzzer reaches
		// the command and length parsing.
		if len(data) >= 4 && data[0]&1 == 0 {
			data = bytes.Clone(data)
			copy(data, testNetMagic)
		}

		hdr, payload, err := TestNetCodec().SplitMessage(data)
		switch {
		case errors.Is(err, ErrMalformedHeader):
			return

		case errors.Is(err, ErrIncompletePayload):
			return

		case err != nil:
			t.Fatalf("unexpected error: %v", err)
		}

		if hdr.VerifyChecksum(payload) != nil {
			return
		}

		msg, err := Encode(payload, hdr.Command)
		if err != nil {
			t.Fatalf("unable to re-encode accepted message: %v", err)
		}
		if !bytes.Equal(msg, data[:hdr.MessageSize()]) {
			t.Fatalf("re-encoded message differs: %x vs %x", msg,
				data[:hdr.MessageSize()])
		}
	})
}

// FuzzVersionDecode checks that decoding arbitrary payloads never panics and
// that accepted payloads survive a round trip.
func FuzzVersionDecode(f *testing.F) {
	ver, err := NewMsgVersion(VersionConfig{UserAgent: "/fuzz/"})
	if err != nil {
		f.Fatal(err)
	}
	seed, err := ver.Serialize()
	if err != nil {
		f.Fatal(err)
	}
	f.Add(seed)

	f.Fuzz(func(t *testing.T, data []byte) {
		var decoded MsgVersion
		if err := decoded.Decode(bytes.NewReader(data)); err != nil {
			return
		}

		encoded, err := decoded.Serialize()
		if err != nil {
			t.Fatalf("unable to re-encode: %v", err)
		}

		var again MsgVersion
		if err := again.Decode(bytes.NewReader(encoded)); err != nil {
			t.Fatalf("unable to decode re-encoded payload: %v", err)
		}
		if !bytes.Equal(encoded, mustSerialize(t, &again)) {
			t.Fatalf("round trip changed payload")
		}
	})
}

func mustSerialize(t *testing.T, m *MsgVersion) []byte {
	t.Helper()

	b, err := m.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	return b
}
