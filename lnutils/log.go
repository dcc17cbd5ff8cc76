package lnutils

import (
	"log/slog"

	"github.com/btcsuite/btclog/v2"
	"github.com/davecgh/go-spew/spew"
)

// LogClosure is used to provide a closure over expensive logging operations so
// don't have to be performed when the logging level doesn't warrant it.
type LogClosure func() string

// String invokes the underlying function and returns the result.
func (c LogClosure) String() string {
	return c()
}

// SpewLogClosure takes an interface and returns the string of it created from
// `spew.Sdump` in a LogClosure.
func SpewLogClosure(a any) LogClosure {
	return func() string {
		return spew.Sdump(a)
	}
}

// LogHexDump returns a closure rendering b as a hex dump with offsets, used
// to log raw wire bytes.
func LogHexDump(b []byte) LogClosure {
	return func() string {
		return spew.Sdump(b)
	}
}

// LogMagic returns a slog attribute for logging a network magic as the four
// bytes that appear on the wire.
func LogMagic(key string, magic []byte) slog.Attr {
	if len(magic) == 0 {
		return btclog.Fmt(key, "<nil>")
	}

	return btclog.Hex(key, magic)
}
