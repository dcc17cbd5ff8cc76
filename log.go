package tnprobe

import (
	"io"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/tnprobe/build"
	"github.com/lightningnetwork/tnprobe/monitoring"
	"github.com/lightningnetwork/tnprobe/peerwire"
	"github.com/lightningnetwork/tnprobe/probe"
	"github.com/lightningnetwork/tnprobe/seed"
	"github.com/lightningnetwork/tnprobe/signal"
)

// Subsystem is the logging code of the main package.
const Subsystem = "TNPR"

// tnprLog is the logger of the main package. It writes nowhere until
// SetupLoggers is called.
var tnprLog = build.NewSubLogger(Subsystem, nil)

// btclogHandler returns the handler every subsystem logger writes through:
// stdout plus the rotating log file.
func btclogHandler(cfg *build.LogConfig, logFile io.Writer) btclog.Handler {
	return btclog.NewDefaultHandler(
		&build.LogWriter{Rotator: logFile}, cfg.HandlerOptions()...,
	)
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager) {
	genLogger := root.GenSubLogger

	tnprLog = build.NewSubLogger(Subsystem, genLogger)
	root.RegisterSubLogger(Subsystem, tnprLog)

	AddSubLogger(root, peerwire.Subsystem, peerwire.UseLogger)
	AddSubLogger(root, seed.Subsystem, seed.UseLogger)
	AddSubLogger(root, probe.Subsystem, probe.UseLogger)
	AddSubLogger(root, monitoring.Subsystem, monitoring.UseLogger)
	AddSubLogger(root, signal.Subsystem, signal.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.SubLoggerManager, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger of a
// sub system.
func SetSubLogger(root *build.SubLoggerManager, subsystem string,
	logger btclog.Logger, useLoggers ...func(btclog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
