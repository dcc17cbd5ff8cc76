// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 The Lightning Network Developers

package tnprobe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tor"
	"github.com/lightningnetwork/tnprobe/build"
	"github.com/lightningnetwork/tnprobe/lnutils"
	"github.com/lightningnetwork/tnprobe/monitoring"
	"github.com/lightningnetwork/tnprobe/peerwire"
	"github.com/lightningnetwork/tnprobe/probe"
	"github.com/lightningnetwork/tnprobe/seed"
	"github.com/lightningnetwork/tnprobe/signal"
	"github.com/prometheus/client_golang/prometheus"
)

// exporterShutdownTimeout bounds the graceful stop of the metrics exporter.
const exporterShutdownTimeout = 5 * time.Second

// Main is the true entry point for tnprobe. It probes the configured seeds
// and logs the outcome. This function is required since defers created in
// the top-level scope of a main method aren't executed if os.Exit() is
// called.
func Main(cfg *Config, interceptor signal.Interceptor) error {
	defer func() {
		// Stop the interrupt handler if no signal did so already, and
		// wait for it to exit.
		if interceptor.Alive() {
			interceptor.RequestShutdown()
		}
		<-interceptor.ShutdownChannel()

		tnprLog.Info("Shutdown complete")
		if err := cfg.Close(); err != nil {
			fmt.Println("unable to close log rotator:", err)
		}
	}()

	// Show version at startup.
	tnprLog.Infof("Version: %s commit=%s, build=%s, logging=%s, "+
		"debuglevel=%s", build.Version(), build.Commit,
		build.Deployment, build.LoggingType, cfg.DebugLevel)

	ctx, cancel := interceptor.Context()
	defer cancel()

	return run(ctx, cfg, cfg.Tor.Net())
}

// run probes the configured candidates through net.
func run(ctx context.Context, cfg *Config, net tor.Net) error {
	params := cfg.ActiveNetParams()
	codec, err := peerwire.CodecForParams(params)
	if err != nil {
		return err
	}

	magic := codec.Magic()
	tnprLog.InfoS(ctx, "Active network", "name", params.Name,
		lnutils.LogMagic("magic", magic[:]))

	if cfg.Tor.Active {
		tnprLog.Infof("Dialing through Tor SOCKS proxy at %v",
			cfg.Tor.SOCKS)
	}

	candidates, err := seed.Candidates(params, cfg.Seeds)
	if err != nil {
		return err
	}

	var metrics *monitoring.Metrics
	if cfg.Prometheus.Enabled() {
		reg := prometheus.NewRegistry()
		metrics, err = monitoring.NewMetrics(reg, nil)
		if err != nil {
			return fmt.Errorf("unable to create metrics: %w", err)
		}

		srv, _, err := monitoring.ExportPrometheusMetrics(
			*cfg.Prometheus, reg,
		)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(), exporterShutdownTimeout,
			)
			defer cancel()

			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	hs := cfg.Handshake
	prober, err := probe.New(probe.Config{
		Net:   net,
		Codec: codec,
		Version: peerwire.VersionConfig{
			ProtocolVersion: hs.ProtocolVersion,
			Services:        wire.ServiceFlag(hs.Services),
			UserAgent:       hs.UserAgent,
			StartHeight:     hs.StartHeight,
			Relay:           hs.Relay,
		},
		DialTimeout:     hs.DialTimeout,
		ReadTimeout:     hs.ReadTimeout,
		ReadBufferSize:  hs.ReadBuffer,
		VerifyChecksum:  hs.VerifyChecksum,
		MaxReplyPayload: hs.MaxReplyPayload,
		Metrics:         metrics,
	})
	if err != nil {
		return err
	}

	res, err := prober.Run(ctx, candidates)
	switch {
	case errors.Is(err, context.Canceled):
		tnprLog.Info("Probe interrupted")
		return nil

	case err != nil:
		return err
	}

	logResult(res)

	return nil
}

// logResult reports what the answering peer sent back.
func logResult(res *probe.Result) {
	tnprLog.Infof("Received %d bytes from %v", len(res.Received), res.Addr)

	if res.HeaderErr != nil {
		tnprLog.Warnf("Reply is not a valid message: %v", res.HeaderErr)
		return
	}

	res.Header.WhenSome(func(hdr *peerwire.MessageHeader) {
		tnprLog.Infof("Reply command=%v, length=%d", hdr.Command,
			hdr.Length)
	})
	res.ChecksumValid.WhenSome(func(valid bool) {
		tnprLog.Infof("Reply checksum valid: %v", valid)
	})
	res.PeerVersion.WhenSome(func(ver *peerwire.MsgVersion) {
		tnprLog.Infof("Peer %v", ver)
	})
}
