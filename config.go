// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 The Lightning Network Developers

package tnprobe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/tnprobe/build"
	"github.com/lightningnetwork/tnprobe/probecfg"
)

const (
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "tnprobe.log"
	defaultNetwork     = "testnet"
)

var (
	// DefaultTnprobeDir is the default directory where tnprobe keeps its
	// config file and logs.
	DefaultTnprobeDir = btcutil.AppDataDir("tnprobe", false)

	// DefaultConfigFile is the default full path of tnprobe's
	// configuration file.
	DefaultConfigFile = filepath.Join(
		DefaultTnprobeDir, probecfg.DefaultConfigFilename,
	)

	defaultLogDir = filepath.Join(DefaultTnprobeDir, defaultLogDirname)

	// networkParams maps the accepted --network values to the chain
	// parameters they select.
	networkParams = map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"regtest": &chaincfg.RegressionNetParams,
		"simnet":  &chaincfg.SimNetParams,
		"signet":  &chaincfg.SigNetParams,
	}
)

// Config defines the configuration options for tnprobe.
//
// See LoadConfig for further details regarding the configuration
// loading+parsing process.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	TnprobeDir string `long:"datadir" description:"The base directory that contains tnprobe's config file and logs"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	Network string   `long:"network" description:"The network whose seeds are probed" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"simnet" choice:"signet"`
	Seeds   []string `long:"seed" description:"Probe this host[:port] instead of the network's DNS seeds. May be repeated, seeds are tried in order"`

	Handshake *probecfg.Handshake `group:"Handshake"`

	Tor *probecfg.Tor `group:"Tor" namespace:"tor"`

	Prometheus *probecfg.Prometheus `group:"Prometheus" namespace:"prometheus"`

	Log *build.LogConfig `group:"Logging"`

	// activeNetParams are the chain parameters selected by Network.
	activeNetParams *chaincfg.Params

	// logRotator writes the log file. It is set up by ValidateConfig and
	// must be closed on shutdown.
	logRotator *build.RotatingLogWriter

	// subLogMgr hands out the subsystem loggers.
	subLogMgr *build.SubLoggerManager
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	handshake := probecfg.DefaultHandshake(build.UserAgent("tnprobe"))
	tor := probecfg.DefaultTor()
	prometheus := probecfg.DefaultPrometheus()

	return Config{
		TnprobeDir: DefaultTnprobeDir,
		ConfigFile: DefaultConfigFile,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Network:    defaultNetwork,
		Handshake:  &handshake,
		Tor:        &tor,
		Prometheus: &prometheus,
		Log:        build.DefaultLogConfig(),
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.NewParser(&preCfg, flags.Default).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", build.Version(),
			"commit="+build.Commit)
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their data directory, then we should assume they intend to
	// use the config file within it.
	configFileDir := probecfg.CleanAndExpandPath(preCfg.TnprobeDir)
	configFilePath := probecfg.CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultTnprobeDir &&
		configFilePath == DefaultConfigFile {

		configFilePath = filepath.Join(
			configFileDir, probecfg.DefaultConfigFilename,
		)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := flags.NewParser(&cfg, flags.Default).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg, usageMessage)
	if err != nil {
		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		tnprLog.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success, with logging set
// up.
func ValidateConfig(cfg Config, usageMessage string) (*Config, error) {
	const funcName = "ValidateConfig"

	// If the provided data directory is not the default, we'll move the
	// log directory within it.
	tnprobeDir := probecfg.CleanAndExpandPath(cfg.TnprobeDir)
	if tnprobeDir != DefaultTnprobeDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(tnprobeDir, defaultLogDirname)
	}
	cfg.TnprobeDir = tnprobeDir
	cfg.LogDir = probecfg.CleanAndExpandPath(cfg.LogDir)

	params, ok := networkParams[cfg.Network]
	if !ok {
		return nil, fmt.Errorf("%s: unknown network %q", funcName,
			cfg.Network)
	}
	cfg.activeNetParams = params

	for _, validator := range []interface{ Validate() error }{
		cfg.Handshake, cfg.Tor, cfg.Prometheus, cfg.Log,
	} {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", funcName, err)
		}
	}

	// Append the network to the log directory so it is "namespaced" per
	// network.
	cfg.LogDir = filepath.Join(cfg.LogDir, normalizeNetwork(params.Name))

	cfg.logRotator = build.NewRotatingLogWriter()
	logHandler := btclogHandler(cfg.Log, cfg.logRotator)
	cfg.subLogMgr = build.NewSubLoggerManager(logHandler)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		SetupLoggers(cfg.subLogMgr)
		fmt.Println("Supported subsystems",
			cfg.subLogMgr.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize logging at the default logging level.
	SetupLoggers(cfg.subLogMgr)
	err := cfg.logRotator.InitLogRotator(
		cfg.Log, filepath.Join(cfg.LogDir, defaultLogFilename),
	)
	if err != nil {
		err = fmt.Errorf("%s: log rotation setup failed: %w", funcName,
			err)
		_, _ = fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, cfg.subLogMgr)
	if err != nil {
		_ = cfg.logRotator.Close()

		err = fmt.Errorf("%s: %w", funcName, err)
		_, _ = fmt.Fprintln(os.Stderr, err)
		_, _ = fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	return &cfg, nil
}

// ActiveNetParams returns the chain parameters of the configured network.
func (c *Config) ActiveNetParams() *chaincfg.Params {
	return c.activeNetParams
}

// Close flushes and closes the log file. Calling it again is a no-op.
func (c *Config) Close() error {
	if c.logRotator == nil {
		return nil
	}

	err := c.logRotator.Close()
	c.logRotator = nil

	return err
}

// normalizeNetwork returns the common name of a network type used to create
// file paths. This allows differently versioned networks to use the same path.
func normalizeNetwork(network string) string {
	if strings.HasPrefix(network, "testnet") {
		return "testnet"
	}

	return network
}
