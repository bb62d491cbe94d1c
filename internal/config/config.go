// Package config provides configuration management for heimdex-render.
// Configuration is layered: built-in defaults, an optional .env file,
// environment variables, an optional YAML render profile and finally
// command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultAppPath       = "/Applications/DaVinci Resolve/DaVinci Resolve.app"
	DefaultBinPath       = "Contents/MacOS/Resolve"
	DefaultInputDir      = "./input_data"
	DefaultOutputDir     = "./out"
	DefaultExtension     = ".mov"
	DefaultMaxBytes      = 50 * 1024 * 1024 // 50 MiB
	DefaultProjectSuffix = "_Film"
	DefaultTimelineName  = "timeline"
	DefaultRenderPreset  = "IMF - Netflix"
	DefaultRenderFormat  = "imf"
	DefaultRenderCodec   = "Kakadu"
	DefaultBridgeModule  = "heimdex_resolve_bridge"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultDataDir       = ".heimdex-render"

	DefaultStartupGrace  = 0
	DefaultReadyTimeout  = 90 * time.Second
	DefaultPollInterval  = time.Second
	DefaultRenderTimeout = 4 * time.Hour
	DefaultBridgeTimeout = 30 * time.Second

	// Database filename
	DBFilename = "heimdex-render.db"

	// .env file consulted before the environment
	DotEnvFile = ".env"
)

// Environment variable names
const (
	EnvAppPath         = "HEIMDEX_RENDER_APP_PATH"
	EnvBinPath         = "HEIMDEX_RENDER_BIN_PATH"
	EnvInputDir        = "HEIMDEX_RENDER_INPUT_DIR"
	EnvOutputDir       = "HEIMDEX_RENDER_OUTPUT_DIR"
	EnvExtension       = "HEIMDEX_RENDER_EXTENSION"
	EnvMaxBytes        = "HEIMDEX_RENDER_MAX_BYTES"
	EnvProjectSuffix   = "HEIMDEX_RENDER_PROJECT_SUFFIX"
	EnvBridgePython    = "HEIMDEX_RENDER_BRIDGE_PYTHON"
	EnvBridgeModule    = "HEIMDEX_RENDER_BRIDGE_MODULE"
	EnvStartupGrace    = "HEIMDEX_RENDER_STARTUP_GRACE"
	EnvReadyTimeout    = "HEIMDEX_RENDER_READY_TIMEOUT"
	EnvPollInterval    = "HEIMDEX_RENDER_POLL_INTERVAL"
	EnvRenderTimeout   = "HEIMDEX_RENDER_RENDER_TIMEOUT"
	EnvContinueOnError = "HEIMDEX_RENDER_CONTINUE_ON_ERROR"
	EnvDataDir         = "HEIMDEX_RENDER_DATA_DIR"
	EnvLogLevel        = "HEIMDEX_RENDER_LOG_LEVEL"
	EnvLogFormat       = "HEIMDEX_RENDER_LOG_FORMAT"
	EnvStatusPort      = "HEIMDEX_RENDER_STATUS_PORT"
	EnvProfile         = "HEIMDEX_RENDER_PROFILE"
)

// Config defines the application configuration interface
type Config interface {
	Headless() bool
	AppPath() string
	BinaryPath() string
	InputDir() string
	OutputDir() string
	Extension() string
	MaxBytes() int64
	ProjectSuffix() string
	BridgePython() string
	BridgeModule() string
	BridgeTimeout() time.Duration
	StartupGrace() time.Duration
	ReadyTimeout() time.Duration
	PollInterval() time.Duration
	RenderTimeout() time.Duration
	ContinueOnError() bool
	Render() RenderProfile
	DataDir() string
	DBPath() string
	LogLevel() string
	LogFormat() string
	StatusPort() int
}

// EnvConfig reads configuration from the environment, a render profile and flags
type EnvConfig struct {
	headless        bool
	appPath         string
	binPath         string
	inputDir        string
	outputDir       string
	extension       string
	maxBytes        int64
	projectSuffix   string
	bridgePython    string
	bridgeModule    string
	startupGrace    time.Duration
	readyTimeout    time.Duration
	pollInterval    time.Duration
	renderTimeout   time.Duration
	continueOnError bool
	render          RenderProfile
	dataDir         string
	logLevel        string
	logFormat       string
	statusPort      int
	profilePath     string
}

// New creates an EnvConfig from defaults, .env, environment variables, the
// optional render profile and the given command-line arguments (without the
// program name).
func New(args []string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		appPath:         DefaultAppPath,
		binPath:         DefaultBinPath,
		inputDir:        DefaultInputDir,
		outputDir:       DefaultOutputDir,
		extension:       DefaultExtension,
		maxBytes:        DefaultMaxBytes,
		projectSuffix:   DefaultProjectSuffix,
		bridgeModule:    DefaultBridgeModule,
		startupGrace:    DefaultStartupGrace,
		readyTimeout:    DefaultReadyTimeout,
		pollInterval:    DefaultPollInterval,
		renderTimeout:   DefaultRenderTimeout,
		continueOnError: true,
		render:          DefaultRenderProfile(),
		dataDir:         defaultDataDir(),
		logLevel:        DefaultLogLevel,
		logFormat:       DefaultLogFormat,
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("invalid %s: %w", DotEnvFile, err)
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	fsFlags := flag.NewFlagSet("heimdex-render", flag.ContinueOnError)
	fsFlags.SetOutput(io.Discard)
	headless := fsFlags.Bool("headless", false, "Start Resolve without GUI and stop it on exit")
	profile := fsFlags.String("profile", cfg.profilePath, "YAML render profile")
	statusPort := fsFlags.Int("status-port", cfg.statusPort, "Serve the status API on 127.0.0.1:<port> (0 disables)")
	if err := fsFlags.Parse(args); err != nil {
		return nil, err
	}
	if fsFlags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fsFlags.Args(), " "))
	}

	cfg.headless = *headless
	cfg.profilePath = *profile
	if *statusPort < 0 || *statusPort > 65535 {
		return nil, fmt.Errorf("invalid status port %d: must be between 0 and 65535", *statusPort)
	}
	cfg.statusPort = *statusPort

	if cfg.profilePath != "" {
		rp, err := LoadRenderProfile(cfg.profilePath, cfg.render)
		if err != nil {
			return nil, err
		}
		cfg.render = rp
	}

	return cfg, nil
}

func (c *EnvConfig) loadEnv() error {
	setString(&c.appPath, EnvAppPath)
	setString(&c.binPath, EnvBinPath)
	setString(&c.inputDir, EnvInputDir)
	setString(&c.outputDir, EnvOutputDir)
	setString(&c.extension, EnvExtension)
	setString(&c.projectSuffix, EnvProjectSuffix)
	setString(&c.bridgePython, EnvBridgePython)
	setString(&c.bridgeModule, EnvBridgeModule)
	setString(&c.dataDir, EnvDataDir)
	setString(&c.logLevel, EnvLogLevel)
	setString(&c.logFormat, EnvLogFormat)
	setString(&c.profilePath, EnvProfile)

	if v := os.Getenv(EnvMaxBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxBytes, err)
		}
		c.maxBytes = n
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvStartupGrace, &c.startupGrace},
		{EnvReadyTimeout, &c.readyTimeout},
		{EnvPollInterval, &c.pollInterval},
		{EnvRenderTimeout, &c.renderTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.env, err)
		}
		if parsed < 0 {
			return fmt.Errorf("invalid %s: must not be negative", d.env)
		}
		*d.dst = parsed
	}
	if c.pollInterval == 0 {
		return fmt.Errorf("invalid %s: must be positive", EnvPollInterval)
	}

	if v := os.Getenv(EnvContinueOnError); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvContinueOnError, err)
		}
		c.continueOnError = b
	}

	if v := os.Getenv(EnvStatusPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvStatusPort, err)
		}
		c.statusPort = port
	}

	if !strings.HasPrefix(c.extension, ".") {
		c.extension = "." + c.extension
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Headless reports whether Resolve runs without GUI as a child process
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// AppPath returns the expected Resolve installation path
func (c *EnvConfig) AppPath() string {
	return c.appPath
}

// BinaryPath returns the Resolve executable inside the installation
func (c *EnvConfig) BinaryPath() string {
	if filepath.IsAbs(c.binPath) {
		return c.binPath
	}
	return filepath.Join(c.appPath, c.binPath)
}

func (c *EnvConfig) InputDir() string {
	return c.inputDir
}

func (c *EnvConfig) OutputDir() string {
	return c.outputDir
}

// Extension returns the case-sensitive input extension, with leading dot
func (c *EnvConfig) Extension() string {
	return c.extension
}

// MaxBytes returns the input size ceiling; zero or less disables it
func (c *EnvConfig) MaxBytes() int64 {
	return c.maxBytes
}

func (c *EnvConfig) ProjectSuffix() string {
	return c.projectSuffix
}

func (c *EnvConfig) BridgePython() string {
	return c.bridgePython
}

func (c *EnvConfig) BridgeModule() string {
	return c.bridgeModule
}

func (c *EnvConfig) BridgeTimeout() time.Duration {
	return DefaultBridgeTimeout
}

func (c *EnvConfig) StartupGrace() time.Duration {
	return c.startupGrace
}

func (c *EnvConfig) ReadyTimeout() time.Duration {
	return c.readyTimeout
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

// RenderTimeout bounds a single render wait; zero disables the bound
func (c *EnvConfig) RenderTimeout() time.Duration {
	return c.renderTimeout
}

func (c *EnvConfig) ContinueOnError() bool {
	return c.continueOnError
}

// Render returns the render profile (preset, format, codec, overrides)
func (c *EnvConfig) Render() RenderProfile {
	return c.render
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite ledger
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns the log handler format (json or text)
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// StatusPort returns the status API port, 0 when disabled
func (c *EnvConfig) StatusPort() int {
	return c.statusPort
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
