package mirror

import (
	"errors"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"
)

const (
	defaultPathToTest       = "state"
	defaultCommentPrefix    = "# "
	defaultFetchTimeoutMs   = 15000
	defaultProbeTimeoutMs   = 8000
	defaultProbeConcurrency = 8
)

// TargetConfig is an auxiliary struct for Config holding the settings
// of one distribution target.
type TargetConfig struct {
	MirrorList       string `toml:"mirror_list"`
	PathToTest       string `toml:"path_to_test"`
	CommentPrefix    string `toml:"comment_prefix"`
	FetchTimeoutMs   int    `toml:"fetch_timeout_ms"`
	ProbeTimeoutMs   int    `toml:"probe_timeout_ms"`
	ProbeConcurrency int    `toml:"probe_concurrency"`

	PGPKeyPath string `toml:"pgp_key_path,omitempty"`
	SavePath   string `toml:"save_path,omitempty"`
}

// Check validates the target configuration and fills in defaults for
// absent keys.
func (tc *TargetConfig) Check() error {
	if tc.MirrorList == "" {
		return errors.New("mirror_list is not set")
	}
	if tc.PathToTest == "" {
		tc.PathToTest = defaultPathToTest
	}
	if tc.CommentPrefix == "" {
		tc.CommentPrefix = defaultCommentPrefix
	}
	if tc.FetchTimeoutMs == 0 {
		tc.FetchTimeoutMs = defaultFetchTimeoutMs
	}
	if tc.ProbeTimeoutMs == 0 {
		tc.ProbeTimeoutMs = defaultProbeTimeoutMs
	}
	if tc.ProbeConcurrency == 0 {
		tc.ProbeConcurrency = defaultProbeConcurrency
	}
	if tc.ProbeConcurrency < 1 {
		return errors.New("probe_concurrency must be at least 1")
	}
	if tc.FetchTimeoutMs < 0 || tc.ProbeTimeoutMs < 0 {
		return errors.New("timeouts must not be negative")
	}

	if tc.PGPKeyPath != "" {
		if !path.IsAbs(tc.PGPKeyPath) {
			return errors.New("pgp_key_path must be an absolute path")
		}
		if _, err := os.Stat(tc.PGPKeyPath); os.IsNotExist(err) {
			return errors.New("pgp_key_path does not exist: " + tc.PGPKeyPath)
		} else if err != nil {
			return errors.New("cannot access pgp_key_path: " + err.Error())
		}

		// Check if file is readable
		file, err := os.Open(tc.PGPKeyPath)
		if err != nil {
			return errors.New("cannot read pgp_key_path: " + err.Error())
		}
		if err := file.Close(); err != nil {
			slog.Warn("failed to close PGP key file during validation", "path", tc.PGPKeyPath, "error", err)
		}
	}

	return nil
}

// FetchTimeout returns the mirror-list fetch timeout.
func (tc *TargetConfig) FetchTimeout() time.Duration {
	return time.Duration(tc.FetchTimeoutMs) * time.Millisecond
}

// ProbeTimeout returns the per-probe timeout.
func (tc *TargetConfig) ProbeTimeout() time.Duration {
	return time.Duration(tc.ProbeTimeoutMs) * time.Millisecond
}

// FormatComment renders a progress message as a mirrorlist comment line.
func (tc *TargetConfig) FormatComment(message string) string {
	return tc.CommentPrefix + message
}

// FormatMirrorLine renders a surviving mirror as a pacman mirrorlist
// entry.
func (tc *TargetConfig) FormatMirrorLine(m Mirror) string {
	return "Server = " + m.URL.String() + "$repo/$arch"
}

// LogConfig represents slog configuration options
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Apply configures the global slog logger based on the configuration
func (logConfig *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + logConfig.Level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logConfig.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + logConfig.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Config is a struct to read TOML configurations.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	config := mirror.NewConfig()
//	md, err := toml.DecodeFile("/path/to/config.toml", config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	Log              LogConfig                `toml:"log"`
	AllowedProtocols []string                 `toml:"allowed_protocols"`
	Targets          map[string]*TargetConfig `toml:"targets"`
}

// ProtocolAllowed is the protocol policy predicate: it reports whether
// mirrors reachable over p are eligible for probing and selection.
func (c *Config) ProtocolAllowed(p Protocol) bool {
	for _, allowed := range c.AllowedProtocols {
		if Protocol(allowed) == p {
			return true
		}
	}
	return false
}

// Check validates the configuration.
func (c *Config) Check() error {
	if len(c.AllowedProtocols) == 0 {
		return errors.New("allowed_protocols is empty")
	}
	for _, p := range c.AllowedProtocols {
		if _, err := ParseProtocol(p); err != nil {
			return err
		}
	}
	if len(c.Targets) == 0 {
		return errors.New("no targets")
	}
	for name, tc := range c.Targets {
		if err := tc.Check(); err != nil {
			return errors.New(name + ": " + err.Error())
		}
	}
	return nil
}

// NewConfig creates Config with default values.
func NewConfig() *Config {
	return &Config{
		AllowedProtocols: []string{"https", "http"},
	}
}
