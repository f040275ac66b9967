package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/frostnetworks/frost/src/ice"
	"github.com/frostnetworks/frost/src/sampling"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the
	// node's ed25519 seed
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// badger database
	DefaultBadgerFile = "badger_db"

	// DefaultCertFile is the default name of the TLS certificate file
	DefaultCertFile = "cert.pem"

	// DefaultCertKeyFile is the default name of the TLS key file
	DefaultCertKeyFile = "key.pem"
)

// Default configuration values.
const (
	DefaultLogLevel       = "debug"
	DefaultBindAddr       = "127.0.0.1:1337"
	DefaultServiceAddr    = "127.0.0.1:8000"
	DefaultProtocolPeriod = 1 * time.Second
	DefaultTimeout        = 1000 * time.Millisecond
	DefaultStallTimeout   = 5000 * time.Millisecond
	DefaultMaxPool        = 2
	DefaultSyncLimit      = 1000
	DefaultStore          = false
)

// Config contains all the configuration properties of a frost node.
type Config struct {
	// DataDir is the top-level directory containing frost configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates log output to a file
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node talks to other
	// nodes
	BindAddr string `mapstructure:"addr"`

	// AdvertiseAddr is used to advertise a different address to other
	// nodes, when BindAddr is not routable
	AdvertiseAddr string `mapstructure:"advertise"`

	// Keypair is the node's ed25519 seed in hex. When empty, the keyfile
	// in DataDir is used, and created if missing.
	Keypair string `mapstructure:"keypair"`

	// Bootstrap is the static whitelist of peers, as PeerId@host:port
	// entries
	Bootstrap []string `mapstructure:"bootstrap"`

	// UseTLS enables the mutually authenticated TLS transport
	UseTLS bool `mapstructure:"use-tls"`

	// CertPath is the TLS certificate file; generated if missing
	CertPath string `mapstructure:"cert-path"`

	// KeyPath is the TLS key file; generated if missing
	KeyPath string `mapstructure:"key-path"`

	// ID overrides the derived node identity (base58)
	ID string `mapstructure:"id"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// NoService disables the HTTP API service
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistent storage
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files
	DatabaseDir string `mapstructure:"db"`

	// MaxPool controls how many connections are pooled per target
	MaxPool int `mapstructure:"max-pool"`

	// Timeout is the per-round query and RPC timeout. Responses arriving
	// after it count as "no".
	Timeout time.Duration `mapstructure:"timeout"`

	// ProtocolPeriod is the cadence of the ice and consensus loops
	ProtocolPeriod time.Duration `mapstructure:"protocol-period"`

	// StallTimeout bounds how long hail holds a block that references
	// cells sleet has not decided yet
	StallTimeout time.Duration `mapstructure:"stall-timeout"`

	// SyncLimit is the max number of items in a gap-fill response
	SyncLimit int `mapstructure:"sync-limit"`

	// Consensus carries the k / alpha / beta1 / beta2 parameters shared
	// by sleet and hail
	Consensus sampling.Params `mapstructure:",squash"`

	// Ice carries the liveness engine parameters
	Ice ice.Config `mapstructure:",squash"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:        DefaultDataDir(),
		LogLevel:       DefaultLogLevel,
		BindAddr:       DefaultBindAddr,
		ServiceAddr:    DefaultServiceAddr,
		Store:          DefaultStore,
		DatabaseDir:    DefaultDatabaseDir(),
		MaxPool:        DefaultMaxPool,
		Timeout:        DefaultTimeout,
		ProtocolPeriod: DefaultProtocolPeriod,
		StallTimeout:   DefaultStallTimeout,
		SyncLimit:      DefaultSyncLimit,
		Consensus:      sampling.DefaultParams(),
		Ice:            ice.DefaultConfig(),
	}
}

// SetDataDir sets the top-level frost directory, and updates the database
// directory if it is currently set to the default value.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the node's seed.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CertFile returns the full path of the TLS certificate file.
func (c *Config) CertFile() string {
	if c.CertPath != "" {
		return c.CertPath
	}
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// CertKeyFile returns the full path of the TLS key file.
func (c *Config) CertKeyFile() string {
	if c.KeyPath != "" {
		return c.KeyPath
	}
	return filepath.Join(c.DataDir, DefaultCertKeyFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "frost".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.AddHook(lfshook.NewHook(
				c.LogFile,
				new(prefixed.TextFormatter),
			))
		}
	}
	return c.logger.WithField("prefix", "frost")
}

// WithLogger installs a pre-built logger, used by tests.
func (c *Config) WithLogger(logger *logrus.Logger) *Config {
	c.logger = logger
	return c
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory name for top-level frost
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Frost")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Frost")
		}
		return filepath.Join(home, ".frost")
	}
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
