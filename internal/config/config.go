package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultThreshold         = 100
	DefaultOutputDir         = "/home/LogFiles/countersmon"
	DefaultMetricsFileName   = "threadpool_counters.csv"
	DefaultHistoryFileName   = "history.db"
	DefaultMaxMetricsSize    = 1 << 20
	DefaultSizeCheckInterval = 500 * time.Millisecond
	DefaultPollInterval      = time.Second
	DefaultProcessName       = "dotnet"
	DefaultCounters          = "System.Runtime[threadpool-thread-count]"
	DefaultRefreshInterval   = 1
	DefaultInstanceEnv       = "COMPUTERNAME"
	DefaultUploadEnv         = "DIAGNOSTICS_AZUREBLOBCONTAINERSASURL"
	DefaultLogLevel          = "info"

	envPrefix     = "COUNTERSMON"
	configEnv     = "COUNTERSMON_CONFIG"
	configName    = "countersmon"
	configType    = "toml"
	systemConfDir = "/etc/countersmon"
)

type Config struct {
	Threshold         int           `mapstructure:"threshold"`
	Cleanup           bool          `mapstructure:"cleanup"`
	OutputDir         string        `mapstructure:"output_dir"`
	MetricsFile       string        `mapstructure:"metrics_file"`
	MaxMetricsSize    int64         `mapstructure:"max_metrics_size"`
	SizeCheckInterval time.Duration `mapstructure:"size_check_interval"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ProcessName       string        `mapstructure:"process_name"`
	Counters          string        `mapstructure:"counters"`
	RefreshInterval   int           `mapstructure:"refresh_interval"`
	InstanceEnv       string        `mapstructure:"instance_env"`
	UploadEnv         string        `mapstructure:"upload_env"`
	DotnetCounters    string        `mapstructure:"dotnet_counters"`
	DotnetDump        string        `mapstructure:"dotnet_dump"`
	AzCopy            string        `mapstructure:"azcopy"`
	LogLevel          string        `mapstructure:"log_level"`
	History           bool          `mapstructure:"history"`
	HistoryDB         string        `mapstructure:"history_db"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
}

// Load reads configuration from defaults, the config file, the environment
// and the process command line, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with an explicit argument list.
func LoadArgs(args []string) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Flags are registered with dashes, config keys use underscores
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(flagKey(f.Name), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	config.applyDerivedDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threshold", DefaultThreshold)
	v.SetDefault("cleanup", false)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("metrics_file", "")
	v.SetDefault("max_metrics_size", DefaultMaxMetricsSize)
	v.SetDefault("size_check_interval", DefaultSizeCheckInterval)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("process_name", DefaultProcessName)
	v.SetDefault("counters", DefaultCounters)
	v.SetDefault("refresh_interval", DefaultRefreshInterval)
	v.SetDefault("instance_env", DefaultInstanceEnv)
	v.SetDefault("upload_env", DefaultUploadEnv)
	v.SetDefault("dotnet_counters", "dotnet-counters")
	v.SetDefault("dotnet_dump", "dotnet-dump")
	v.SetDefault("azcopy", "azcopy")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("history", false)
	v.SetDefault("history_db", "")
	v.SetDefault("metrics_addr", "")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("countersmon", pflag.ContinueOnError)

	fs.Int("threshold", DefaultThreshold, "Thread pool thread count that triggers a memory dump")
	fs.Bool("cleanup", false, "Terminate collaborator processes and exit")
	fs.String("output-dir", DefaultOutputDir, "Directory for rotated logs, lock file and dumps")
	fs.String("metrics-file", "", "Counter stream file (default <output-dir>/"+DefaultMetricsFileName+")")
	fs.Int64("max-metrics-size", DefaultMaxMetricsSize, "Counter stream size that triggers truncation, in bytes")
	fs.Duration("size-check-interval", DefaultSizeCheckInterval, "Interval between counter stream size checks")
	fs.Duration("poll-interval", DefaultPollInterval, "Fallback poll interval while waiting for new counter data")
	fs.String("process-name", DefaultProcessName, "Name of the monitored process")
	fs.String("counters", DefaultCounters, "Counter set passed to dotnet-counters")
	fs.Int("refresh-interval", DefaultRefreshInterval, "dotnet-counters refresh interval in seconds")
	fs.String("instance-env", DefaultInstanceEnv, "Environment variable holding the instance name")
	fs.String("upload-env", DefaultUploadEnv, "Environment variable holding the upload destination URL")
	fs.String("dotnet-counters", "dotnet-counters", "dotnet-counters binary")
	fs.String("dotnet-dump", "dotnet-dump", "dotnet-dump binary")
	fs.String("azcopy", "azcopy", "azcopy binary")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("history", false, "Record samples and dump events in a SQLite history database")
	fs.String("history-db", "", "History database path (default <output-dir>/"+DefaultHistoryFileName+")")
	fs.String("metrics-addr", "", "Address for the Prometheus endpoint, empty to disable")

	return fs
}

func flagKey(name string) string {
	key := []byte(name)
	for i, c := range key {
		if c == '-' {
			key[i] = '_'
		}
	}

	return string(key)
}

func readConfigFile(v *viper.Viper) error {
	errFactory := errors.New()

	v.SetConfigType(configType)

	if path, ok := os.LookupEnv(configEnv); ok {
		// An explicitly empty path disables config file lookup
		if path == "" {
			return nil
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}

		return nil
	}

	v.SetConfigName(configName)
	v.AddConfigPath(systemConfDir)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

func (c *Config) applyDerivedDefaults() {
	if c.MetricsFile == "" {
		c.MetricsFile = filepath.Join(c.OutputDir, DefaultMetricsFileName)
	}
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(c.OutputDir, DefaultHistoryFileName)
	}
}

// Validate checks that the configuration can drive a monitoring run.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Threshold < 0 {
		return errFactory.WithData(errors.ErrInvalidThreshold, c.Threshold)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, fmt.Sprintf("%s (%q)", errors.ErrInvalidLogLevel, c.LogLevel))
	}
	if c.SizeCheckInterval <= 0 || c.PollInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			SizeCheck time.Duration
			Poll      time.Duration
		}{c.SizeCheckInterval, c.PollInterval})
	}
	if c.MaxMetricsSize <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max_metrics_size must be positive")
	}
	if c.OutputDir == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "output_dir is required")
	}

	return nil
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
