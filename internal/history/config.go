package history

import "github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultBatchSize    = 60
	defaultBatchTimeout = 30
	backupDirName       = "backups"
)

type Config struct {
	DBPath       string
	Enabled      bool
	BatchSize    int
	BatchTimeout int // seconds
}

func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:       dbPath,
		Enabled:      false, // Disabled by default
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
