// Package conf loads and validates the pipeline configuration.
package conf

import (
	"fmt"
	"sync"
	"time"

	"github.com/awsl-project/awsl-pic-pipeline/internal/errors"
	"github.com/spf13/viper"
)

// LogConfig holds logging-related settings shared by all components.
type LogConfig struct {
	Level string // debug, info, warn, error
	Path  string // directory for service log files
}

// DatabaseConfig selects the metadata store dialect and connection.
type DatabaseConfig struct {
	SQLite struct {
		Enabled bool   // true to use SQLite
		Path    string // path to sqlite database file
	}
	MySQL struct {
		Enabled  bool   // true to use MySQL
		Username string // MySQL username
		Password string // MySQL password
		Host     string // MySQL host
		Port     string // MySQL port
		Database string // MySQL database name
	}
}

// StorageConfig describes the awsl-telegram-storage service endpoint.
type StorageConfig struct {
	BaseURL  string // base URL of the storage service, required for uploads
	APIToken string // X-Api-Token credential, required for uploads
	ChatID   string // optional chat id forwarded with uploads
}

// MigrationConfig controls a migration run.
type MigrationConfig struct {
	GroupLimit   int           // max number of distinct awsl_id groups per run
	EnableDelete bool          // true to allow soft-deleting failed pics
	UploadDelay  time.Duration // pacing delay between groups
}

// Settings is the root configuration struct. It is assembled once at startup
// and passed explicitly into each component; there is no process-wide mutable
// settings instance.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version string `yaml:"-"` // Version from build

	Main struct {
		Name string    // name of this pipeline node
		Log  LogConfig // logging configuration
	}

	Database  DatabaseConfig  // metadata store configuration
	Storage   StorageConfig   // remote blob storage configuration
	Migration MigrationConfig // migration run configuration
}

var (
	settingsMutex sync.Mutex
)

// Load reads the configuration file and environment into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("AWSL")
	viper.AutomaticEnv()

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, run on defaults and environment only
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// ValidateSettings checks settings that every run depends on. Storage settings
// are validated separately by the upload path so that runs which never reach
// the network (e.g. nothing to migrate) do not require them.
func ValidateSettings(settings *Settings) error {
	if !settings.Database.SQLite.Enabled && !settings.Database.MySQL.Enabled {
		return errors.Newf("no database enabled: enable either database.sqlite or database.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Database.SQLite.Enabled && settings.Database.MySQL.Enabled {
		return errors.Newf("both sqlite and mysql enabled: enable exactly one database").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Migration.GroupLimit <= 0 {
		return errors.Newf("migration.grouplimit must be positive, got %d", settings.Migration.GroupLimit).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
