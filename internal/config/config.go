// Package config loads the pgstatus command configuration from a YAML file
// and PGSTATUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/hsharp/lib-dbprovider/provider/postgres"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PGSTATUS_"

var (
	// ErrMissingDescriptor is returned when no database host or name is configured.
	ErrMissingDescriptor = errors.New("database host and name are required")
	// ErrInvalidConfig is returned when a configured value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Log selects the logger profile.
type Log struct {
	Environment string `yaml:"environment" validate:"oneof=production development local"`
	Level       string `yaml:"level" validate:"oneof=error warn warning info debug"`
}

// File is the on-disk configuration.
type File struct {
	Database provider.Descriptor `yaml:"database"`
	Pool     postgres.Setup      `yaml:"pool"`
	Log      Log                 `yaml:"log"`
}

// Load reads path (optional, empty skips the file), applies environment
// overrides and fills defaults.
func Load(path string) (File, error) {
	cfg := File{
		Database: provider.Descriptor{Port: 5432},
		Pool:     postgres.DefaultSetup(),
		Log:      Log{Environment: "production", Level: "info"},
	}

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return File{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := validateFile(cfg); err != nil {
		return File{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *File) {
	d := &cfg.Database

	d.Host = GetenvOrDefault(envPrefix+"HOST", d.Host)
	d.Port = int(GetenvIntOrDefault(envPrefix+"PORT", int64(d.Port)))
	d.DBName = GetenvOrDefault(envPrefix+"DB_NAME", d.DBName)
	d.User = GetenvOrDefault(envPrefix+"USER", d.User)
	d.Password = GetenvOrDefault(envPrefix+"PASSWORD", d.Password)
	d.SSL = GetenvBoolOrDefault(envPrefix+"SSL", d.SSL)

	cfg.Pool.DataSourceName = GetenvOrDefault(envPrefix+"DATA_SOURCE_NAME", cfg.Pool.DataSourceName)
	cfg.Log.Environment = GetenvOrDefault(envPrefix+"ENV", cfg.Log.Environment)
	cfg.Log.Level = strings.ToLower(GetenvOrDefault(envPrefix+"LOG_LEVEL", cfg.Log.Level))
}

// GetenvOrDefault returns the trimmed value of key, or defaultValue when unset or blank.
func GetenvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	return value
}

// GetenvBoolOrDefault parses key as a bool, returning defaultValue when unset or invalid.
func GetenvBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}

	return value
}

// GetenvIntOrDefault parses key as an int64, returning defaultValue when unset or invalid.
func GetenvIntOrDefault(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
