// Package config loads run settings from defaults, an optional config file
// and ABO_* environment variables, in increasing precedence.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	MetadataDir   string `mapstructure:"METADATA_DIR"`
	ImageDir      string `mapstructure:"IMAGE_DIR"`
	OutputPath    string `mapstructure:"OUTPUT_PATH"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	PostgresTable string `mapstructure:"POSTGRES_TABLE"`
	MetricsFile   string `mapstructure:"METRICS_FILE"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogJSON       bool   `mapstructure:"LOG_JSON"`
	ServerAddr    string `mapstructure:"SERVER_ADDR"`
}

var defaults = map[string]any{
	"METADATA_DIR":   "../data/abo/abo-listings",
	"IMAGE_DIR":      "../data/abo/abo-images-small",
	"OUTPUT_PATH":    "../data/products.csv",
	"SQLITE_PATH":    "",
	"POSTGRES_URL":   "",
	"POSTGRES_TABLE": "abo_products",
	"METRICS_FILE":   "",
	"LOG_LEVEL":      "info",
	"LOG_FILE":       "",
	"LOG_JSON":       false,
	"SERVER_ADDR":    "127.0.0.1:18744",
}

// Load reads the file named by ABO_CONFIG_FILE, if set, then applies ABO_*
// environment overrides. A named file that cannot be read is an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ABO")
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
