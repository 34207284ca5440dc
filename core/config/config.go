package config

import (
	"reflect"
	"strings"

	"termsync/core/coord"
	"termsync/core/database"
	"termsync/core/deleter"
	"termsync/core/docstore/backend"
	"termsync/core/logger"
	"termsync/core/metrics"
	"termsync/core/server"
	"termsync/core/snapshot"
	"termsync/core/storage"
	"termsync/core/tracing"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations owned by the packages that use them.
type Config struct {
	// Server holds configuration for the HTTP API.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the S3-compatible bucket.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the relational sink.
	Database database.Config `mapstructure:"database"`
	// Store selects the document store backend.
	Store backend.Config `mapstructure:"store"`
	// Deletion bounds delete and reset runs.
	Deletion deleter.Config `mapstructure:"deletion"`
	// Snapshot holds snapshot locations and cache settings.
	Snapshot snapshot.Config `mapstructure:"snapshot"`
	// Redis configures the run lock.
	Redis coord.Config `mapstructure:"redis"`
	Metrics metrics.Config `mapstructure:"metrics"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Missing .env is normal outside development.
	_ = godotenv.Overload(envPath)

	v := viper.New()

	bindValues(v, Config{}, "")

	// STORE_FIRESTORE_PROJECT_ID -> store.firestore.project_id
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues registers every tagged field with its `default` value so that
// AutomaticEnv can resolve it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// time.Duration is an int64, not a struct, so it falls through.
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
