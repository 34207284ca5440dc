package snapshot

import (
	"context"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"termsync/core/storage"
)

// Config configures snapshot locations.
type Config struct {
	// Location is the default snapshot address used when a command gets none.
	Location string `mapstructure:"location" default:"snapshots/terminology.json"`
	// GCSCredentialsFile authenticates gs:// locations. Empty uses the
	// application default credentials.
	GCSCredentialsFile string `mapstructure:"gcs_credentials_file" default:""`
	// CacheTTLSeconds is how long the HTTP API reuses a flatten result.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" default:"60"`
}

// OpenBackends creates only the client that location needs. The returned
// close func is never nil.
func OpenBackends(ctx context.Context, location string, cfg Config, s3 storage.Config) (Backends, func() error, error) {
	noop := func() error { return nil }
	loc, err := ParseLocation(location)
	if err != nil {
		return Backends{}, noop, err
	}

	switch loc.Scheme {
	case "s3":
		client, err := storage.NewClient(s3)
		if err != nil {
			return Backends{}, noop, fmt.Errorf("storage client: %w", err)
		}
		return Backends{S3: client}, noop, nil
	case "gs":
		var opts []option.ClientOption
		if strings.TrimSpace(cfg.GCSCredentialsFile) != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return Backends{}, noop, fmt.Errorf("gcs client: %w", err)
		}
		return Backends{GCS: client}, client.Close, nil
	}
	return Backends{}, noop, nil
}
