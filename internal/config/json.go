package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/invkeeper/internal/flagx"
	"github.com/dmitrijs2005/invkeeper/internal/timex"
)

// JSONConfig is the on-disk shape of the config file. Pointer fields keep
// absent keys from clobbering defaults; durations accept "15m" or nanoseconds.
type JSONConfig struct {
	HTTPAddr  *string `json:"http_addr"`
	LogLevel  *string `json:"log_level"`
	LogFormat *string `json:"log_format"`

	RecordBackend *string `json:"record_backend"`
	SQLitePath    *string `json:"sqlite_path"`
	DatabaseDSN   *string `json:"database_dsn"`

	ObjectBackend  *string `json:"object_backend"`
	LocalObjectDir *string `json:"local_object_dir"`
	LocalObjectURL *string `json:"local_object_url"`

	S3RootUser     *string         `json:"s3_root_user"`
	S3RootPassword *string         `json:"s3_root_password"`
	S3Bucket       *string         `json:"s3_bucket"`
	S3Region       *string         `json:"s3_region"`
	S3BaseEndpoint *string         `json:"s3_base_endpoint"`
	S3PathStyle    *bool           `json:"s3_path_style"`
	S3PublicURL    *string         `json:"s3_public_url"`
	S3URLExpiry    *timex.Duration `json:"s3_url_expiry"`

	ScratchDir       *string `json:"scratch_dir"`
	ThumbnailSize    *int    `json:"thumbnail_size"`
	ThumbnailQuality *int    `json:"thumbnail_quality"`
	ThumbnailCommand *string `json:"thumbnail_command"`

	CollectionLimit *int `json:"collection_limit"`
}

// parseJSON overlays values from the file named by -c/-config (or
// $INVKEEPER_CONFIG). No file means nothing to load.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}

func (jc *JSONConfig) apply(cfg *Config) {
	setString(&cfg.HTTPAddr, jc.HTTPAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.RecordBackend, jc.RecordBackend)
	setString(&cfg.SQLitePath, jc.SQLitePath)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.ObjectBackend, jc.ObjectBackend)
	setString(&cfg.LocalObjectDir, jc.LocalObjectDir)
	setString(&cfg.LocalObjectURL, jc.LocalObjectURL)
	setString(&cfg.S3RootUser, jc.S3RootUser)
	setString(&cfg.S3RootPassword, jc.S3RootPassword)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3PublicURL, jc.S3PublicURL)
	setString(&cfg.ScratchDir, jc.ScratchDir)
	setString(&cfg.ThumbnailCommand, jc.ThumbnailCommand)

	if jc.S3PathStyle != nil {
		cfg.S3PathStyle = *jc.S3PathStyle
	}
	if jc.S3URLExpiry != nil {
		cfg.S3URLExpiry = jc.S3URLExpiry.Duration
	}
	if jc.ThumbnailSize != nil {
		cfg.ThumbnailSize = *jc.ThumbnailSize
	}
	if jc.ThumbnailQuality != nil {
		cfg.ThumbnailQuality = *jc.ThumbnailQuality
	}
	if jc.CollectionLimit != nil {
		cfg.CollectionLimit = *jc.CollectionLimit
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
