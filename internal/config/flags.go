package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/flagx"
)

// flagNames lists every flag handled here; other arguments (e.g. -c) are
// filtered out before parsing.
var flagNames = []string{
	"-a", "-l", "-f",
	"-records", "-sqlite", "-d",
	"-objects", "-objects-dir", "-objects-url",
	"-u", "-p", "-b", "-g", "-e", "-public-url", "-x",
	"-scratch", "-thumb-size", "-thumb-quality", "-thumb-cmd",
	"-limit",
}

// parseFlags overlays command-line flags onto cfg.
//
// Supported flags:
//
//	-a string          HTTP bind address (e.g. ":8080")
//	-l string          log level (debug, info, warn, error)
//	-f string          log format (json, text)
//	-records string    record backend (memory, sqlite, postgres)
//	-sqlite string     SQLite database path
//	-d string          PostgreSQL DSN
//	-objects string    object backend (local, s3)
//	-objects-dir       local object directory
//	-objects-url       public base URL of local objects
//	-u / -p            S3 root user / password
//	-b / -g / -e       S3 bucket / region / base endpoint
//	-public-url        S3 public base URL
//	-x int             presigned URL validity, minutes
//	-scratch           scratch directory
//	-thumb-size int    thumbnail bounding box in pixels
//	-thumb-quality int JPEG quality 1..100
//	-thumb-cmd string  external thumbnail renderer command
//	-limit int         live collection size
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("invkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "address and port to run server")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format")

	fs.StringVar(&cfg.RecordBackend, "records", cfg.RecordBackend, "record backend")
	fs.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database path")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")

	fs.StringVar(&cfg.ObjectBackend, "objects", cfg.ObjectBackend, "object backend")
	fs.StringVar(&cfg.LocalObjectDir, "objects-dir", cfg.LocalObjectDir, "local object directory")
	fs.StringVar(&cfg.LocalObjectURL, "objects-url", cfg.LocalObjectURL, "local object base URL")

	fs.StringVar(&cfg.S3RootUser, "u", cfg.S3RootUser, "S3 root user")
	fs.StringVar(&cfg.S3RootPassword, "p", cfg.S3RootPassword, "S3 root password")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.S3PublicURL, "public-url", cfg.S3PublicURL, "S3 public base URL")
	expiry := fs.Int("x", int(cfg.S3URLExpiry.Minutes()), "presigned URL validity (in minutes)")

	fs.StringVar(&cfg.ScratchDir, "scratch", cfg.ScratchDir, "scratch directory")
	fs.IntVar(&cfg.ThumbnailSize, "thumb-size", cfg.ThumbnailSize, "thumbnail size in pixels")
	fs.IntVar(&cfg.ThumbnailQuality, "thumb-quality", cfg.ThumbnailQuality, "thumbnail JPEG quality")
	fs.StringVar(&cfg.ThumbnailCommand, "thumb-cmd", cfg.ThumbnailCommand, "external thumbnail renderer")

	fs.IntVar(&cfg.CollectionLimit, "limit", cfg.CollectionLimit, "live collection size")

	if err := fs.Parse(flagx.FilterArgs(args, flagNames)); err != nil {
		return err
	}

	cfg.S3URLExpiry = time.Duration(*expiry) * time.Minute
	return nil
}
