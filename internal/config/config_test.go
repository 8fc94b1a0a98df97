package config

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/flagx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, RecordsSQLite, c.RecordBackend)
	assert.Equal(t, ObjectsLocal, c.ObjectBackend)
	assert.Equal(t, "inventory", c.S3Bucket)
	assert.Equal(t, "us-east-1", c.S3Region)
	assert.Equal(t, "http://127.0.0.1:9000/", c.S3BaseEndpoint)
	assert.Equal(t, 7*24*time.Hour, c.S3URLExpiry)
	assert.Equal(t, 300, c.ThumbnailSize)
	assert.Equal(t, 50, c.ThumbnailQuality)
	assert.Equal(t, 100, c.CollectionLimit)
	require.NoError(t, c.Validate())
}

func TestLoad_NoArgsUsesDefaults(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")
	c, err := load(nil)
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "unknown records", mutate: func(c *Config) { c.RecordBackend = "mongo" }, wantErr: common.ErrUnknownBackend},
		{name: "unknown objects", mutate: func(c *Config) { c.ObjectBackend = "gcs" }, wantErr: common.ErrUnknownBackend},
		{name: "s3 without public url", mutate: func(c *Config) { c.ObjectBackend = ObjectsS3 }, wantErr: common.ErrNoPublicURL},
		{name: "zero thumb", mutate: func(c *Config) { c.ThumbnailSize = 0 }},
		{name: "quality too high", mutate: func(c *Config) { c.ThumbnailQuality = 101 }},
		{name: "zero limit", mutate: func(c *Config) { c.CollectionLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestValidate_S3WithPublicURL(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.ObjectBackend = ObjectsS3
	c.S3PublicURL = "https://cdn.example.com/inventory"
	assert.NoError(t, c.Validate())
}

func TestLoad_S3WithoutPublicURLFails(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")
	_, err := load([]string{"-objects", "s3"})
	assert.ErrorIs(t, err, common.ErrNoPublicURL)

	c, err := load([]string{"-objects", "s3", "-public-url", "https://cdn.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", c.S3PublicURL)
}
