package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/outofsight/internal/flagx"
	"github.com/dmitrijs2005/outofsight/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Durations use timex.Duration so both "30s" and integer nanoseconds parse.
// Pointer fields distinguish "absent" from the zero value.
type JsonConfig struct {
	DatabaseDSN          string          `json:"database_dsn"`
	SecretKey            string          `json:"secret_key"`
	S3RootUser           string          `json:"s3_root_user"`
	S3RootPassword       string          `json:"s3_root_password"`
	S3Bucket             string          `json:"s3_bucket"`
	S3Region             string          `json:"s3_region"`
	S3BaseEndpoint       string          `json:"s3_base_endpoint"`
	S3UsePathStyle       *bool           `json:"s3_use_path_style"`
	MaxUploadSize        int64           `json:"max_upload_size"`
	ChunkSize            int             `json:"chunk_size"`
	ScratchRoot          string          `json:"scratch_root"`
	Workers              int             `json:"workers"`
	AllowFailedDownloads *bool           `json:"allow_failed_downloads"`
	AllowEmptyObjects    *bool           `json:"allow_empty_objects"`
	MetricsAddr          string          `json:"metrics_addr"`
	ShutdownTimeout      *timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Keys missing from the file keep their current
// values. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.ScratchRoot, c.ScratchRoot)
	setString(&config.MetricsAddr, c.MetricsAddr)

	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	if c.AllowFailedDownloads != nil {
		config.AllowFailedDownloads = *c.AllowFailedDownloads
	}
	if c.AllowEmptyObjects != nil {
		config.AllowEmptyObjects = *c.AllowEmptyObjects
	}
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	if c.ChunkSize > 0 {
		config.ChunkSize = c.ChunkSize
	}
	if c.Workers > 0 {
		config.Workers = c.Workers
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
