package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/altchat/composer/internal/flagx"
	"github.com/altchat/composer/internal/policy"
	"github.com/altchat/composer/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP      string              `json:"endpoint_addr_http"`
	DatabaseDSN           string              `json:"database_dsn"`
	SecretKey             string              `json:"secret_key"`
	TokenValidityDuration timex.Duration      `json:"token_validity_duration"`
	PresignExpiry         timex.Duration      `json:"presign_expiry"`
	PublicBaseURL         string              `json:"public_base_url"`
	S3RootUser            string              `json:"s3_root_user"`
	S3RootPassword        string              `json:"s3_root_password"`
	S3Bucket              string              `json:"s3_bucket"`
	S3Region              string              `json:"s3_region"`
	S3BaseEndpoint        string              `json:"s3_base_endpoint"`
	LogPath               string              `json:"log_path"`
	LogLevel              string              `json:"log_level"`
	Policy                policy.UploadPolicy `json:"upload_policy"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. The file is expected to be a
// complete configuration: its values replace the current ones wholesale.
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

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

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	config.PresignExpiry = time.Duration(c.PresignExpiry.Duration)
	config.PublicBaseURL = c.PublicBaseURL
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.LogPath = c.LogPath
	config.LogLevel = c.LogLevel
	config.Policy = c.Policy
}
