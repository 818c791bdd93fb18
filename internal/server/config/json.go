package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/futuravault/futuravault/internal/flagx"
	"github.com/futuravault/futuravault/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Interval fields
// use timex.Duration so both "10m" strings and integer nanoseconds parse.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`

	BlobBaseEndpoint string `json:"blob_base_endpoint"`
	BlobPublicBase   string `json:"blob_public_base"`
	BlobToken        string `json:"blob_token"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3PublicBase   string `json:"s3_public_base"`

	ICPGatewayEndpoint string `json:"icp_gateway_endpoint"`
	CanisterID         string `json:"canister_id"`
	CapsuleID          string `json:"capsule_id"`
	IdentitySecret     string `json:"identity_secret"`
	IdentitySalt       string `json:"identity_salt"`

	ResizerEndpoint string `json:"resizer_endpoint"`

	GrantTTL timex.Duration `json:"grant_ttl"`
}

// parseJson loads configuration values from the JSON file given via the
// -c or -config flags, if any. Invalid files panic: a half-applied config
// is worse than a failed start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)

	config.BlobBaseEndpoint = c.BlobBaseEndpoint
	config.BlobPublicBase = c.BlobPublicBase
	config.BlobToken = c.BlobToken

	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.S3PublicBase = c.S3PublicBase

	config.ICPGatewayEndpoint = c.ICPGatewayEndpoint
	config.CanisterID = c.CanisterID
	config.CapsuleID = c.CapsuleID
	config.IdentitySecret = c.IdentitySecret
	config.IdentitySalt = c.IdentitySalt

	config.ResizerEndpoint = c.ResizerEndpoint

	config.GrantTTL = time.Duration(c.GrantTTL.Duration)
}
