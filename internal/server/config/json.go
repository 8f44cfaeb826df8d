package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/boardcontext/internal/flagx"
	"github.com/dmitrijs2005/boardcontext/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Pointer fields
// distinguish "absent" from "zero" so a partial file only overrides what it
// names.
type JsonConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http"`
	DatabaseDSN           *string         `json:"database_dsn"`
	ClientSecret          *string         `json:"client_secret"`
	SigningSecret         *string         `json:"signing_secret"`
	EncryptionSecret      *string         `json:"encryption_secret"`
	OAuthClientID         *string         `json:"oauth_client_id"`
	OAuthRedirectURL      *string         `json:"oauth_redirect_url"`
	OAuthAuthURL          *string         `json:"oauth_auth_url"`
	OAuthTokenURL         *string         `json:"oauth_token_url"`
	PlatformAPIURL        *string         `json:"platform_api_url"`
	S3RootUser            *string         `json:"s3_root_user"`
	S3RootPassword        *string         `json:"s3_root_password"`
	S3Bucket              *string         `json:"s3_bucket"`
	S3Region              *string         `json:"s3_region"`
	S3BaseEndpoint        *string         `json:"s3_base_endpoint"`
	PresignTTL            *timex.Duration `json:"presign_ttl"`
	RedisAddr             *string         `json:"redis_addr"`
	RateLimitPerMinute    *int            `json:"rate_limit_per_minute"`
	CORSAllowedOrigins    *string         `json:"cors_allowed_origins"`
	SnapshotSchedule      *string         `json:"snapshot_schedule"`
	RecoveryPurgeSchedule *string         `json:"recovery_purge_schedule"`
	SchedulerEnabled      *bool           `json:"scheduler_enabled"`
	LogLevel              *string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Nothing happens when the flag is absent. An unreadable file or invalid JSON
// panics: a half-applied configuration is worse than not starting.
func parseJson(config *Config, osArgs []string) {
	path := flagx.JsonConfigFlags(osArgs)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.ClientSecret, c.ClientSecret)
	setString(&config.SigningSecret, c.SigningSecret)
	setString(&config.EncryptionSecret, c.EncryptionSecret)
	setString(&config.OAuthClientID, c.OAuthClientID)
	setString(&config.OAuthRedirectURL, c.OAuthRedirectURL)
	setString(&config.OAuthAuthURL, c.OAuthAuthURL)
	setString(&config.OAuthTokenURL, c.OAuthTokenURL)
	setString(&config.PlatformAPIURL, c.PlatformAPIURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.PresignTTL != nil {
		config.PresignTTL = c.PresignTTL.Duration
	}
	setString(&config.RedisAddr, c.RedisAddr)
	if c.RateLimitPerMinute != nil {
		config.RateLimitPerMinute = *c.RateLimitPerMinute
	}
	setString(&config.CORSAllowedOrigins, c.CORSAllowedOrigins)
	setString(&config.SnapshotSchedule, c.SnapshotSchedule)
	setString(&config.RecoveryPurgeSchedule, c.RecoveryPurgeSchedule)
	if c.SchedulerEnabled != nil {
		config.SchedulerEnabled = *c.SchedulerEnabled
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
