package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/flagx"
)

var knownFlags = []string{
	"-a", "-d", "-client-secret", "-signing-secret", "-encryption-secret",
	"-oauth-client-id", "-oauth-redirect-url", "-api-url",
	"-u", "-p", "-b", "-g", "-e", "-t", "-redis", "-rate-limit", "-cors",
	"-scheduler", "-log-level",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string                  HTTP bind address (e.g., ":8080")
//	-d string                  PostgreSQL DSN
//	-client-secret string      platform client secret (session tokens)
//	-signing-secret string     platform signing secret (webhooks)
//	-encryption-secret string  secret for sealing tenant credentials
//	-oauth-client-id string    OAuth client id
//	-oauth-redirect-url string OAuth redirect URL
//	-api-url string            platform GraphQL endpoint
//	-u / -p / -b / -g / -e     S3 user, password, bucket, region, base endpoint
//	-t int                     presigned URL validity, minutes
//	-redis string              Redis address for shared rate limiting
//	-rate-limit int            requests per client and route per minute
//	-cors string               comma-separated allowed origins
//	-scheduler bool            run snapshot and recovery sweeps
//	-log-level string          log level
//
// Only recognised flags are parsed (see flagx.FilterArgs), so the -c/-config
// flag handled by parseJson does not collide with these.
func parseFlags(config *Config, osArgs []string) {
	args := flagx.FilterArgs(osArgs, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.ClientSecret, "client-secret", config.ClientSecret, "platform client secret")
	fs.StringVar(&config.SigningSecret, "signing-secret", config.SigningSecret, "platform signing secret")
	fs.StringVar(&config.EncryptionSecret, "encryption-secret", config.EncryptionSecret, "credential encryption secret")
	fs.StringVar(&config.OAuthClientID, "oauth-client-id", config.OAuthClientID, "OAuth client id")
	fs.StringVar(&config.OAuthRedirectURL, "oauth-redirect-url", config.OAuthRedirectURL, "OAuth redirect URL")
	fs.StringVar(&config.PlatformAPIURL, "api-url", config.PlatformAPIURL, "platform API URL")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	presignTTL := fs.Int("t", int(config.PresignTTL.Minutes()), "presigned URL validity (in minutes)")

	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address for rate limiting")
	fs.IntVar(&config.RateLimitPerMinute, "rate-limit", config.RateLimitPerMinute, "requests per minute per client and route")
	fs.StringVar(&config.CORSAllowedOrigins, "cors", config.CORSAllowedOrigins, "allowed CORS origins")
	fs.BoolVar(&config.SchedulerEnabled, "scheduler", config.SchedulerEnabled, "run scheduled sweeps")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.PresignTTL = time.Duration(*presignTTL) * time.Minute
}
