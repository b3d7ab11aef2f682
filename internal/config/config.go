package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by BACKEND.
const (
	BackendMemory     = "memory"
	BackendAppwrite   = "appwrite"
	BackendSelfHosted = "selfhosted"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	LogFormat     string
	ProductName   string
	TimeZone      string
	Backend       string
	RemoteTimeout time.Duration

	// Notification policy: when true, a failed notification is reported to the caller.
	NotifyRequired bool

	// Appwrite-compatible BaaS
	AppwriteEndpoint        string
	AppwriteProjectID       string
	AppwriteAPIKey          string
	AppwriteDatabaseID      string
	AppointmentCollectionID string
	PatientCollectionID     string
	BucketID                string

	// Self-hosted backend
	DatabaseURL              string
	AWSRegion                string
	AWSAccessKeyID           string
	AWSSecretAccessKey       string
	AWSEndpointOverride      string
	S3Bucket                 string
	S3Prefix                 string
	FilesPublicBaseURL       string
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string

	// Email fallback for recipients without a phone number
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Admin view
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	AdminCacheTTL  time.Duration
	AdminJWTSecret string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		ProductName:    getEnv("PRODUCT_NAME", "CarePulse"),
		TimeZone:       getEnv("APP_TIMEZONE", "UTC"),
		Backend:        strings.ToLower(strings.TrimSpace(getEnv("BACKEND", BackendMemory))),
		RemoteTimeout:  getEnvAsDuration("REMOTE_TIMEOUT", 10*time.Second),
		NotifyRequired: getEnvAsBool("NOTIFY_REQUIRED", false),

		AppwriteEndpoint:        getEnv("APPWRITE_ENDPOINT", "https://cloud.appwrite.io/v1"),
		AppwriteProjectID:       getEnv("APPWRITE_PROJECT_ID", ""),
		AppwriteAPIKey:          getEnv("APPWRITE_API_KEY", ""),
		AppwriteDatabaseID:      getEnv("APPWRITE_DATABASE_ID", ""),
		AppointmentCollectionID: getEnv("APPOINTMENT_COLLECTION_ID", "appointments"),
		PatientCollectionID:     getEnv("PATIENT_COLLECTION_ID", "patients"),
		BucketID:                getEnv("BUCKET_ID", "identification"),

		DatabaseURL:              getEnv("DATABASE_URL", ""),
		AWSRegion:                getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:           getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:      getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		S3Bucket:                 getEnv("S3_BUCKET", ""),
		S3Prefix:                 getEnv("S3_PREFIX", "identification"),
		FilesPublicBaseURL:       getEnv("FILES_PUBLIC_BASE_URL", ""),
		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "CarePulse"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		AdminCacheTTL:  getEnvAsDuration("ADMIN_CACHE_TTL", time.Minute),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Location resolves TimeZone. An empty TimeZone is UTC; an unknown one is
// an error.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(c.TimeZone))
	if err != nil {
		return nil, fmt.Errorf("config: APP_TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
