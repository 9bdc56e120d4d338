package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
// This struct contains all configuration parameters for the application
type Config struct {
	// AWS-specific configuration
	AWSRegion         string
	DynamoDBTableName string

	// Environment and region info
	Environment string
	Region      string

	// Statement archive
	ArchiveBucket string

	// Reconciliation session tuning
	SessionTTL           time.Duration
	ConfirmLockTTL       time.Duration
	AssistedMatchTimeout time.Duration
	CandidateAmount      int64 // minor units
	CandidateDays        int

	// Assisted matching; an empty secret id disables it
	GeminiAPIKeySecretID string
	GeminiModel          string

	// Audit export; an empty project disables it
	AuditBigQueryProject string
	AuditBigQueryDataset string
	AuditBigQueryTable   string

	// KMS key that signs audit records; empty leaves them unsigned
	AuditSigningKeyID string

	// Lambda detection flag (cached)
	isLambda bool
}

// LoadFromEnv loads the configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Create a new config object and load values from environment
	cfg := &Config{}

	// Required environment variables
	cfg.DynamoDBTableName = os.Getenv("DYNAMODB_TABLE_NAME")
	if cfg.DynamoDBTableName == "" {
		return nil, errors.New("DYNAMODB_TABLE_NAME environment variable is required")
	}

	cfg.ArchiveBucket = os.Getenv("ARCHIVE_BUCKET")
	if cfg.ArchiveBucket == "" {
		return nil, errors.New("ARCHIVE_BUCKET environment variable is required")
	}

	// Environment and region info
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "dev" // Default to dev environment
	}

	cfg.Region = os.Getenv("REGION")
	if cfg.Region == "" {
		cfg.Region = "jp"
	}

	// AWS Region
	cfg.AWSRegion = os.Getenv("AWS_REGION")
	if cfg.AWSRegion == "" {
		// Default AWS regions based on our region code
		switch cfg.Region {
		case "us":
			cfg.AWSRegion = "us-west-2"
		case "eu":
			cfg.AWSRegion = "eu-west-1"
		case "jp":
			cfg.AWSRegion = "ap-northeast-1"
		default:
			cfg.AWSRegion = "ap-northeast-1" // Default fallback
		}
	}

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ConfirmLockTTL, err = durationEnv("CONFIRM_LOCK_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AssistedMatchTimeout, err = durationEnv("ASSISTED_MATCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	amount, err := intEnv("CANDIDATE_AMOUNT_WINDOW", 1000)
	if err != nil {
		return nil, err
	}
	cfg.CandidateAmount = int64(amount)
	if cfg.CandidateDays, err = intEnv("CANDIDATE_DAY_WINDOW", 5); err != nil {
		return nil, err
	}

	cfg.GeminiAPIKeySecretID = os.Getenv("GEMINI_API_KEY_SECRET_ID")
	cfg.GeminiModel = os.Getenv("GEMINI_MODEL")
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.5-flash"
	}

	cfg.AuditBigQueryProject = os.Getenv("AUDIT_BIGQUERY_PROJECT")
	cfg.AuditBigQueryDataset = os.Getenv("AUDIT_BIGQUERY_DATASET")
	if cfg.AuditBigQueryDataset == "" {
		cfg.AuditBigQueryDataset = "reconciliation"
	}
	cfg.AuditBigQueryTable = os.Getenv("AUDIT_BIGQUERY_TABLE")
	if cfg.AuditBigQueryTable == "" {
		cfg.AuditBigQueryTable = "matched_pairs"
	}

	cfg.AuditSigningKeyID = os.Getenv("AUDIT_SIGNING_KEY_ID")

	// Check if running in Lambda
	cfg.isLambda = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", name, raw)
	}
	return d, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}

// IsLambda returns true if the application is running in AWS Lambda
func (c *Config) IsLambda() bool {
	return c.isLambda
}

// AssistedMatchingEnabled reports whether a Gemini key is configured
func (c *Config) AssistedMatchingEnabled() bool {
	return c.GeminiAPIKeySecretID != ""
}

// AuditSigningEnabled reports whether audit records are signed with KMS
func (c *Config) AuditSigningEnabled() bool {
	return c.AuditSigningKeyID != ""
}

// AuditExportEnabled reports whether audit records are streamed to BigQuery
func (c *Config) AuditExportEnabled() bool {
	return c.AuditBigQueryProject != ""
}
