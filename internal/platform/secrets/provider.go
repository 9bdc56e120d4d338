package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-secretsmanager-caching-go/v2/secretcache"
	"go.uber.org/zap"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider reads secret strings from AWS Secrets Manager through a local cache
type Provider struct {
	cache  *secretcache.Cache
	client secretValueGetter
	logger *zap.Logger
}

// NewProvider creates a provider. When the cache cannot be created every read goes to the API.
func NewProvider(client *secretsmanager.Client, logger *zap.Logger) *Provider {
	cache, err := secretcache.New(func(c *secretcache.Cache) {
		c.Client = client
	})
	if err != nil {
		logger.Warn("secret cache unavailable, reading secrets directly", zap.Error(err))
		cache = nil
	}
	return &Provider{cache: cache, client: client, logger: logger}
}

// SecretString returns the trimmed string value of a secret
func (p *Provider) SecretString(ctx context.Context, secretID string) (string, error) {
	var (
		value string
		err   error
	)
	if p.cache != nil {
		value, err = p.cache.GetSecretStringWithContext(ctx, secretID)
	} else {
		var out *secretsmanager.GetSecretValueOutput
		out, err = p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
		if err == nil {
			value = aws.ToString(out.SecretString)
		}
	}

	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", commonErrors.NewNotFoundError("secret not found").WithDetail("secretId", secretID)
		}
		return "", commonErrors.NewInternalError("failed to read secret", err).WithDetail("secretId", secretID)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", commonErrors.NewValidationError("secret is empty").WithDetail("secretId", secretID)
	}
	return value, nil
}
