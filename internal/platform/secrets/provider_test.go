package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

type fakeSecrets struct {
	values map[string]string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f.values[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret.")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestProvider_SecretString(t *testing.T) {
	// Setup
	p := &Provider{
		client: &fakeSecrets{values: map[string]string{
			"gemini/api-key": " key-123\n",
			"blank":          "  ",
		}},
		logger: zap.NewNop(),
	}

	t.Run("trims the value", func(t *testing.T) {
		// Act
		v, err := p.SecretString(context.Background(), "gemini/api-key")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "key-123", v)
	})

	t.Run("missing secret", func(t *testing.T) {
		// Act
		_, err := p.SecretString(context.Background(), "nope")

		// Assert
		assert.True(t, errors.Is(err, commonErrors.ErrNotFound))
	})

	t.Run("blank secret", func(t *testing.T) {
		// Act
		_, err := p.SecretString(context.Background(), "blank")

		// Assert
		assert.True(t, errors.Is(err, commonErrors.ErrValidation))
	})
}
