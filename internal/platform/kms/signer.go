package kms

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

type signAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// Signer signs audit record digests with an asymmetric KMS key. The private key never
// leaves KMS; verifiers fetch the public key with kms:GetPublicKey.
type Signer struct {
	client    signAPI
	keyID     string
	algorithm types.SigningAlgorithmSpec
	logger    *zap.Logger
}

// NewSigner creates a signer for an ECC_NIST_P256 key
func NewSigner(client *kms.Client, keyID string, logger *zap.Logger) *Signer {
	return &Signer{
		client:    client,
		keyID:     keyID,
		algorithm: types.SigningAlgorithmSpecEcdsaSha256,
		logger:    logger,
	}
}

// KeyID returns the key recorded next to each signature
func (s *Signer) KeyID() string {
	return s.keyID
}

// Sign signs a SHA-256 digest and returns the base64 DER signature
func (s *Signer) Sign(ctx context.Context, digest []byte) (string, error) {
	if len(digest) != 32 {
		return "", errors.NewValidationError("audit digest must be a SHA-256 sum")
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: s.algorithm,
	})
	if err != nil {
		s.logger.Error("kms sign failed", zap.String("keyId", s.keyID), zap.Error(err))
		return "", errors.NewInternalError("failed to sign audit record", err)
	}

	return base64.StdEncoding.EncodeToString(out.Signature), nil
}
