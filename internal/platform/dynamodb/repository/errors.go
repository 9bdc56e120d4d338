package repository

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/smithy-go"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// storeError wraps a DynamoDB failure, keeping the service error code for diagnosis
func storeError(message string, err error) commonErrors.AppError {
	appErr := commonErrors.NewInternalError(message, err)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		appErr = appErr.WithDetail("awsErrorCode", apiErr.ErrorCode())
	}
	return appErr
}

// Items are encoded with the json tags the domain types already carry
func withJSONTags(o *attributevalue.EncoderOptions) { o.TagKey = "json" }

func withJSONTagsDecode(o *attributevalue.DecoderOptions) { o.TagKey = "json" }
