package middleware

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/api/response"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// RecoveryMiddleware is a middleware for recovering from panics
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new recovery middleware
func NewRecoveryMiddleware() RecoveryMiddleware {
	return RecoveryMiddleware{}
}

// Handle turns panics and returned errors into error responses
func (m RecoveryMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *zap.Logger, request events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("PANIC",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				resp = response.Error(
					errors.NewInternalError("An unexpected error occurred", fmt.Errorf("panic: %v", r)),
					request.RequestContext.RequestID)
				err = nil
			}
		}()

		resp, err = next(ctx, logger, request)
		if err == nil {
			return resp, nil
		}

		// Convert the error to an AppError if it's not already
		var appErr errors.AppError
		if !stderrors.As(err, &appErr) {
			appErr = errors.NewInternalError("An unexpected error occurred", err)
		}
		if appErr.StatusCode >= 500 {
			logger.Error("request failed", zap.String("code", appErr.Code), zap.Error(err))
		} else {
			logger.Info("request rejected", zap.String("code", appErr.Code), zap.String("message", appErr.Message))
		}
		return response.Error(appErr, request.RequestContext.RequestID), nil
	}
}
