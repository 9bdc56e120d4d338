package middleware

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CorrelationHeader carries the id that ties log lines of one request together
const CorrelationHeader = "X-Correlation-Id"

// LoggingMiddleware is a middleware for logging requests and responses
type LoggingMiddleware struct{}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware() LoggingMiddleware {
	return LoggingMiddleware{}
}

// Handle handles the logging middleware
func (m LoggingMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *zap.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		startTime := time.Now()

		correlationID := header(request, CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		logger = logger.With(
			zap.String("correlationId", correlationID),
			zap.String("requestId", request.RequestContext.RequestID))

		logRequest(request, logger)

		response, err := next(ctx, logger, request)

		logResponse(response, err, time.Since(startTime), logger)

		if response.Headers != nil {
			response.Headers[CorrelationHeader] = correlationID
		}
		return response, err
	}
}

// logRequest logs the request. Bodies carry bank statements and are never logged.
func logRequest(request events.APIGatewayProxyRequest, logger *zap.Logger) {
	logger.Info("REQUEST",
		zap.String("method", request.HTTPMethod),
		zap.String("path", request.Path),
		zap.Any("queryParameters", request.QueryStringParameters),
		zap.Any("headers", maskSensitiveHeaders(request.Headers)),
		zap.Int("bodyBytes", len(request.Body)))
}

// logResponse logs the response
func logResponse(response events.APIGatewayProxyResponse, err error, duration time.Duration, logger *zap.Logger) {
	if err != nil {
		logger.Error("ERROR", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", duration),
	}
	if response.StatusCode >= 400 {
		fields = append(fields, zap.String("body", response.Body))
	}
	logger.Info("RESPONSE", fields...)
}

// maskSensitiveHeaders masks sensitive headers
func maskSensitiveHeaders(headers map[string]string) map[string]string {
	// Create a copy of the headers
	maskedHeaders := make(map[string]string, len(headers))
	for k, v := range headers {
		maskedHeaders[k] = v
	}

	// List of headers to mask
	sensitiveHeaders := []string{
		"Authorization",
		"X-Api-Key",
		"Cookie",
	}

	for k := range maskedHeaders {
		for _, header := range sensitiveHeaders {
			if equalFold(k, header) {
				maskedHeaders[k] = "***"
			}
		}
	}

	return maskedHeaders
}
