package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success          bool             `json:"success"`
	Error            string           `json:"error"`
	ErrorDescription ErrorDescription `json:"error_description"`
	Metadata         ResponseMetadata `json:"metadata"`
}

// ErrorDescription represents the error details
type ErrorDescription struct {
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Error creates an error response
func Error(appErr errors.AppError, requestID string) events.APIGatewayProxyResponse {
	statusCode := appErr.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	message := appErr.Message
	details := appErr.Details
	// Internal causes stay in the logs
	if statusCode >= http.StatusInternalServerError && appErr.Code == errors.CodeInternal {
		message = "An unexpected error occurred"
		details = nil
	}

	response := ErrorResponse{
		Success: false,
		Error:   appErr.Code,
		ErrorDescription: ErrorDescription{
			Message:   message,
			Retryable: appErr.Retryable(),
			Details:   details,
		},
		Metadata: ResponseMetadata{
			Version:   "1.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RequestID: requestID,
		},
	}

	body, err := json.Marshal(response)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"success":false,"error":"INTERNAL_ERROR","error_description":{"message":"Failed to marshal error response"}}`,
			Headers:    DefaultHeaders(),
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers:    DefaultHeaders(),
	}
}

// ErrorFrom renders any error, treating anything that is not an AppError as internal
func ErrorFrom(err error, requestID string) events.APIGatewayProxyResponse {
	var appErr errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.NewInternalError("An unexpected error occurred", err)
	}
	return Error(appErr, requestID)
}

// BadRequest creates a bad request error response
func BadRequest(message string, requestID string) events.APIGatewayProxyResponse {
	return Error(errors.NewValidationError(message), requestID)
}

// NotFound creates a not found error response
func NotFound(message string, requestID string) events.APIGatewayProxyResponse {
	return Error(errors.NewNotFoundError(message), requestID)
}

// MethodNotAllowed answers a known path called with the wrong verb
func MethodNotAllowed(method string, requestID string) events.APIGatewayProxyResponse {
	appErr := errors.NewValidationError("method " + method + " is not allowed here")
	appErr.Code = "METHOD_NOT_ALLOWED"
	appErr.StatusCode = http.StatusMethodNotAllowed
	return Error(appErr, requestID)
}
