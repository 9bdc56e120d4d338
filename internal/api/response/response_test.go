package response

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

func TestError(t *testing.T) {
	tests := []struct {
		name      string
		err       errors.AppError
		status    int
		message   string
		retryable bool
	}{
		{name: "parse", err: errors.NewParseError("no transactions found", nil), status: http.StatusUnprocessableEntity, message: "no transactions found"},
		{name: "commit is retryable", err: errors.NewCommitError("ledger update failed", nil), status: http.StatusInternalServerError, message: "ledger update failed", retryable: true},
		{name: "source unavailable", err: errors.NewSourceUnavailableError("import again"), status: http.StatusPreconditionFailed, message: "import again"},
		{name: "internal message is generic", err: errors.NewInternalError("dynamodb table gone", nil), status: http.StatusInternalServerError, message: "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			resp := Error(tt.err, "req-1")

			// Assert
			assert.Equal(t, tt.status, resp.StatusCode)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.err.Code, body.Error)
			assert.Equal(t, tt.message, body.ErrorDescription.Message)
			assert.Equal(t, tt.retryable, body.ErrorDescription.Retryable)
			assert.Equal(t, "req-1", body.Metadata.RequestID)
		})
	}
}

func TestSuccessWithPagination(t *testing.T) {
	// Act
	resp := SuccessWithPagination([]string{"a", "b"}, &Pagination{Total: 2}, http.StatusOK, "req-2")

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.JSONEq(t, `{"total":2}`, mustField(t, resp.Body, "pagination"))
}

func mustField(t *testing.T, body, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return string(m[field])
}
