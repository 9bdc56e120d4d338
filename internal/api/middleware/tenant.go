package middleware

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/api/response"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/tenant"
)

// TenantContextKey is the key for the tenant context in the request context
type TenantContextKey string

const (
	// TenantContextKeyValue is the context key for tenant information
	TenantContextKeyValue TenantContextKey = "tenant"

	OrganizationHeader = "X-Organization-Id"
	UserHeader         = "X-User-Id"
)

// TenantMiddleware resolves the organization and operator of a request. The authorizer
// context wins over headers; headers are accepted for trusted internal callers.
type TenantMiddleware struct{}

// NewTenantMiddleware creates a new tenant middleware
func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

// Handle handles the tenant middleware for Lambda functions
func (m *TenantMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *zap.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		tenantCtx := &tenant.TenantContext{
			OrganizationID: authorizerValue(request, "organizationId"),
			UserID:         authorizerValue(request, "userId"),
		}
		if tenantCtx.UserID == "" {
			tenantCtx.UserID = authorizerValue(request, "principalId")
		}
		if tenantCtx.OrganizationID == "" {
			tenantCtx.OrganizationID = header(request, OrganizationHeader)
		}
		if tenantCtx.UserID == "" {
			tenantCtx.UserID = header(request, UserHeader)
		}

		if err := tenantCtx.Validate(); err != nil {
			return response.ErrorFrom(err, request.RequestContext.RequestID), nil
		}

		ctx = context.WithValue(ctx, TenantContextKeyValue, tenantCtx)
		logger = logger.With(
			zap.String("organizationId", tenantCtx.OrganizationID),
			zap.String("userId", tenantCtx.UserID))
		return next(ctx, logger, request)
	}
}

func authorizerValue(request events.APIGatewayProxyRequest, key string) string {
	v, ok := request.RequestContext.Authorizer[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// GetTenantContext gets the tenant context from the request context
func GetTenantContext(ctx context.Context) (*tenant.TenantContext, bool) {
	tenantCtx, ok := ctx.Value(TenantContextKeyValue).(*tenant.TenantContext)
	return tenantCtx, ok
}

// WithTenant stores a tenant context, for callers that bypass the middleware
func WithTenant(ctx context.Context, t *tenant.TenantContext) context.Context {
	return context.WithValue(ctx, TenantContextKeyValue, t)
}
