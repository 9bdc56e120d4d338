package tenant

import (
	"github.com/hirosato/go-bank-reconciliation/internal/common/utils"
)

// TenantContext identifies the organization and operator a request acts for
type TenantContext struct {
	OrganizationID string
	UserID         string
}

// Validate checks both identifiers
func (t TenantContext) Validate() error {
	if err := utils.ValidateTenantID(t.OrganizationID); err != nil {
		return err
	}
	return utils.ValidateIdentifier(t.UserID, "userId")
}
