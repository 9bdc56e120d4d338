package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/common/utils"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// Service provides ledger queries and the two status transitions owned by reconciliation
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new ledger service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// QueryEntries returns the entries of an account with a candidate date in range. Every call reads
// the store: entries move between PENDING and RECONCILED from other instances, and a stale view
// would misclassify them. Store failures are reported as GATEWAY_ERROR.
func (s *Service) QueryEntries(ctx context.Context, req QueryRequest) ([]Entry, error) {
	if err := utils.ValidateTenantID(req.OrganizationID); err != nil {
		return nil, err
	}
	if err := utils.ValidateRequiredString(req.AccountID, "accountId"); err != nil {
		return nil, err
	}
	if err := utils.ValidateDateRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	entries, err := s.repo.QueryEntries(ctx, req)
	if err != nil {
		s.logger.Warn("ledger query failed",
			zap.String("organizationId", req.OrganizationID),
			zap.String("accountId", req.AccountID),
			zap.Error(err))
		return nil, errors.NewGatewayError("failed to fetch ledger entries", err).
			WithDetail("accountId", req.AccountID)
	}
	return entries, nil
}

// Reconcile applies one confirmed pairing to an entry
func (s *Service) Reconcile(ctx context.Context, organizationID string, rec Reconciliation) (*Entry, error) {
	if err := utils.ValidateRequiredString(rec.EntryID, "entryId"); err != nil {
		return nil, err
	}
	if err := utils.ValidateISODate(rec.PaidDate); err != nil {
		return nil, err
	}
	if err := utils.ValidateRequiredString(rec.ExternalTransactionID, "externalTransactionId"); err != nil {
		return nil, err
	}

	entry, err := s.repo.MarkReconciled(ctx, organizationID, rec)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Undo reverts a reconciled entry to PENDING. Undoing a PENDING entry is a no-op.
func (s *Service) Undo(ctx context.Context, organizationID, entryID string) (*Entry, error) {
	if err := utils.ValidateTenantID(organizationID); err != nil {
		return nil, err
	}
	if err := utils.ValidateRequiredString(entryID, "entryId"); err != nil {
		return nil, err
	}

	entry, err := s.repo.GetEntry(ctx, organizationID, entryID)
	if err != nil {
		return nil, err
	}
	if !entry.IsReconciled() {
		return entry, nil
	}

	updated, err := s.repo.MarkPending(ctx, organizationID, entryID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ledger entry reverted to pending",
		zap.String("organizationId", organizationID),
		zap.String("entryId", entryID),
		zap.String("previousExternalTransactionId", entry.ExternalTransactionID))
	return updated, nil
}
