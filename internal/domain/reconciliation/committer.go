package reconciliation

import (
	"context"
	stderrors "errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// Confirm commits every tentative match of the session: archive the source, reconcile each
// ledger entry, store one audit record, then clear the session.
//
// A failure after the archive leaves already reconciled entries in place and returns a
// retryable COMMIT_ERROR. Repeating Confirm is safe: entry updates accept an entry already
// reconciled by the same transaction and the audit id reserved on the session is reused.
func (s *Service) Confirm(ctx context.Context, key SessionKey) (*AuditRecord, error) {
	session, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(session.Matches) == 0 {
		return nil, errors.NewValidationError("there are no matches to confirm")
	}
	if !session.SourceAvailable() {
		return nil, errors.NewSourceUnavailableError("the original statement is no longer available; import it again")
	}

	if err := s.acquireConfirmLock(ctx, session); err != nil {
		return nil, err
	}

	logger := s.logger.With(
		zap.String("organizationId", key.OrganizationID),
		zap.String("accountId", key.AccountID),
		zap.String("auditId", session.AuditID))

	// 1. archive
	objectPath := ArchivePath(key, s.now(), session.Source.FileName)
	sourceRef, err := s.archiver.Archive(ctx, objectPath, session.Source.Data, session.Source.ContentType)
	if err != nil {
		s.releaseConfirmLock(ctx, session, logger)
		return nil, errors.NewCommitError("failed to archive the statement source", err).
			WithDetail("objectPath", objectPath)
	}

	// 2. ledger updates
	txns := statement.Index(session.StatementTransactions)
	for _, m := range session.Matches {
		txn := txns[m.StatementTransactionID]
		for _, entryID := range m.LedgerEntryIDs {
			rec := ledger.Reconciliation{
				EntryID:               entryID,
				PaidDate:              txn.Date,
				ExternalTransactionID: txn.ID,
			}
			if !m.IsAggregate() {
				amount := txn.Amount
				rec.Amount = &amount
			}
			if _, err := s.ledger.Reconcile(ctx, key.OrganizationID, rec); err != nil {
				logger.Error("ledger update failed during confirmation",
					zap.String("ledgerEntryId", entryID),
					zap.String("statementTransactionId", txn.ID),
					zap.Error(err))
				s.releaseConfirmLock(ctx, session, logger)
				return nil, errors.NewCommitError("failed to reconcile ledger entry "+entryID, err).
					WithDetail("ledgerEntryId", entryID).
					WithDetail("statementTransactionId", txn.ID).
					WithDetail("sourceFileReference", sourceRef)
			}
		}
	}

	// 3. audit
	record := newAuditRecord(session, sourceRef, s.now())
	if s.signer != nil {
		if err := s.sign(ctx, record); err != nil {
			s.releaseConfirmLock(ctx, session, logger)
			return nil, errors.NewCommitError("failed to sign the audit record", err).
				WithDetail("sourceFileReference", sourceRef)
		}
	}
	if err := s.audits.Create(ctx, record); err != nil {
		if !stderrors.Is(err, errors.ErrConflict) {
			s.releaseConfirmLock(ctx, session, logger)
			return nil, errors.NewCommitError("failed to write the audit record", err).
				WithDetail("sourceFileReference", sourceRef)
		}
		logger.Info("audit record already stored by an earlier attempt")
	}
	if s.sink != nil {
		if err := s.sink.Export(ctx, record); err != nil {
			logger.Warn("audit export failed", zap.Error(err))
		}
	}

	// 4. clear
	if err := s.store.Delete(ctx, key); err != nil {
		logger.Warn("failed to clear confirmed session", zap.Error(err))
	}

	logger.Info("reconciliation confirmed",
		zap.Int("matches", len(session.Matches)),
		zap.Int("pairs", len(record.MatchedPairs)),
		zap.String("sourceFileReference", sourceRef))

	return record, nil
}

func (s *Service) sign(ctx context.Context, record *AuditRecord) error {
	digest, err := record.Digest()
	if err != nil {
		return err
	}
	signature, err := s.signer.Sign(ctx, digest)
	if err != nil {
		return err
	}
	record.Signature = signature
	record.SignatureKeyID = s.signer.KeyID()
	return nil
}

// acquireConfirmLock marks the session as confirming through a version-checked save, so only
// one caller proceeds. A marker older than the lock TTL is ignored.
func (s *Service) acquireConfirmLock(ctx context.Context, session *Session) error {
	if s.confirming(session) {
		return errors.NewConflictError("a confirmation is already in progress for this session").
			WithDetail("confirmingSince", session.ConfirmingSince.UTC())
	}

	if session.AuditID == "" {
		session.AuditID = ulid.Make().String()
	}
	now := s.now()
	session.ConfirmingSince = &now
	if err := s.save(ctx, session); err != nil {
		if stderrors.Is(err, errors.ErrConflict) {
			return errors.NewConflictError("a confirmation is already in progress for this session")
		}
		return err
	}
	return nil
}

func (s *Service) releaseConfirmLock(ctx context.Context, session *Session, logger *zap.Logger) {
	session.ConfirmingSince = nil
	if err := s.save(context.WithoutCancel(ctx), session); err != nil {
		logger.Warn("failed to release confirmation marker", zap.Error(err))
	}
}
