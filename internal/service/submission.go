package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/coopscan/receipts-api/internal/common"
	"github.com/coopscan/receipts-api/internal/entity"
	"github.com/coopscan/receipts-api/internal/repository"
	"github.com/coopscan/receipts-api/internal/signature"
	"github.com/coopscan/receipts-api/internal/validate"
)

// SubmissionService wires validation, duplicate checks, the account lock,
// signature storage and the record store into one submission flow. Errors
// from sub-steps are never swallowed, only annotated.
type SubmissionService struct {
	records    repository.RecordRepository
	locker     repository.AccountLocker
	signatures *signature.Store
	policy     validate.Policy
	lockWait   time.Duration
	logger     *slog.Logger
}

func NewSubmissionService(
	records repository.RecordRepository,
	locker repository.AccountLocker,
	signatures *signature.Store,
	policy validate.Policy,
	lockWait time.Duration,
	logger *slog.Logger,
) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &SubmissionService{
		records:    records,
		locker:     locker,
		signatures: signatures,
		policy:     policy,
		lockWait:   lockWait,
		logger:     logger,
	}
}

// Submit runs the create path: signature shape check, validation, account
// lock, duplicate checks, signature save, insert. Every failure branch
// leaves no partial state behind; in particular, no row is ever inserted
// when the signature failed to save.
func (s *SubmissionService) Submit(ctx context.Context, in *entity.Submission) (*entity.Record, error) {
	if strings.TrimSpace(in.Signature) == "" {
		return nil, common.NewAppError(common.CodeSignatureMissing, "a signature is required to submit a record", nil)
	}
	if _, err := signature.Decode(in.Signature); err != nil {
		return nil, err
	}

	rec, err := validate.Record(in, s.policy)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, repository.LockKey(rec.AccountNumber), s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkDuplicates(ctx, rec, 0); err != nil {
		return nil, err
	}

	sigName, err := s.signatures.Save(ctx, in.Signature)
	if err != nil {
		return nil, err
	}
	rec.SignatureName = sigName

	saved, err := s.records.Insert(ctx, rec)
	if err != nil {
		// The sweep would collect the file eventually; reclaim it now since
		// no record ever referenced it.
		_ = s.signatures.Delete(sigName)
		return nil, err
	}

	s.logger.Info("submission accepted",
		"id", saved.ID,
		"account", saved.AccountNumber,
		"scanner", saved.ScannerName,
		"signature", saved.SignatureName,
	)
	return saved, nil
}

// Update re-validates and re-checks duplicates excluding the record itself.
// The stored signature is kept as-is; updates never replace it.
func (s *SubmissionService) Update(ctx context.Context, id int64, in *entity.Submission) (*entity.Record, error) {
	existing, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, err := validate.Record(in, s.policy)
	if err != nil {
		return nil, err
	}
	rec.ID = id
	rec.SignatureName = existing.SignatureName

	release, err := s.locker.Acquire(ctx, repository.LockKey(rec.AccountNumber), s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkDuplicates(ctx, rec, id); err != nil {
		return nil, err
	}

	saved, err := s.records.Update(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.logger.Info("record updated", "id", saved.ID, "account", saved.AccountNumber)
	return saved, nil
}

// Delete removes the record and its signature file unless another surviving
// record still references the same filename. The reference count is a live
// query against the store, not an in-memory counter.
func (s *SubmissionService) Delete(ctx context.Context, id int64) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}

	refs, err := s.records.CountBySignature(ctx, rec.SignatureName)
	if err != nil {
		s.logger.Warn("signature refcount failed, leaving file for the sweep", "file", rec.SignatureName, "error", err)
		return nil
	}
	if refs == 0 {
		if err := s.signatures.Delete(rec.SignatureName); err != nil {
			s.logger.Warn("signature cleanup failed, leaving file for the sweep", "file", rec.SignatureName, "error", err)
		}
	}
	s.logger.Info("record deleted", "id", id, "signature_refs_left", refs)
	return nil
}

// Exists answers the client's advisory duplicate pre-check. The server
// re-checks unconditionally on submit.
func (s *SubmissionService) Exists(ctx context.Context, transactionRef, accountNumber string) (refExists, accountExists bool, err error) {
	if ref := strings.TrimSpace(transactionRef); ref != "" {
		refExists, err = s.records.ExistsByTransactionRef(ctx, ref, 0)
		if err != nil {
			return false, false, err
		}
	}
	if acct := validate.NormalizeAccount(accountNumber); acct != "" {
		accountExists, err = s.records.ExistsByAccountNumber(ctx, acct, 0)
		if err != nil {
			return false, false, err
		}
	}
	return refExists, accountExists, nil
}

// List returns stored records, newest first.
func (s *SubmissionService) List(ctx context.Context, limit, offset int) ([]*entity.Record, error) {
	return s.records.List(ctx, limit, offset)
}

// Get returns a single record by id.
func (s *SubmissionService) Get(ctx context.Context, id int64) (*entity.Record, error) {
	return s.records.GetByID(ctx, id)
}

// checkDuplicates runs both uniqueness checks inside the account lock.
// Account first, then transaction reference, each a terminal error.
func (s *SubmissionService) checkDuplicates(ctx context.Context, rec *entity.Record, excludeID int64) error {
	dupAcct, err := s.records.ExistsByAccountNumber(ctx, rec.AccountNumber, excludeID)
	if err != nil {
		return common.WrapError(err, "duplicate account check")
	}
	if dupAcct {
		return common.NewAppError(common.CodeDuplicateAccount, "a record for this account number already exists", nil)
	}

	dupRef, err := s.records.ExistsByTransactionRef(ctx, rec.TransactionRef, excludeID)
	if err != nil {
		return common.WrapError(err, "duplicate reference check")
	}
	if dupRef {
		return common.NewAppError(common.CodeDuplicateRef, "a record with this transaction reference already exists", nil)
	}
	return nil
}
