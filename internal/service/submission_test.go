package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopscan/receipts-api/internal/common"
	"github.com/coopscan/receipts-api/internal/entity"
	"github.com/coopscan/receipts-api/internal/repository"
	"github.com/coopscan/receipts-api/internal/signature"
	"github.com/coopscan/receipts-api/internal/validate"
)

// fakeRecords is an in-memory RecordRepository matching the store's
// comparison semantics: references compared as stored, accounts stored
// pre-normalized by validation.
type fakeRecords struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[int64]*entity.Record
	insertErr error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: make(map[int64]*entity.Record)}
}

func (f *fakeRecords) Insert(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	cp := *rec
	cp.ID = f.nextID
	cp.CreatedAt = time.Now()
	f.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRecords) GetByID(ctx context.Context, id int64) (*entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, common.NewAppError(common.CodeNotFound, "record not found", nil)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRecords) List(ctx context.Context, limit, offset int) ([]*entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Record
	for _, r := range f.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRecords) Update(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[rec.ID]; !ok {
		return nil, common.NewAppError(common.CodeNotFound, "record not found", nil)
	}
	cp := *rec
	f.rows[rec.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRecords) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return common.NewAppError(common.CodeNotFound, "record not found", nil)
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeRecords) ExistsByTransactionRef(ctx context.Context, ref string, excludeID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.rows {
		if id != excludeID && r.TransactionRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecords) ExistsByAccountNumber(ctx context.Context, account string, excludeID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.rows {
		if id != excludeID && r.AccountNumber == account {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecords) CountBySignature(ctx context.Context, signatureName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.SignatureName == signatureName {
			n++
		}
	}
	return n, nil
}

func (f *fakeRecords) ListSignatureNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, r := range f.rows {
		if _, ok := seen[r.SignatureName]; !ok {
			seen[r.SignatureName] = struct{}{}
			out = append(out, r.SignatureName)
		}
	}
	return out, nil
}

var _ repository.RecordRepository = (*fakeRecords)(nil)

func testDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake png bytes"))
}

func testSubmission(ref, account string) *entity.Submission {
	return &entity.Submission{
		TransactionRef:  ref,
		AccountNumber:   account,
		CustomerName:    "Dela Cruz, Juan",
		ScannerName:     "operator one",
		Company:         "Benguet Electric Cooperative Inc",
		Date:            "03/05/2024",
		ElectricityBill: "150.00",
		Signature:       testDataURL(),
	}
}

type fixture struct {
	svc     *SubmissionService
	records *fakeRecords
	store   *signature.Store
	dir     string
	locker  *repository.KeyedMutexLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	records := newFakeRecords()
	store := signature.NewStore(dir, time.Second, nil)
	locker := repository.NewKeyedMutexLocker()
	svc := NewSubmissionService(records, locker, store, validate.Policy{MinBillAmount: 50}, 2*time.Second, nil)
	return &fixture{svc: svc, records: records, store: store, dir: dir, locker: locker}
}

func (f *fixture) fileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	return len(entries)
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Submit(ctx, testSubmission("123456789012345", "B1234567"))
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, "B1234567", rec.AccountNumber)
	assert.True(t, signature.ValidName(rec.SignatureName))
	assert.Equal(t, 1, f.fileCount(t))
}

func TestSubmit_SignatureRequired(t *testing.T) {
	f := newFixture(t)
	in := testSubmission("123456789012345", "B1234567")
	in.Signature = "   "

	_, err := f.svc.Submit(context.Background(), in)
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeSignatureMissing, ae.Code)
}

func TestSubmit_SignatureFormatCheckedBeforeStorage(t *testing.T) {
	f := newFixture(t)
	in := testSubmission("123456789012345", "B1234567")
	in.Signature = "data:image/jpeg;base64,AAAA"

	_, err := f.svc.Submit(context.Background(), in)
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeSignatureFormat, ae.Code)
	assert.Equal(t, 0, f.fileCount(t))
}

func TestSubmit_DuplicateAccountIgnoresCaseAndSpacing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, testSubmission("123456789012345", "B1234567"))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, testSubmission("999999999999999", " b 123 4567 "))
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeDuplicateAccount, ae.Code)

	// the rejected submission must not leave a signature file behind
	assert.Equal(t, 1, f.fileCount(t))
}

func TestSubmit_DuplicateTransactionRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, testSubmission("123456789012345", "B1234567"))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, testSubmission("123456789012345", "B7654321"))
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeDuplicateRef, ae.Code)
}

func TestSubmit_LockTimeout(t *testing.T) {
	dir := t.TempDir()
	records := newFakeRecords()
	store := signature.NewStore(dir, time.Second, nil)
	locker := repository.NewKeyedMutexLocker()
	svc := NewSubmissionService(records, locker, store, validate.Policy{MinBillAmount: 50}, 100*time.Millisecond, nil)

	// hold the account lock so the submission's bounded wait elapses
	release, err := locker.Acquire(context.Background(), repository.LockKey("B1234567"), time.Second)
	require.NoError(t, err)
	defer release()

	_, err = svc.Submit(context.Background(), testSubmission("123456789012345", "B1234567"))
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeLockTimeout, ae.Code)
	assert.Empty(t, records.rows)
}

func TestSubmit_SignatureSaveFailureInsertsNothing(t *testing.T) {
	// a regular file where the signature directory should be makes every
	// save attempt fail
	base := t.TempDir()
	blocker := filepath.Join(base, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o664))

	records := newFakeRecords()
	store := signature.NewStore(blocker, time.Second, nil)
	svc := NewSubmissionService(records, repository.NewKeyedMutexLocker(), store, validate.Policy{MinBillAmount: 50}, time.Second, nil)

	_, err := svc.Submit(context.Background(), testSubmission("123456789012345", "B1234567"))
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeSignatureSave, ae.Code)
	assert.Empty(t, records.rows)
}

func TestSubmit_InsertFailureReclaimsSignatureFile(t *testing.T) {
	f := newFixture(t)
	f.records.insertErr = assert.AnError

	_, err := f.svc.Submit(context.Background(), testSubmission("123456789012345", "B1234567"))
	require.Error(t, err)
	assert.Equal(t, 0, f.fileCount(t))
}

func TestSubmit_ConcurrentSameAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := fmt.Sprintf("%015d", 100000000000000+i)
			_, errs[i] = f.svc.Submit(ctx, testSubmission(ref, "B1234567"))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		ae, ok := common.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, common.CodeDuplicateAccount, ae.Code)
	}
	assert.Equal(t, 1, successes)
	assert.Len(t, f.records.rows, 1)
	assert.Equal(t, 1, f.fileCount(t))
}

func TestUpdate_ExcludesOwnRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Submit(ctx, testSubmission("123456789012345", "B1234567"))
	require.NoError(t, err)

	// same ref and account, only the name changes; must not read as a
	// duplicate of itself
	in := testSubmission("123456789012345", "B1234567")
	in.CustomerName = "Santos, Maria"
	in.Signature = ""

	updated, err := f.svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Santos, Maria", updated.CustomerName)
	assert.Equal(t, created.SignatureName, updated.SignatureName)
}

func TestUpdate_DuplicateAgainstOtherRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, testSubmission("123456789012345", "B1234567"))
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, testSubmission("999999999999999", "B7654321"))
	require.NoError(t, err)

	in := testSubmission("999999999999999", "B1234567")
	_, err = f.svc.Update(ctx, second.ID, in)
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeDuplicateAccount, ae.Code)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), 404, testSubmission("123456789012345", "B1234567"))
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeNotFound, ae.Code)
}

func TestDelete_RemovesUnreferencedSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Submit(ctx, testSubmission("123456789012345", "B1234567"))
	require.NoError(t, err)
	require.Equal(t, 1, f.fileCount(t))

	require.NoError(t, f.svc.Delete(ctx, rec.ID))
	assert.Equal(t, 0, f.fileCount(t))
	assert.Empty(t, f.records.rows)
}

func TestDelete_KeepsSignatureWhileStillReferenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	name, err := f.store.Save(ctx, testDataURL())
	require.NoError(t, err)

	// two records sharing one signature file
	a, err := f.records.Insert(ctx, &entity.Record{
		TransactionRef: "123456789012345", AccountNumber: "B1234567",
		CustomerName: "A", ScannerName: "s", Date: "03/05/2024",
		ElectricityBill: 150, SignatureName: name,
	})
	require.NoError(t, err)
	b, err := f.records.Insert(ctx, &entity.Record{
		TransactionRef: "999999999999999", AccountNumber: "B7654321",
		CustomerName: "B", ScannerName: "s", Date: "03/05/2024",
		ElectricityBill: 150, SignatureName: name,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, a.ID))
	assert.Equal(t, 1, f.fileCount(t), "file still referenced by the second record")

	require.NoError(t, f.svc.Delete(ctx, b.ID))
	assert.Equal(t, 0, f.fileCount(t))
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Delete(context.Background(), 404)
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeNotFound, ae.Code)
}

func TestExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, testSubmission("123456789012345", "B1234567"))
	require.NoError(t, err)

	refHit, acctHit, err := f.svc.Exists(ctx, "123456789012345", " b 123 4567 ")
	require.NoError(t, err)
	assert.True(t, refHit)
	assert.True(t, acctHit)

	refHit, acctHit, err = f.svc.Exists(ctx, "999999999999999", "B0000000")
	require.NoError(t, err)
	assert.False(t, refHit)
	assert.False(t, acctHit)

	refHit, acctHit, err = f.svc.Exists(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, refHit)
	assert.False(t, acctHit)
}
