package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/coopscan/receipts-api/internal/entity"
)

type stubRecords struct {
	recs []*entity.Record
	err  error
}

func (s *stubRecords) List(ctx context.Context, limit, offset int) ([]*entity.Record, error) {
	return s.recs, s.err
}

func (s *stubRecords) Insert(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	panic("not used")
}
func (s *stubRecords) GetByID(ctx context.Context, id int64) (*entity.Record, error) {
	panic("not used")
}
func (s *stubRecords) Update(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	panic("not used")
}
func (s *stubRecords) Delete(ctx context.Context, id int64) error { panic("not used") }
func (s *stubRecords) ExistsByTransactionRef(ctx context.Context, ref string, excludeID int64) (bool, error) {
	panic("not used")
}
func (s *stubRecords) ExistsByAccountNumber(ctx context.Context, account string, excludeID int64) (bool, error) {
	panic("not used")
}
func (s *stubRecords) CountBySignature(ctx context.Context, signatureName string) (int, error) {
	panic("not used")
}
func (s *stubRecords) ListSignatureNames(ctx context.Context) ([]string, error) {
	panic("not used")
}

func TestRecordsXLSX(t *testing.T) {
	due := 1250.50
	stub := &stubRecords{recs: []*entity.Record{
		{
			ID:              1,
			TransactionRef:  "123456789012345",
			AccountNumber:   "B1234567",
			CustomerName:    "Dela Cruz, Juan",
			ScannerName:     "operator one",
			Company:         "Benguet Electric Cooperative Inc",
			Date:            "03/05/2024",
			ElectricityBill: 150,
			AmountDue:       &due,
			SignatureName:   "signature_1_abcdef01.png",
			CreatedAt:       time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		},
	}}

	data, err := NewService(stub, nil).RecordsXLSX(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Records", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Transaction Reference", got)

	got, err = f.GetCellValue("Records", "B2")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345", got)

	got, err = f.GetCellValue("Records", "F2")
	require.NoError(t, err)
	assert.Equal(t, "150.00", got)

	got, err = f.GetCellValue("Records", "G2")
	require.NoError(t, err)
	assert.Equal(t, "1250.50", got)

	// total sales absent, the cell stays empty
	got, err = f.GetCellValue("Records", "H2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecordsXLSX_RepositoryError(t *testing.T) {
	_, err := NewService(&stubRecords{err: assert.AnError}, nil).RecordsXLSX(context.Background(), 0)
	assert.Error(t, err)
}

func TestRecordsXLSX_EmptyStillExports(t *testing.T) {
	data, err := NewService(&stubRecords{}, nil).RecordsXLSX(context.Background(), 0)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Records", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Date", got)
}
