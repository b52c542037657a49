package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopscan/receipts-api/internal/common"
	"github.com/coopscan/receipts-api/internal/entity"
)

// RecordRepository persists validated receipt records. Exists* checks take
// an excludeID so updates can skip the record's own row; pass 0 on create.
type RecordRepository interface {
	Insert(ctx context.Context, rec *entity.Record) (*entity.Record, error)
	GetByID(ctx context.Context, id int64) (*entity.Record, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Record, error)
	Update(ctx context.Context, rec *entity.Record) (*entity.Record, error)
	Delete(ctx context.Context, id int64) error
	ExistsByTransactionRef(ctx context.Context, ref string, excludeID int64) (bool, error)
	ExistsByAccountNumber(ctx context.Context, account string, excludeID int64) (bool, error)
	CountBySignature(ctx context.Context, signatureName string) (int, error)
	ListSignatureNames(ctx context.Context) ([]string, error)
}

type recordRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRecordRepository(pool *pgxpool.Pool, logger *slog.Logger) RecordRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &recordRepository{pool: pool, logger: logger}
}

const recordColumns = `id, transaction_ref, account_number, customer_name, scanner_name,
	company, receipt_date, electricity_bill, amount_due, total_sales, signature_name, created_at`

func scanRecord(row pgx.Row) (*entity.Record, error) {
	var r entity.Record
	err := row.Scan(&r.ID, &r.TransactionRef, &r.AccountNumber, &r.CustomerName,
		&r.ScannerName, &r.Company, &r.Date, &r.ElectricityBill,
		&r.AmountDue, &r.TotalSales, &r.SignatureName, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *recordRepository) Insert(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO ocr_records (transaction_ref, account_number, customer_name,
			scanner_name, company, receipt_date, electricity_bill, amount_due,
			total_sales, signature_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+recordColumns,
		rec.TransactionRef, rec.AccountNumber, rec.CustomerName, rec.ScannerName,
		rec.Company, rec.Date, rec.ElectricityBill, rec.AmountDue, rec.TotalSales,
		rec.SignatureName)
	saved, err := scanRecord(row)
	if err != nil {
		r.logger.Error("record insert failed", "account", rec.AccountNumber, "error", err)
		return nil, mapConstraintError(err)
	}
	return saved, nil
}

func (r *recordRepository) GetByID(ctx context.Context, id int64) (*entity.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM ocr_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError(common.CodeNotFound, "record not found", err)
	}
	return rec, err
}

func (r *recordRepository) List(ctx context.Context, limit, offset int) ([]*entity.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM ocr_records
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		r.logger.Error("record list failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *recordRepository) Update(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE ocr_records SET transaction_ref=$2, account_number=$3,
			customer_name=$4, scanner_name=$5, company=$6, receipt_date=$7,
			electricity_bill=$8, amount_due=$9, total_sales=$10
		WHERE id = $1
		RETURNING `+recordColumns,
		rec.ID, rec.TransactionRef, rec.AccountNumber, rec.CustomerName,
		rec.ScannerName, rec.Company, rec.Date, rec.ElectricityBill,
		rec.AmountDue, rec.TotalSales)
	saved, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError(common.CodeNotFound, "record not found", err)
	}
	if err != nil {
		r.logger.Error("record update failed", "id", rec.ID, "error", err)
		return nil, mapConstraintError(err)
	}
	return saved, nil
}

func (r *recordRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ocr_records WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("record delete failed", "id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError(common.CodeNotFound, "record not found", nil)
	}
	return nil
}

func (r *recordRepository) ExistsByTransactionRef(ctx context.Context, ref string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ocr_records
			WHERE transaction_ref = $1 AND id <> $2
		)`, ref, excludeID).Scan(&exists)
	return exists, err
}

func (r *recordRepository) ExistsByAccountNumber(ctx context.Context, account string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ocr_records
			WHERE upper(replace(account_number, ' ', '')) = upper(replace($1, ' ', ''))
			  AND id <> $2
		)`, account, excludeID).Scan(&exists)
	return exists, err
}

func (r *recordRepository) CountBySignature(ctx context.Context, signatureName string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM ocr_records WHERE signature_name = $1`, signatureName).Scan(&n)
	return n, err
}

func (r *recordRepository) ListSignatureNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT signature_name FROM ocr_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// mapConstraintError translates unique-violation errors from the fallback
// indexes into the same duplicate codes the validation-time checks use.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "transaction_ref"):
		return common.NewAppError(common.CodeDuplicateRef, "transaction reference already exists", err)
	case strings.Contains(pgErr.ConstraintName, "account_number"):
		return common.NewAppError(common.CodeDuplicateAccount, "account number already exists", err)
	default:
		return err
	}
}
