package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopscan/receipts-api/internal/common"
)

// schemaDDL is idempotent; run at startup. The unique indexes are the
// storage-layer fallback for the validation-time duplicate checks: they
// close the race window should two submissions ever slip past the account
// lock.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS ocr_records (
	id               BIGSERIAL PRIMARY KEY,
	transaction_ref  TEXT NOT NULL,
	account_number   TEXT NOT NULL,
	customer_name    TEXT NOT NULL,
	scanner_name     TEXT NOT NULL,
	company          TEXT NOT NULL DEFAULT '',
	receipt_date     TEXT NOT NULL,
	electricity_bill NUMERIC(14,2) NOT NULL,
	amount_due       NUMERIC(14,2),
	total_sales      NUMERIC(14,2),
	signature_name   TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_ocr_records_transaction_ref
	ON ocr_records (transaction_ref);
CREATE UNIQUE INDEX IF NOT EXISTS ux_ocr_records_account_number
	ON ocr_records (upper(replace(account_number, ' ', '')));
`

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		logger.Error("schema migration failed", "error", err)
		return common.WrapError(err, "apply schema")
	}
	logger.Info("schema migration applied")
	return nil
}
