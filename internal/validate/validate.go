package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coopscan/receipts-api/internal/common"
	"github.com/coopscan/receipts-api/internal/entity"
	"github.com/coopscan/receipts-api/internal/extract"
)

// Policy holds the tunable business rules applied on top of field shape.
type Policy struct {
	MinBillAmount float64
	// DateFrom/DateTo bound acceptable receipt dates when non-zero. Kept as
	// a configurable predicate rather than a hardcoded window.
	DateFrom time.Time
	DateTo   time.Time
}

var reCustomerName = regexp.MustCompile(`^[A-Za-z][A-Za-z\s,\-./']*$`)

const dateLayout = "01/02/2006"

// Record validates and normalizes a candidate submission. All field rules
// are evaluated independently and every violation is collected; any error
// blocks the whole submission.
func Record(in *entity.Submission, pol Policy) (*entity.Record, error) {
	v := common.NewValidator()
	out := &entity.Record{}

	ref := extract.DigitsOnly(in.TransactionRef)
	v.Required("transaction reference", in.TransactionRef)
	if in.TransactionRef != "" {
		v.Checkf(len(ref) >= 15, "transaction reference", "must contain at least 15 digits, got %d", len(ref))
	}
	out.TransactionRef = ref

	date := extract.FormatDate(in.Date)
	v.Required("date", in.Date)
	if in.Date != "" {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			v.Check(false, "date", "must be a recognized date form")
		} else if !withinWindow(parsed, pol) {
			v.Check(false, "date", "is outside the accepted receipt date range")
		}
	}
	out.Date = date

	name := strings.TrimSpace(in.CustomerName)
	v.Required("customer name", name)
	if name != "" {
		v.Check(reCustomerName.MatchString(name), "customer name", "may only contain letters, spaces, commas, hyphens, slashes, periods and apostrophes")
	}
	out.CustomerName = name

	acct := normalizeAccount(in.AccountNumber)
	v.Required("account number", in.AccountNumber)
	if in.AccountNumber != "" {
		digits := strings.TrimPrefix(acct, "B")
		v.Check(len(digits) >= 6 && digits == extract.DigitsOnly(digits), "account number", "must be a letter prefix followed by at least 6 digits")
	}
	out.AccountNumber = acct

	out.ScannerName = strings.TrimSpace(in.ScannerName)
	v.Required("scanner name", out.ScannerName)

	bill, ok := parseAmount(in.ElectricityBill)
	v.Required("electricity bill", in.ElectricityBill)
	if in.ElectricityBill != "" {
		if !ok {
			v.Check(false, "electricity bill", "must be a valid amount")
		} else {
			v.Checkf(bill >= pol.MinBillAmount, "electricity bill", "must be at least %.2f", pol.MinBillAmount)
		}
	}
	out.ElectricityBill = bill

	out.AmountDue = optionalAmount(v, "amount due", in.AmountDue)
	out.TotalSales = optionalAmount(v, "total sales", in.TotalSales)

	out.Company = strings.TrimSpace(in.Company)

	if err := v.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeAccount uppercases and strips all whitespace, the form used for
// duplicate comparison and lock keys.
func NormalizeAccount(s string) string {
	return normalizeAccount(s)
}

func normalizeAccount(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func withinWindow(d time.Time, pol Policy) bool {
	if !pol.DateFrom.IsZero() && d.Before(pol.DateFrom) {
		return false
	}
	if !pol.DateTo.IsZero() && d.After(pol.DateTo) {
		return false
	}
	return true
}

func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func optionalAmount(v *common.Validator, field, s string) *float64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	f, ok := parseAmount(s)
	if !ok {
		v.Check(false, field, "must be a valid amount when provided")
		return nil
	}
	return &f
}
