package extract

import (
	"regexp"
	"strings"
)

// Field names produced by the extractor.
const (
	FieldTransactionRef  = "transaction_ref"
	FieldAccountNumber   = "account_number"
	FieldCustomerName    = "customer_name"
	FieldCompany         = "company"
	FieldDate            = "date"
	FieldElectricityBill = "electricity_bill"
	FieldAmountDue       = "amount_due"
)

// Fields is a partial record: field name -> extracted string. Absent fields
// are simply omitted.
type Fields map[string]string

// Config holds extraction policy knobs.
type Config struct {
	// RefNoiseThreshold is the digit count past which a transaction
	// reference is treated as carrying trailing OCR garbage.
	RefNoiseThreshold int
	// RefTruncateTo is the digit count kept when the threshold is exceeded.
	RefTruncateTo int
	// CoopLegalName is matched literally (case-insensitive) for the company
	// field before the generic fallback shape.
	CoopLegalName string
}

// Extractor turns raw recognized text into a partial record. Pure: the same
// input always extracts to the same fields.
type Extractor struct {
	cfg        Config
	reCoopName *regexp.Regexp
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.RefNoiseThreshold <= 0 {
		cfg.RefNoiseThreshold = 20
	}
	if cfg.RefTruncateTo <= 0 {
		cfg.RefTruncateTo = 15
	}
	if cfg.CoopLegalName == "" {
		cfg.CoopLegalName = "BENGUET ELECTRIC COOPERATIVE INC"
	}
	e := &Extractor{cfg: cfg}
	e.reCoopName = regexp.MustCompile(`(?i)` + strings.Join(strings.Fields(regexp.QuoteMeta(cfg.CoopLegalName)), `[\s.,]+`))
	return e
}

// Confusable run: digits plus glyphs OCR confuses with digits, with stray
// dots and inner spaces tolerated.
var (
	reTransRef = regexp.MustCompile(`(?i)(?:trans\w*|ref\w*)(?:\s*(?:no|number)\.?)?[\s:.#-]*([0-9OoIlZzSsB.]{15,})`)

	// Account followed by slash and an uppercase name run on the same line.
	reAcctWithName = regexp.MustCompile(`[B8]([0-9OoIlZzSs]{6,})\s*/\s*([A-Z][A-Z ,.\-']*)`)
	// Bare account fallback, long digit run only.
	reAcctBare = regexp.MustCompile(`\bB([0-9OoIlZzSs]{12,})\b`)

	reBillAmount = regexp.MustCompile(`(?i)(?:electric(?:ity)?\s*bill|electricity|bill\s*amount|bill)[\s:]*(?:PHP|Php|P|₱)?\s*([0-9Oo][0-9Oo,]*(?:\.\d{1,2})?)`)
	reAmountDue  = regexp.MustCompile(`(?i)amount\s+due[\s:]*(?:PHP|Php|P|₱)?\s*([0-9Oo][0-9Oo,]*(?:\.\d{1,2})?)`)

	reCompanyShape = regexp.MustCompile(`(?i)\b([A-Z][A-Za-z]*(?:\s+[A-Za-z]+)*\s+ELECTRIC(?:\s+[A-Za-z]+)*\s+INC)\b`)

	reDateLongForm = regexp.MustCompile(`(?i)\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+\d{1,2}\s*,?\s*\d{4}\b`)
)

// Extract runs every field's rule chain against the raw text. Rules per
// field are independent, first match wins, no cross-field backtracking.
func (e *Extractor) Extract(raw string) Fields {
	out := Fields{}

	if ref, ok := e.extractTransactionRef(raw); ok {
		out[FieldTransactionRef] = ref
	}
	if acct, name, ok := extractAccount(raw); ok {
		out[FieldAccountNumber] = acct
		if name != "" {
			out[FieldCustomerName] = name
		}
	}
	if date, ok := extractDate(raw); ok {
		out[FieldDate] = date
	}
	e.extractAmounts(raw, out)
	if company, ok := e.extractCompany(raw); ok {
		out[FieldCompany] = company
	}
	return out
}

func (e *Extractor) extractTransactionRef(raw string) (string, bool) {
	g := reTransRef.FindStringSubmatch(raw)
	if g == nil {
		return "", false
	}
	digits := DigitsOnly(CorrectDigits(g[1]))
	if len(digits) < 15 {
		return "", false
	}
	// Runs past the noise threshold carry trailing OCR garbage; keep the
	// leading digits. Deliberate tolerance, tunable via config.
	if len(digits) > e.cfg.RefNoiseThreshold {
		digits = digits[:e.cfg.RefTruncateTo]
	}
	return digits, true
}

func extractAccount(raw string) (account, name string, ok bool) {
	if g := reAcctWithName.FindStringSubmatch(raw); g != nil {
		digits := DigitsOnly(CorrectDigits(g[1]))
		if len(digits) >= 6 {
			name = strings.TrimSpace(g[2])
			return "B" + digits, name, true
		}
	}
	if g := reAcctBare.FindStringSubmatch(raw); g != nil {
		digits := DigitsOnly(CorrectDigits(g[1]))
		if len(digits) >= 12 {
			return "B" + digits, "", true
		}
	}
	return "", "", false
}

func extractDate(raw string) (string, bool) {
	if m := reDateLongForm.FindString(raw); m != "" {
		return FormatDate(m), true
	}
	if m := reDateShort.FindString(raw); m != "" {
		return FormatDate(m), true
	}
	return "", false
}

func (e *Extractor) extractAmounts(raw string, out Fields) {
	var due string
	if g := reAmountDue.FindStringSubmatch(raw); g != nil {
		due = NormalizeAmount(CorrectDigits(g[1]))
		if due != "" {
			out[FieldAmountDue] = due
		}
	}
	if g := reBillAmount.FindStringSubmatch(raw); g != nil {
		if v := NormalizeAmount(CorrectDigits(g[1])); v != "" {
			out[FieldElectricityBill] = v
			return
		}
	}
	// The amount-due value backfills the bill field when the bill label is
	// missing from the scan.
	if due != "" {
		out[FieldElectricityBill] = due
	}
}

func (e *Extractor) extractCompany(raw string) (string, bool) {
	if m := e.reCoopName.FindString(raw); m != "" {
		return e.cfg.CoopLegalName, true
	}
	if g := reCompanyShape.FindStringSubmatch(raw); g != nil {
		return strings.ToUpper(strings.Join(strings.Fields(g[1]), " ")), true
	}
	return "", false
}
