package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/coopscan/receipts-api/internal/entity"
)

// buildSubmissionSchema constrains the shape of the inbound payload: string
// fields must be strings, amount fields may arrive as strings or numbers.
// Requiredness is deliberately left to the record validator so the operator
// gets the full business-rule error list in one round trip.
func buildSubmissionSchema() map[string]any {
	str := map[string]any{"type": "string"}
	amount := map[string]any{"type": []string{"string", "number"}}

	props := map[string]any{}
	for _, k := range []string{
		"transaction_ref", "transactionRef",
		"account_number", "accountNumber",
		"customer_name", "customerName",
		"scanner_name", "scannerName",
		"company", "date", "signature",
	} {
		props[k] = str
	}
	for _, k := range []string{
		"electricity_bill", "electricityBill",
		"amount_due", "amountDue",
		"total_sales", "totalSales",
	} {
		props[k] = amount
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

var submissionSchema = mustCompileSchema(buildSubmissionSchema())

func mustCompileSchema(schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("submission.json", bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add schema: %v", err))
	}
	schema, err := compiler.Compile("submission.json")
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

// decodeSubmission validates the raw payload against the schema and coerces
// it into the canonical Submission: both snake_case and camelCase keys are
// accepted, numbers are stringified.
func decodeSubmission(raw []byte) (*entity.Submission, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if err := submissionSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("payload does not match the expected shape: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	pick := func(keys ...string) string {
		for _, k := range keys {
			if raw, ok := m[k]; ok {
				switch t := raw.(type) {
				case string:
					return t
				case float64:
					return strconv.FormatFloat(t, 'f', -1, 64)
				}
			}
		}
		return ""
	}

	return &entity.Submission{
		TransactionRef:  pick("transaction_ref", "transactionRef"),
		AccountNumber:   pick("account_number", "accountNumber"),
		CustomerName:    pick("customer_name", "customerName"),
		ScannerName:     pick("scanner_name", "scannerName"),
		Company:         pick("company"),
		Date:            pick("date"),
		ElectricityBill: pick("electricity_bill", "electricityBill"),
		AmountDue:       pick("amount_due", "amountDue"),
		TotalSales:      pick("total_sales", "totalSales"),
		Signature:       pick("signature"),
	}, nil
}
