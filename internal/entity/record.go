package entity

import "time"

// Record is a persisted utility-bill receipt for data transfer between layers.
type Record struct {
	ID              int64     `json:"id"`
	TransactionRef  string    `json:"transaction_ref"`
	AccountNumber   string    `json:"account_number"`
	CustomerName    string    `json:"customer_name"`
	ScannerName     string    `json:"scanner_name"`
	Company         string    `json:"company,omitempty"`
	Date            string    `json:"date"`
	ElectricityBill float64   `json:"electricity_bill"`
	AmountDue       *float64  `json:"amount_due,omitempty"`
	TotalSales      *float64  `json:"total_sales,omitempty"`
	SignatureName   string    `json:"signature_name"`
	CreatedAt       time.Time `json:"created_at"`
}

// Submission is the inbound payload for create and update. String fields
// arrive as the operator left them; coercion (trim, case-normalize, strip
// separators) happens in validation.
type Submission struct {
	TransactionRef  string `json:"transaction_ref"`
	AccountNumber   string `json:"account_number"`
	CustomerName    string `json:"customer_name"`
	ScannerName     string `json:"scanner_name"`
	Company         string `json:"company,omitempty"`
	Date            string `json:"date"`
	ElectricityBill string `json:"electricity_bill"`
	AmountDue       string `json:"amount_due,omitempty"`
	TotalSales      string `json:"total_sales,omitempty"`
	Signature       string `json:"signature,omitempty"`
}
