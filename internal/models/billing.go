package models

import "time"

const (
	BillUnpaid        = "UNPAID"
	BillPartiallyPaid = "PARTIALLY_PAID"
	BillPaid          = "PAID"
	BillCancelled     = "CANCELLED"
)

type Bill struct {
	BillID         string     `json:"bill_id"`
	BillNumber     string     `json:"bill_number"`
	PatientID      string     `json:"patient_id"`
	VisitID        string     `json:"visit_id,omitempty"`
	Date           time.Time  `json:"date"`
	Items          []BillItem `json:"items"`
	SubTotal       float64    `json:"sub_total"`
	TaxAmount      float64    `json:"tax_amount"`
	DiscountAmount float64    `json:"discount_amount"`
	TotalAmount    float64    `json:"total_amount"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type BillItem struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

type Payment struct {
	PaymentID     string    `json:"payment_id"`
	BillID        string    `json:"bill_id"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Date          time.Time `json:"date"`
	CreatedAt     time.Time `json:"created_at"`
}
