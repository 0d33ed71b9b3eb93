package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	"github.com/shopspring/decimal"
)

// FinancialTransaction is the immutable record of one bank payment.
// BankTxnID carries a unique index; re-posting the same bank
// transaction is rejected before any ledger mutation.
type FinancialTransaction struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	BankTxnID      string          `json:"bank_txn_id" gorm:"type:text;not null;uniqueIndex:idx_financial_transactions_bank_txn"`
	ParcelID       snowflake.ID    `json:"parcel_id" gorm:"not null;index"`
	UPIN           string          `json:"upin" gorm:"type:text;not null"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	PaymentChannel string          `json:"payment_channel" gorm:"type:text;not null;default:''"`
	Narrative      string          `json:"narrative" gorm:"type:text;not null;default:''"`
	PaidAt         time.Time       `json:"paid_at" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FinancialTransaction) TableName() string { return "financial_transactions" }

// ProcessPaymentInput is one incoming bank payment notification.
type ProcessPaymentInput struct {
	BankTxnID      string
	UPIN           string
	NumberOfBills  int
	AmountPaid     decimal.Decimal
	PaymentDate    time.Time
	PaymentChannel string
	BankBranch     string
	BankAccount    string
	Notes          string
}

// BillSettlement is the before/after view of one touched bill.
type BillSettlement struct {
	BillID          snowflake.ID             `json:"bill_id"`
	FiscalYear      int                      `json:"fiscal_year"`
	BeforeRemaining decimal.Decimal          `json:"before_remaining"`
	AfterRemaining  decimal.Decimal          `json:"after_remaining"`
	Status          billingdomain.BillStatus `json:"status"`
}

// AllocationResult is returned to the caller after a committed payment.
type AllocationResult struct {
	TransactionID  snowflake.ID     `json:"transaction_id"`
	BankTxnID      string           `json:"bank_txn_id"`
	SettledBills   []BillSettlement `json:"settled_bills"`
	AdjustedBills  []BillSettlement `json:"adjusted_bills"`
	OverdueSettled int              `json:"overdue_settled"`
	CurrentSettled int              `json:"current_settled"`
	FutureSettled  int              `json:"future_settled"`
	TotalApplied   decimal.Decimal  `json:"total_applied"`
	Summary        string           `json:"summary"`
}
