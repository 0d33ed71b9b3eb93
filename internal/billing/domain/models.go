package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BillStatus is the lifecycle state of a billing record.
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "UNPAID"
	BillStatusOverdue BillStatus = "OVERDUE"
	BillStatusPaid    BillStatus = "PAID"
)

// OrderStatus is the lifecycle state of a payment order.
type OrderStatus string

const (
	OrderStatusGenerated OrderStatus = "GENERATED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// BillingRecord is one fiscal year's lease charge for a parcel.
//
// AmountDue = BaseAmount + InterestAmount + PenaltyAmount, and
// RemainingAmount stays within [0, AmountDue] at all times.
type BillingRecord struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	ParcelID         snowflake.ID    `json:"parcel_id" gorm:"not null;uniqueIndex:idx_billing_records_parcel_year,priority:1"`
	UPIN             string          `json:"upin" gorm:"type:text;not null;index"`
	FiscalYear       int             `json:"fiscal_year" gorm:"not null;uniqueIndex:idx_billing_records_parcel_year,priority:2"`
	BaseAmount       decimal.Decimal `json:"base_amount" gorm:"type:numeric(18,2);not null;default:0"`
	InterestAmount   decimal.Decimal `json:"interest_amount" gorm:"type:numeric(18,2);not null;default:0"`
	PenaltyAmount    decimal.Decimal `json:"penalty_amount" gorm:"type:numeric(18,2);not null;default:0"`
	AmountDue        decimal.Decimal `json:"amount_due" gorm:"type:numeric(18,2);not null;default:0"`
	AmountPaid       decimal.Decimal `json:"amount_paid" gorm:"type:numeric(18,2);not null;default:0"`
	RemainingAmount  decimal.Decimal `json:"remaining_amount" gorm:"type:numeric(18,2);not null;default:0"`
	PenaltyRateUsed  decimal.Decimal `json:"penalty_rate_used" gorm:"type:numeric(12,6);not null;default:0"`
	Status           BillStatus      `json:"status" gorm:"type:text;not null;default:'UNPAID';index:idx_billing_records_status_due,priority:1"`
	DueDate          time.Time       `json:"due_date" gorm:"not null;index:idx_billing_records_status_due,priority:2"`
	PenaltyUpdatedAt *time.Time      `json:"penalty_updated_at"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt        gorm.DeletedAt  `json:"-" gorm:"index"`
}

// TableName sets the database table name.
func (BillingRecord) TableName() string { return "billing_records" }

// Settled reports whether nothing remains to collect on the bill.
func (b *BillingRecord) Settled() bool {
	return b.RemainingAmount.LessThanOrEqual(decimal.Zero)
}

// PaymentOrder groups bills a payer intends to settle at the bank.
// CurrentCalculatedTotal caches the live sum of the attached bills'
// amount_due and is refreshed by maintenance while GENERATED.
type PaymentOrder struct {
	ID                     snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderNumber            string          `json:"order_number" gorm:"type:text;not null;uniqueIndex:idx_payment_orders_number"`
	ParcelID               snowflake.ID    `json:"parcel_id" gorm:"not null;index"`
	Status                 OrderStatus     `json:"status" gorm:"type:text;not null;default:'GENERATED';index:idx_payment_orders_status_expiry,priority:1"`
	CurrentCalculatedTotal decimal.Decimal `json:"current_calculated_total" gorm:"type:numeric(18,2);not null;default:0"`
	ExpiresAt              time.Time       `json:"expires_at" gorm:"not null;index:idx_payment_orders_status_expiry,priority:2"`
	CreatedAt              time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []OrderBillItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// TableName sets the database table name.
func (PaymentOrder) TableName() string { return "payment_orders" }

// OrderBillItem links a payment order to one billing record and keeps
// the amount displayed at generation time for audit.
type OrderBillItem struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID            snowflake.ID    `json:"order_id" gorm:"not null;index:idx_order_bill_items_order"`
	BillingRecordID    snowflake.ID    `json:"billing_record_id" gorm:"not null"`
	AmountAtGeneration decimal.Decimal `json:"amount_at_generation" gorm:"type:numeric(18,2);not null;default:0"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderBillItem) TableName() string { return "order_bill_items" }
