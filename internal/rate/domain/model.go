package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Rate types known to the ledger. The configuration store is written by
// an external administrative surface; the ledger only reads it.
const (
	RateTypePenalty   = "PENALTY_RATE"
	RateTypeGraceDays = "LATE_PAYMENT_GRACE_DAYS"
)

// ResolutionSource tells callers whether a rate came from configuration
// or from the fail-open default.
type ResolutionSource string

const (
	SourceResolved         ResolutionSource = "resolved"
	SourceDefaultedMissing ResolutionSource = "defaulted_missing"
)

// Resolution is the outcome of a rate lookup.
type Resolution struct {
	Value  decimal.Decimal
	Source ResolutionSource
}

// Defaulted reports whether the value is the fail-open default.
func (r Resolution) Defaulted() bool {
	return r.Source == SourceDefaultedMissing
}

// RateConfiguration is a versioned, time-bounded rate record.
type RateConfiguration struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	RateType       string          `json:"rate_type" gorm:"type:text;not null;index:idx_rate_configurations_lookup,priority:1"`
	RateValue      decimal.Decimal `json:"rate_value" gorm:"type:numeric(12,6);not null"`
	EffectiveFrom  time.Time       `json:"effective_from" gorm:"not null;index:idx_rate_configurations_lookup,priority:3"`
	EffectiveUntil *time.Time      `json:"effective_until"`
	IsActive       bool            `json:"is_active" gorm:"not null;default:true;index:idx_rate_configurations_lookup,priority:2"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RateConfiguration) TableName() string { return "rate_configurations" }
