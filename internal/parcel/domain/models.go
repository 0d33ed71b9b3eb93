package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Parcel is a registered land parcel identified by its UPIN.
type Parcel struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	UPIN      string          `json:"upin" gorm:"type:text;not null;uniqueIndex:idx_parcels_upin"`
	SubCity   string          `json:"sub_city" gorm:"type:text;not null;default:''"`
	Woreda    string          `json:"woreda" gorm:"type:text;not null;default:''"`
	LandUse   string          `json:"land_use" gorm:"type:text;not null;default:''"`
	AreaSqm   decimal.Decimal `json:"area_sqm" gorm:"type:numeric(18,2);not null;default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Parcel) TableName() string { return "parcels" }

// LeaseAgreement carries the lease terms for a parcel. One active
// agreement per parcel; AnnualInstallment drives spillover math.
type LeaseAgreement struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	ParcelID          snowflake.ID    `json:"parcel_id" gorm:"not null;uniqueIndex:idx_lease_agreements_parcel"`
	AnnualInstallment decimal.Decimal `json:"annual_installment" gorm:"type:numeric(18,2);not null"`
	LeasePeriodYears  int             `json:"lease_period_years" gorm:"not null;default:0"`
	StartYear         int             `json:"start_year" gorm:"not null;default:0"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LeaseAgreement) TableName() string { return "lease_agreements" }
