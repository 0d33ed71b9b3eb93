package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, parcel *Parcel) error
	FindByUPIN(ctx context.Context, db *gorm.DB, upin string) (*Parcel, error)
	InsertLease(ctx context.Context, db *gorm.DB, lease *LeaseAgreement) error
	FindLeaseByParcelID(ctx context.Context, db *gorm.DB, parcelID snowflake.ID) (*LeaseAgreement, error)
}
