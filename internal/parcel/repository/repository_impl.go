package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/landgov/parcelledger/internal/parcel/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, parcel *domain.Parcel) error {
	return db.WithContext(ctx).Create(parcel).Error
}

func (r *repo) FindByUPIN(ctx context.Context, db *gorm.DB, upin string) (*domain.Parcel, error) {
	var parcel domain.Parcel
	err := db.WithContext(ctx).
		Where("upin = ?", strings.TrimSpace(upin)).
		First(&parcel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &parcel, nil
}

func (r *repo) InsertLease(ctx context.Context, db *gorm.DB, lease *domain.LeaseAgreement) error {
	return db.WithContext(ctx).Create(lease).Error
}

func (r *repo) FindLeaseByParcelID(ctx context.Context, db *gorm.DB, parcelID snowflake.ID) (*domain.LeaseAgreement, error) {
	var lease domain.LeaseAgreement
	err := db.WithContext(ctx).
		Where("parcel_id = ?", parcelID).
		First(&lease).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lease, nil
}
