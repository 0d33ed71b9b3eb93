package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/landgov/parcelledger/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.FinancialTransaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) FindByBankTxnID(ctx context.Context, db *gorm.DB, bankTxnID string) (*domain.FinancialTransaction, error) {
	var txn domain.FinancialTransaction
	err := db.WithContext(ctx).
		Where("bank_txn_id = ?", strings.TrimSpace(bankTxnID)).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}
