package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *FinancialTransaction) error
	FindByBankTxnID(ctx context.Context, db *gorm.DB, bankTxnID string) (*FinancialTransaction, error)
}
