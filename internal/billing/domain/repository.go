package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/landgov/parcelledger/pkg/db/pagination"
	"gorm.io/gorm"
)

// BillRepository reads and mutates billing records. Callers pass the
// handle so mutations compose into a surrounding transaction.
type BillRepository interface {
	Insert(ctx context.Context, db *gorm.DB, bill *BillingRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingRecord, error)
	ListByUPIN(ctx context.Context, db *gorm.DB, upin string, page pagination.Pagination) ([]*BillingRecord, error)
	OutstandingByParcelForUpdate(ctx context.Context, db *gorm.DB, parcelID snowflake.ID) ([]*BillingRecord, error)
	SaveSettlement(ctx context.Context, db *gorm.DB, bill *BillingRecord) error

	MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	PageOverdueForPenalty(ctx context.Context, db *gorm.DB, afterID snowflake.ID, staleBefore time.Time, limit int) ([]*BillingRecord, error)
	SavePenalty(ctx context.Context, db *gorm.DB, bill *BillingRecord) error
}

// OrderRepository reads and mutates payment orders.
type OrderRepository interface {
	Insert(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	FindByNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*PaymentOrder, error)
	ExpireStale(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	ListGeneratedIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	RecalculateTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error
	MarkPaid(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error
}
