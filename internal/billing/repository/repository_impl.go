package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/landgov/parcelledger/internal/billing/domain"
	"github.com/landgov/parcelledger/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type billRepo struct{}

func ProvideBillRepository() domain.BillRepository {
	return &billRepo{}
}

func (r *billRepo) Insert(ctx context.Context, db *gorm.DB, bill *domain.BillingRecord) error {
	return db.WithContext(ctx).Create(bill).Error
}

func (r *billRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingRecord, error) {
	var bill domain.BillingRecord
	err := db.WithContext(ctx).First(&bill, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBillNotFound
		}
		return nil, err
	}
	return &bill, nil
}

func (r *billRepo) ListByUPIN(ctx context.Context, db *gorm.DB, upin string, page pagination.Pagination) ([]*domain.BillingRecord, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}

	stmt := db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("upin = ?", strings.TrimSpace(upin))

	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			stmt = stmt.Where("id > ?", cursor.ID)
		}
	}

	var bills []*domain.BillingRecord
	err := stmt.
		Order("fiscal_year asc, id asc").
		Limit(limit + 1).
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// OutstandingByParcelForUpdate loads every bill for the parcel that has
// not reached PAID, oldest fiscal year first, holding row locks on
// dialects that support them. Status is the only criterion: a bill whose
// remaining amount was driven to zero by spillover stays outstanding
// until a payment settles it.
func (r *billRepo) OutstandingByParcelForUpdate(ctx context.Context, db *gorm.DB, parcelID snowflake.ID) ([]*domain.BillingRecord, error) {
	stmt := db.WithContext(ctx).
		Where("parcel_id = ? AND status <> ?", parcelID, domain.BillStatusPaid)
	if db.Dialector.Name() == "postgres" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var bills []*domain.BillingRecord
	err := stmt.Order("fiscal_year asc").Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *billRepo) SaveSettlement(ctx context.Context, db *gorm.DB, bill *domain.BillingRecord) error {
	return db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("id = ?", bill.ID).
		Updates(map[string]interface{}{
			"amount_paid":      bill.AmountPaid,
			"remaining_amount": bill.RemainingAmount,
			"status":           bill.Status,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *billRepo) MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("status = ? AND due_date < ? AND remaining_amount > 0",
			domain.BillStatusUnpaid, now).
		Updates(map[string]interface{}{
			"status":     domain.BillStatusOverdue,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// PageOverdueForPenalty walks overdue bills needing a penalty recompute
// with an id cursor so each page holds locks briefly.
func (r *billRepo) PageOverdueForPenalty(ctx context.Context, db *gorm.DB, afterID snowflake.ID, staleBefore time.Time, limit int) ([]*domain.BillingRecord, error) {
	var bills []*domain.BillingRecord
	err := db.WithContext(ctx).
		Where("status = ? AND id > ? AND (penalty_updated_at IS NULL OR penalty_updated_at < ?)",
			domain.BillStatusOverdue, afterID, staleBefore).
		Order("id asc").
		Limit(limit).
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *billRepo) SavePenalty(ctx context.Context, db *gorm.DB, bill *domain.BillingRecord) error {
	return db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("id = ?", bill.ID).
		Updates(map[string]interface{}{
			"penalty_amount":     bill.PenaltyAmount,
			"penalty_rate_used":  bill.PenaltyRateUsed,
			"amount_due":         bill.AmountDue,
			"remaining_amount":   bill.RemainingAmount,
			"penalty_updated_at": bill.PenaltyUpdatedAt,
			"updated_at":         time.Now().UTC(),
		}).Error
}

type orderRepo struct{}

func ProvideOrderRepository() domain.OrderRepository {
	return &orderRepo{}
}

func (r *orderRepo) Insert(ctx context.Context, db *gorm.DB, order *domain.PaymentOrder) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *orderRepo) FindByNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*domain.PaymentOrder, error) {
	var order domain.PaymentOrder
	err := db.WithContext(ctx).
		Preload("Items").
		Where("order_number = ?", strings.TrimSpace(orderNumber)).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) ExpireStale(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.PaymentOrder{}).
		Where("status = ? AND expires_at < ?", domain.OrderStatusGenerated, now).
		Updates(map[string]interface{}{
			"status":     domain.OrderStatusExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *orderRepo) ListGeneratedIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.PaymentOrder{}).
		Where("status = ?", domain.OrderStatusGenerated).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RecalculateTotal refreshes the cached order total from the live
// amount_due of the attached bills. Conditional on GENERATED so a
// concurrent settle or expiry wins.
func (r *orderRepo) RecalculateTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET current_calculated_total = (
		     SELECT COALESCE(SUM(b.amount_due), 0)
		     FROM order_bill_items i
		     JOIN billing_records b ON b.id = i.billing_record_id
		     WHERE i.order_id = payment_orders.id AND b.deleted_at IS NULL
		 ),
		 updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		orderID, domain.OrderStatusGenerated,
	).Error
}

func (r *orderRepo) MarkPaid(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error {
	result := db.WithContext(ctx).
		Model(&domain.PaymentOrder{}).
		Where("id = ? AND status = ?", orderID, domain.OrderStatusGenerated).
		Updates(map[string]interface{}{
			"status":     domain.OrderStatusPaid,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
