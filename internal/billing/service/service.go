package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/landgov/parcelledger/internal/billing/domain"
	"github.com/landgov/parcelledger/internal/clock"
	"github.com/landgov/parcelledger/internal/config"
	parceldomain "github.com/landgov/parcelledger/internal/parcel/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Tuning     *config.MaintenanceTuningHolder
	ParcelRepo parceldomain.Repository
	BillRepo   domain.BillRepository
	OrderRepo  domain.OrderRepository
}

// Service generates payment orders over a parcel's outstanding bills.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	tuning     *config.MaintenanceTuningHolder
	parcelRepo parceldomain.Repository
	billRepo   domain.BillRepository
	orderRepo  domain.OrderRepository
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.orders"),
		genID:      p.GenID,
		clock:      p.Clock,
		tuning:     p.Tuning,
		parcelRepo: p.ParcelRepo,
		billRepo:   p.BillRepo,
		orderRepo:  p.OrderRepo,
	}
}

// GenerateOrderInput selects how many of the parcel's oldest outstanding
// bills the new order should bundle.
type GenerateOrderInput struct {
	UPIN          string
	NumberOfBills int
}

// GenerateOrder creates a GENERATED payment order over the parcel's
// oldest outstanding bills, caching the live amount_due sum as the order
// total. The order expires after the configured TTL; the maintenance
// expiry task sweeps it to EXPIRED once that passes.
func (s *Service) GenerateOrder(ctx context.Context, input GenerateOrderInput) (*domain.PaymentOrder, error) {
	input.UPIN = strings.TrimSpace(input.UPIN)
	if input.UPIN == "" || input.NumberOfBills < 1 {
		return nil, domain.ErrInvalidOrderInput
	}

	now := s.clock.Now()
	var order *domain.PaymentOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parcel, err := s.parcelRepo.FindByUPIN(ctx, tx, input.UPIN)
		if err != nil {
			return fmt.Errorf("find parcel: %w", err)
		}
		if parcel == nil {
			return parceldomain.ErrParcelNotFound
		}

		bills, err := s.billRepo.OutstandingByParcelForUpdate(ctx, tx, parcel.ID)
		if err != nil {
			return fmt.Errorf("load outstanding bills: %w", err)
		}
		if len(bills) == 0 {
			return domain.ErrNoBillsForOrder
		}
		if input.NumberOfBills < len(bills) {
			bills = bills[:input.NumberOfBills]
		}

		order = &domain.PaymentOrder{
			ID:          s.genID.Generate(),
			OrderNumber: fmt.Sprintf("ORD-%s", s.genID.Generate()),
			ParcelID:    parcel.ID,
			Status:      domain.OrderStatusGenerated,
			ExpiresAt:   now.Add(s.tuning.Get().OrderTTL()),
		}
		total := decimal.Zero
		for _, bill := range bills {
			total = total.Add(bill.AmountDue)
			order.Items = append(order.Items, domain.OrderBillItem{
				ID:                 s.genID.Generate(),
				OrderID:            order.ID,
				BillingRecordID:    bill.ID,
				AmountAtGeneration: bill.AmountDue,
			})
		}
		order.CurrentCalculatedTotal = total

		if err := s.orderRepo.Insert(ctx, tx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment order generated",
		zap.String("order_number", order.OrderNumber),
		zap.String("upin", input.UPIN),
		zap.Int("bills", len(order.Items)),
		zap.String("total", order.CurrentCalculatedTotal.String()),
		zap.Time("expires_at", order.ExpiresAt),
	)
	return order, nil
}
