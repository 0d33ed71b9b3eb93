package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/landgov/parcelledger/internal/billing/domain"
	billingrepo "github.com/landgov/parcelledger/internal/billing/repository"
	"github.com/landgov/parcelledger/internal/clock"
	"github.com/landgov/parcelledger/internal/config"
	parceldomain "github.com/landgov/parcelledger/internal/parcel/domain"
	parcelrepo "github.com/landgov/parcelledger/internal/parcel/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    *Service
	node   *snowflake.Node
	clock  *clock.FakeClock
	parcel *parceldomain.Parcel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&parceldomain.Parcel{},
		&domain.BillingRecord{},
		&domain.PaymentOrder{},
		&domain.OrderBillItem{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))

	tuning := config.DefaultMaintenanceTuning()
	tuning.OrderTTLHours = 48

	svc := NewService(Params{
		DB:         gdb,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Tuning:     config.NewStaticTuningHolder(tuning),
		ParcelRepo: parcelrepo.Provide(),
		BillRepo:   billingrepo.ProvideBillRepository(),
		OrderRepo:  billingrepo.ProvideOrderRepository(),
	})

	parcel := &parceldomain.Parcel{ID: node.Generate(), UPIN: "AA-01-0001"}
	require.NoError(t, gdb.Create(parcel).Error)

	return &fixture{db: gdb, svc: svc, node: node, clock: fakeClock, parcel: parcel}
}

func (f *fixture) addBill(t *testing.T, year int, amount string, status domain.BillStatus) *domain.BillingRecord {
	t.Helper()
	due := decimal.RequireFromString(amount)
	bill := &domain.BillingRecord{
		ID:              f.node.Generate(),
		ParcelID:        f.parcel.ID,
		UPIN:            f.parcel.UPIN,
		FiscalYear:      year,
		BaseAmount:      due,
		AmountDue:       due,
		RemainingAmount: due,
		Status:          status,
		DueDate:         time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.db.Create(bill).Error)
	return bill
}

func TestGenerateOrderBundlesOldestBills(t *testing.T) {
	f := newFixture(t)
	b2022 := f.addBill(t, 2022, "1100", domain.BillStatusOverdue)
	b2023 := f.addBill(t, 2023, "1000", domain.BillStatusUnpaid)
	f.addBill(t, 2024, "1000", domain.BillStatusUnpaid)

	order, err := f.svc.GenerateOrder(context.Background(), GenerateOrderInput{
		UPIN:          f.parcel.UPIN,
		NumberOfBills: 2,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusGenerated, order.Status)
	require.Equal(t, f.clock.Now().Add(48*time.Hour), order.ExpiresAt)
	require.True(t, order.CurrentCalculatedTotal.Equal(decimal.RequireFromString("2100")),
		order.CurrentCalculatedTotal.String())
	require.Len(t, order.Items, 2)
	require.Equal(t, b2022.ID, order.Items[0].BillingRecordID)
	require.Equal(t, b2023.ID, order.Items[1].BillingRecordID)

	stored, err := billingrepo.ProvideOrderRepository().FindByNumber(context.Background(), f.db, order.OrderNumber)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	require.True(t, stored.CurrentCalculatedTotal.Equal(decimal.RequireFromString("2100")))
}

func TestGenerateOrderClampsToOutstanding(t *testing.T) {
	f := newFixture(t)
	f.addBill(t, 2023, "1000", domain.BillStatusUnpaid)
	f.addBill(t, 2024, "1000", domain.BillStatusUnpaid)

	order, err := f.svc.GenerateOrder(context.Background(), GenerateOrderInput{
		UPIN:          f.parcel.UPIN,
		NumberOfBills: 5,
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
}

func TestGenerateOrderUnknownParcel(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GenerateOrder(context.Background(), GenerateOrderInput{
		UPIN:          "ZZ-99-9999",
		NumberOfBills: 1,
	})
	require.ErrorIs(t, err, parceldomain.ErrParcelNotFound)
}

func TestGenerateOrderNoOutstandingBills(t *testing.T) {
	f := newFixture(t)
	paid := f.addBill(t, 2023, "1000", domain.BillStatusPaid)
	paid.RemainingAmount = decimal.Zero
	require.NoError(t, f.db.Save(paid).Error)

	_, err := f.svc.GenerateOrder(context.Background(), GenerateOrderInput{
		UPIN:          f.parcel.UPIN,
		NumberOfBills: 1,
	})
	require.ErrorIs(t, err, domain.ErrNoBillsForOrder)

	var orderCount int64
	require.NoError(t, f.db.Model(&domain.PaymentOrder{}).Count(&orderCount).Error)
	require.Zero(t, orderCount)
}

func TestGenerateOrderRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateOrder(context.Background(), GenerateOrderInput{UPIN: "", NumberOfBills: 1})
	require.ErrorIs(t, err, domain.ErrInvalidOrderInput)

	_, err = f.svc.GenerateOrder(context.Background(), GenerateOrderInput{UPIN: f.parcel.UPIN, NumberOfBills: 0})
	require.ErrorIs(t, err, domain.ErrInvalidOrderInput)
}
