package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	billingrepo "github.com/landgov/parcelledger/internal/billing/repository"
	"github.com/landgov/parcelledger/internal/clock"
	"github.com/landgov/parcelledger/internal/config"
	"github.com/landgov/parcelledger/internal/maintenance/lock"
	"github.com/landgov/parcelledger/internal/penalty"
	ratedomain "github.com/landgov/parcelledger/internal/rate/domain"
	rateservice "github.com/landgov/parcelledger/internal/rate/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	sched *Scheduler
	node  *snowflake.Node
	clock *clock.FakeClock
	cfg   config.Config
}

func testTuning() config.MaintenanceTuning {
	t := config.DefaultMaintenanceTuning()
	t.PenaltyPageSize = 2
	t.PenaltyPageDelayMs = 0
	t.TaskTimeoutSeconds = 30
	t.RunReportHistoryLen = 5
	return t
}

func newFixture(t *testing.T, tuning config.MaintenanceTuning) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&billingdomain.BillingRecord{},
		&billingdomain.PaymentOrder{},
		&billingdomain.OrderBillItem{},
		&ratedomain.RateConfiguration{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))

	cfg := config.Config{
		MaintenanceRequireLock: false,
		MaintenanceLockName:    "parcelledger.maintenance",
		MaintenanceLockFile:    filepath.Join(t.TempDir(), "maintenance.lock"),
	}

	rateSvc := rateservice.NewService(rateservice.Params{DB: gdb, Log: zap.NewNop()})
	calc := penalty.NewCalculator(penalty.Params{
		Resolver: rateSvc,
		Clock:    fakeClock,
		Log:      zap.NewNop(),
	})

	sched := New(Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		Config:    cfg,
		Tuning:    config.NewStaticTuningHolder(tuning),
		Clock:     fakeClock,
		BillRepo:  billingrepo.ProvideBillRepository(),
		OrderRepo: billingrepo.ProvideOrderRepository(),
		Penalty:   calc,
	})

	return &fixture{db: gdb, sched: sched, node: node, clock: fakeClock, cfg: cfg}
}

func (f *fixture) addPenaltyRate(t *testing.T, value string) {
	t.Helper()
	cfg := ratedomain.RateConfiguration{
		ID:            f.node.Generate(),
		RateType:      ratedomain.RateTypePenalty,
		RateValue:     decimal.RequireFromString(value),
		EffectiveFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
	}
	require.NoError(t, f.db.Create(&cfg).Error)
}

func (f *fixture) addBill(t *testing.T, year int, amount string, status billingdomain.BillStatus, due time.Time) *billingdomain.BillingRecord {
	t.Helper()
	base := decimal.RequireFromString(amount)
	bill := &billingdomain.BillingRecord{
		ID:              f.node.Generate(),
		ParcelID:        f.node.Generate(),
		UPIN:            fmt.Sprintf("AA-01-%04d", year),
		FiscalYear:      year,
		BaseAmount:      base,
		AmountDue:       base,
		RemainingAmount: base,
		Status:          status,
		DueDate:         due,
	}
	require.NoError(t, f.db.Create(bill).Error)
	return bill
}

func (f *fixture) addOrder(t *testing.T, status billingdomain.OrderStatus, expiresAt time.Time, bills ...*billingdomain.BillingRecord) *billingdomain.PaymentOrder {
	t.Helper()
	order := &billingdomain.PaymentOrder{
		ID:          f.node.Generate(),
		OrderNumber: fmt.Sprintf("ORD-%d", f.node.Generate()),
		Status:      status,
		ExpiresAt:   expiresAt,
	}
	for _, bill := range bills {
		order.ParcelID = bill.ParcelID
		order.CurrentCalculatedTotal = order.CurrentCalculatedTotal.Add(bill.AmountDue)
		order.Items = append(order.Items, billingdomain.OrderBillItem{
			ID:                 f.node.Generate(),
			BillingRecordID:    bill.ID,
			AmountAtGeneration: bill.AmountDue,
		})
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func (f *fixture) reloadBill(t *testing.T, id snowflake.ID) *billingdomain.BillingRecord {
	t.Helper()
	var bill billingdomain.BillingRecord
	require.NoError(t, f.db.First(&bill, "id = ?", id).Error)
	return &bill
}

func (f *fixture) reloadOrder(t *testing.T, id snowflake.ID) *billingdomain.PaymentOrder {
	t.Helper()
	var order billingdomain.PaymentOrder
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return &order
}

func taskResult(t *testing.T, report *RunReport, name string) TaskResult {
	t.Helper()
	for _, res := range report.Results {
		if res.Task == name {
			return res
		}
	}
	t.Fatalf("task %s missing from report", name)
	return TaskResult{}
}

func TestRunExecutesAllTasks(t *testing.T) {
	f := newFixture(t, testTuning())
	f.addPenaltyRate(t, "0.05")

	// Due 2024-01-31, clock 2024-06-15: 136 full days overdue.
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	overdue := f.addBill(t, 2023, "1000", billingdomain.BillStatusUnpaid, due)
	current := f.addBill(t, 2024, "500", billingdomain.BillStatusUnpaid, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))

	// PAID is terminal: neither the overdue transition nor the penalty
	// refresh may touch it even with a past due date.
	settled := f.addBill(t, 2021, "1000", billingdomain.BillStatusPaid, due)
	settled.RemainingAmount = decimal.Zero
	require.NoError(t, f.db.Save(settled).Error)

	staleOrder := f.addOrder(t, billingdomain.OrderStatusGenerated, f.clock.Now().Add(-time.Hour), current)
	liveOrder := f.addOrder(t, billingdomain.OrderStatusGenerated, f.clock.Now().Add(72*time.Hour), overdue)

	report, err := f.sched.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 4)
	require.False(t, report.Failed())
	require.Equal(t, lock.ModeFile, report.LockMode)

	bill := f.reloadBill(t, overdue.ID)
	require.Equal(t, billingdomain.BillStatusOverdue, bill.Status)
	// 1000 * 0.05 * 136 / 365 rounded to the cent.
	require.True(t, bill.PenaltyAmount.Equal(decimal.RequireFromString("18.63")), bill.PenaltyAmount.String())
	require.True(t, bill.AmountDue.Equal(decimal.RequireFromString("1018.63")))
	require.True(t, bill.RemainingAmount.Equal(decimal.RequireFromString("1018.63")))
	require.True(t, bill.PenaltyRateUsed.Equal(decimal.RequireFromString("0.05")))
	require.NotNil(t, bill.PenaltyUpdatedAt)

	require.Equal(t, billingdomain.BillStatusUnpaid, f.reloadBill(t, current.ID).Status)

	terminal := f.reloadBill(t, settled.ID)
	require.Equal(t, billingdomain.BillStatusPaid, terminal.Status)
	require.True(t, terminal.PenaltyAmount.IsZero())
	require.Nil(t, terminal.PenaltyUpdatedAt)

	require.Equal(t, billingdomain.OrderStatusExpired, f.reloadOrder(t, staleOrder.ID).Status)

	refreshed := f.reloadOrder(t, liveOrder.ID)
	require.Equal(t, billingdomain.OrderStatusGenerated, refreshed.Status)
	require.True(t, refreshed.CurrentCalculatedTotal.Equal(decimal.RequireFromString("1018.63")),
		refreshed.CurrentCalculatedTotal.String())

	require.EqualValues(t, 1, taskResult(t, report, "overdue_transition").Processed)
	require.EqualValues(t, 1, taskResult(t, report, "penalty_refresh").Processed)
	require.EqualValues(t, 1, taskResult(t, report, "order_expiry").Processed)
	require.EqualValues(t, 1, taskResult(t, report, "order_recalculation").Processed)
}

func TestRunSingleFlight(t *testing.T) {
	f := newFixture(t, testTuning())

	f.sched.running.Store(true)
	_, err := f.sched.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	f.sched.running.Store(false)
	_, err = f.sched.Run(context.Background())
	require.NoError(t, err)
}

func TestRunTaskFailureDoesNotStopLaterTasks(t *testing.T) {
	f := newFixture(t, testTuning())
	staleOrder := f.addOrder(t, billingdomain.OrderStatusGenerated, f.clock.Now().Add(-time.Hour))

	require.NoError(t, f.db.Migrator().DropTable(&billingdomain.BillingRecord{}))

	report, err := f.sched.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Failed())
	require.NotEmpty(t, taskResult(t, report, "overdue_transition").Error)

	require.Empty(t, taskResult(t, report, "order_expiry").Error)
	require.Equal(t, billingdomain.OrderStatusExpired, f.reloadOrder(t, staleOrder.ID).Status)
}

func TestRunLockHeldByLiveProcess(t *testing.T) {
	f := newFixture(t, testTuning())
	require.NoError(t, os.WriteFile(f.cfg.MaintenanceLockFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644))

	// Without the strict flag the run proceeds unlocked.
	report, err := f.sched.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, lock.ModeNone, report.LockMode)

	// With it the run is skipped outright.
	f.sched.cfg.MaintenanceRequireLock = true
	_, err = f.sched.Run(context.Background())
	require.ErrorIs(t, err, lock.ErrUnavailable)
}

func TestPenaltyRefreshSkipsFreshBills(t *testing.T) {
	f := newFixture(t, testTuning())
	f.addPenaltyRate(t, "0.05")

	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	f.addBill(t, 2023, "1000", billingdomain.BillStatusOverdue, due)

	report, err := f.sched.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, taskResult(t, report, "penalty_refresh").Processed)

	// The stamp is fresh, so the next run leaves the bill alone.
	report, err = f.sched.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, taskResult(t, report, "penalty_refresh").Processed)

	// A day later it is stale again and gets recomputed.
	f.clock.Set(f.clock.Now().Add(25 * time.Hour))
	report, err = f.sched.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, taskResult(t, report, "penalty_refresh").Processed)
}

func TestPenaltyRefreshNeverReducesAccruedPenalty(t *testing.T) {
	// No penalty rate rows: the resolver falls open to a zero rate, so
	// the recompute comes back below the stored penalty. The refresh must
	// stamp the bill and leave the accrued amounts untouched.
	f := newFixture(t, testTuning())

	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	bill := f.addBill(t, 2023, "1000", billingdomain.BillStatusOverdue, due)
	bill.PenaltyAmount = decimal.RequireFromString("100")
	bill.AmountDue = decimal.RequireFromString("1100")
	bill.RemainingAmount = decimal.RequireFromString("1100")
	require.NoError(t, f.db.Save(bill).Error)

	report, err := f.sched.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, taskResult(t, report, "penalty_refresh").Processed)

	got := f.reloadBill(t, bill.ID)
	require.True(t, got.PenaltyAmount.Equal(decimal.RequireFromString("100")), got.PenaltyAmount.String())
	require.True(t, got.AmountDue.Equal(decimal.RequireFromString("1100")), got.AmountDue.String())
	require.True(t, got.RemainingAmount.Equal(decimal.RequireFromString("1100")))
	require.NotNil(t, got.PenaltyUpdatedAt)

	// The stamp still advances, so the bill is not retried until stale.
	report, err = f.sched.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, taskResult(t, report, "penalty_refresh").Processed)
}

func TestPenaltyRefreshPagesThroughBacklog(t *testing.T) {
	tuning := testTuning()
	tuning.PenaltyPageSize = 2
	f := newFixture(t, tuning)
	f.addPenaltyRate(t, "0.05")

	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	for year := 2019; year < 2024; year++ {
		f.addBill(t, year, "1000", billingdomain.BillStatusOverdue, due)
	}

	report, err := f.sched.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, taskResult(t, report, "penalty_refresh").Processed)
}

func TestHistoryIsBoundedNewestFirst(t *testing.T) {
	tuning := testTuning()
	tuning.RunReportHistoryLen = 2
	f := newFixture(t, tuning)

	for i := 0; i < 3; i++ {
		f.clock.Set(f.clock.Now().Add(time.Hour))
		_, err := f.sched.Run(context.Background())
		require.NoError(t, err)
	}

	history := f.sched.History()
	require.Len(t, history, 2)
	require.True(t, history[0].StartedAt.After(history[1].StartedAt))
}
