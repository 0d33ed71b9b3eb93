package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/landgov/parcelledger/internal/allocation"
	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	"github.com/landgov/parcelledger/internal/clock"
	obsmetrics "github.com/landgov/parcelledger/internal/observability/metrics"
	parceldomain "github.com/landgov/parcelledger/internal/parcel/domain"
	paymentdomain "github.com/landgov/parcelledger/internal/payment/domain"
	"github.com/landgov/parcelledger/pkg/db"
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
	Repo       paymentdomain.Repository
	ParcelRepo parceldomain.Repository
	BillRepo   billingdomain.BillRepository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	parcelRepo parceldomain.Repository
	billRepo   billingdomain.BillRepository
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.processor"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		parcelRepo: p.ParcelRepo,
		billRepo:   p.BillRepo,
	}
}

// ProcessPayment reconciles one bank payment inside a single database
// transaction. Nothing persists unless every step succeeds; the
// FinancialTransaction row is the durability anchor that makes replays
// of the same bank transaction id fail with ErrDuplicateTransaction.
func (s *Service) ProcessPayment(ctx context.Context, input paymentdomain.ProcessPaymentInput) (*paymentdomain.AllocationResult, error) {
	input.BankTxnID = strings.TrimSpace(input.BankTxnID)
	input.UPIN = strings.TrimSpace(input.UPIN)
	if input.BankTxnID == "" || input.UPIN == "" {
		return nil, paymentdomain.ErrInvalidInput
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = s.clock.Now()
	}

	var result *paymentdomain.AllocationResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByBankTxnID(ctx, tx, input.BankTxnID)
		if err != nil {
			return fmt.Errorf("idempotency check: %w", err)
		}
		if existing != nil {
			return paymentdomain.ErrDuplicateTransaction
		}

		parcel, err := s.parcelRepo.FindByUPIN(ctx, tx, input.UPIN)
		if err != nil {
			return fmt.Errorf("find parcel: %w", err)
		}
		if parcel == nil {
			return paymentdomain.ErrParcelNotFound
		}
		lease, err := s.parcelRepo.FindLeaseByParcelID(ctx, tx, parcel.ID)
		if err != nil {
			return fmt.Errorf("find lease: %w", err)
		}
		if lease == nil {
			return paymentdomain.ErrLeaseNotFound
		}

		bills, err := s.billRepo.OutstandingByParcelForUpdate(ctx, tx, parcel.ID)
		if err != nil {
			return fmt.Errorf("load outstanding bills: %w", err)
		}
		if len(bills) == 0 {
			return paymentdomain.ErrNoOutstandingBills
		}

		currentYear := s.clock.Now().Year()
		plan, err := allocation.Build(bills, input.NumberOfBills, currentYear, lease.AnnualInstallment)
		if err != nil {
			return err
		}

		summary := summarize(plan)
		txn := &paymentdomain.FinancialTransaction{
			ID:             s.genID.Generate(),
			BankTxnID:      input.BankTxnID,
			ParcelID:       parcel.ID,
			UPIN:           parcel.UPIN,
			Amount:         input.AmountPaid,
			PaymentChannel: input.PaymentChannel,
			Narrative:      narrative(input, summary),
			PaidAt:         input.PaymentDate.UTC(),
		}
		if err := s.repo.Insert(ctx, tx, txn); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return paymentdomain.ErrDuplicateTransaction
			}
			return fmt.Errorf("insert financial transaction: %w", err)
		}

		adjusted, err := s.applySpillover(ctx, tx, plan)
		if err != nil {
			return err
		}

		settled, totalApplied, err := s.settle(ctx, tx, plan)
		if err != nil {
			return err
		}

		result = &paymentdomain.AllocationResult{
			TransactionID:  txn.ID,
			BankTxnID:      txn.BankTxnID,
			SettledBills:   settled,
			AdjustedBills:  adjusted,
			OverdueSettled: plan.OverdueSettled,
			CurrentSettled: plan.CurrentSettled,
			FutureSettled:  len(plan.FutureSettled),
			TotalApplied:   totalApplied,
			Summary:        summary,
		}
		return nil
	})
	if err != nil {
		s.recordOutcome(err)
		return nil, err
	}

	obsmetrics.Payment().IncPayment(obsmetrics.PaymentOutcomeSettled)
	obsmetrics.Payment().AddBillsSettled(obsmetrics.BillClassOverdue, result.OverdueSettled)
	obsmetrics.Payment().AddBillsSettled(obsmetrics.BillClassCurrent, result.CurrentSettled)
	obsmetrics.Payment().AddBillsSettled(obsmetrics.BillClassFuture, result.FutureSettled)
	amount, _ := result.TotalApplied.Float64()
	obsmetrics.Payment().ObserveAmount(amount)

	s.log.Info("payment processed",
		zap.String("bank_txn_id", result.BankTxnID),
		zap.String("upin", input.UPIN),
		zap.Int("bills_settled", len(result.SettledBills)),
		zap.String("total_applied", result.TotalApplied.String()),
		zap.String("summary", result.Summary),
	)
	return result, nil
}

// applySpillover reduces unselected future bills and persists the new
// remaining amounts.
func (s *Service) applySpillover(ctx context.Context, tx *gorm.DB, plan *allocation.Plan) ([]paymentdomain.BillSettlement, error) {
	before := make(map[snowflake.ID]decimal.Decimal, len(plan.AllFuture))
	for _, bill := range plan.AllFuture {
		before[bill.ID] = bill.RemainingAmount
	}

	plan.ApplySpillover()

	var adjusted []paymentdomain.BillSettlement
	for _, bill := range plan.AllFuture {
		prev := before[bill.ID]
		if bill.RemainingAmount.Equal(prev) {
			continue
		}
		if err := s.billRepo.SaveSettlement(ctx, tx, bill); err != nil {
			return nil, fmt.Errorf("apply spillover to bill %d: %w", bill.ID, err)
		}
		adjusted = append(adjusted, paymentdomain.BillSettlement{
			BillID:          bill.ID,
			FiscalYear:      bill.FiscalYear,
			BeforeRemaining: prev,
			AfterRemaining:  bill.RemainingAmount,
			Status:          bill.Status,
		})
	}
	return adjusted, nil
}

// settle marks every selected bill PAID with nothing remaining.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, plan *allocation.Plan) ([]paymentdomain.BillSettlement, decimal.Decimal, error) {
	settled := make([]paymentdomain.BillSettlement, 0, len(plan.ToSettle))
	totalApplied := decimal.Zero

	for _, bill := range plan.ToSettle {
		before := bill.RemainingAmount
		bill.AmountPaid = bill.AmountDue
		bill.RemainingAmount = decimal.Zero
		bill.Status = billingdomain.BillStatusPaid
		if err := s.billRepo.SaveSettlement(ctx, tx, bill); err != nil {
			return nil, decimal.Zero, fmt.Errorf("settle bill %d: %w", bill.ID, err)
		}
		totalApplied = totalApplied.Add(before)
		settled = append(settled, paymentdomain.BillSettlement{
			BillID:          bill.ID,
			FiscalYear:      bill.FiscalYear,
			BeforeRemaining: before,
			AfterRemaining:  decimal.Zero,
			Status:          billingdomain.BillStatusPaid,
		})
	}
	return settled, totalApplied, nil
}

func (s *Service) recordOutcome(err error) {
	switch {
	case errors.Is(err, paymentdomain.ErrDuplicateTransaction):
		obsmetrics.Payment().IncPayment(obsmetrics.PaymentOutcomeDuplicate)
	default:
		obsmetrics.Payment().IncPayment(obsmetrics.PaymentOutcomeRejected)
	}
}

func summarize(plan *allocation.Plan) string {
	return fmt.Sprintf("%d overdue, %d current, %d future",
		plan.OverdueSettled, plan.CurrentSettled, len(plan.FutureSettled))
}

func narrative(input paymentdomain.ProcessPaymentInput, summary string) string {
	parts := []string{fmt.Sprintf("settled %s", summary)}
	if input.BankBranch != "" {
		parts = append(parts, "branch="+input.BankBranch)
	}
	if input.BankAccount != "" {
		parts = append(parts, "account="+input.BankAccount)
	}
	if input.Notes != "" {
		parts = append(parts, input.Notes)
	}
	return strings.Join(parts, "; ")
}

var _ Processor = (*Service)(nil)
