package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	obsmetrics "github.com/landgov/parcelledger/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// overdueTransitionTask flips past-due UNPAID bills to OVERDUE in one
// bulk update.
func (s *Scheduler) overdueTransitionTask(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	marked, err := s.billRepo.MarkOverdue(ctx, s.db, now)
	if err != nil {
		return marked, fmt.Errorf("mark overdue: %w", err)
	}
	obsmetrics.Maintenance().AddRecordsProcessed("overdue_transition", "billing_records", int(marked))
	return marked, nil
}

// penaltyRefreshTask recomputes penalties for overdue bills whose last
// computation has gone stale. It walks the table in id-ordered pages,
// each applied in its own short transaction, and yields between pages
// so payment traffic is never starved of row locks.
func (s *Scheduler) penaltyRefreshTask(ctx context.Context) (int64, error) {
	tuning := s.tuning.Get()
	now := s.clock.Now()
	staleBefore := now.Add(-tuning.PenaltyStaleAfter())

	var processed int64
	var taskErr error
	afterID := snowflake.ID(0)

	for {
		if err := ctx.Err(); err != nil {
			return processed, errors.Join(taskErr, err)
		}

		page, err := s.billRepo.PageOverdueForPenalty(ctx, s.db, afterID, staleBefore, tuning.PenaltyPageSize)
		if err != nil {
			return processed, errors.Join(taskErr, fmt.Errorf("page overdue bills: %w", err))
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, bill := range page {
				if err := s.refreshPenalty(ctx, tx, bill, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			// A failed page is skipped, not fatal; the cursor moved past
			// it and the stale stamp brings it back next run.
			taskErr = errors.Join(taskErr, err)
			s.log.Warn("penalty page failed",
				zap.String("after_id", afterID.String()),
				zap.Error(err),
			)
			continue
		}
		processed += int64(len(page))
		obsmetrics.Maintenance().AddRecordsProcessed("penalty_refresh", "billing_records", len(page))

		if delay := tuning.PenaltyPageDelay(); delay > 0 {
			select {
			case <-ctx.Done():
				return processed, errors.Join(taskErr, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return processed, taskErr
}

// refreshPenalty recomputes the bill's penalty and grows amount_due and
// remaining_amount by the delta. The accrued penalty only ever ratchets
// up: a recompute that comes back lower (a rate row pulled, or the
// resolver falling open to a zero rate) stamps the bill and changes
// nothing else, so amount_due stays non-decreasing until settlement.
func (s *Scheduler) refreshPenalty(ctx context.Context, tx *gorm.DB, bill *billingdomain.BillingRecord, now time.Time) error {
	principal := bill.BaseAmount.Add(bill.InterestAmount)
	res, err := s.penalty.Calculate(ctx, principal, bill.DueDate)
	if err != nil {
		return fmt.Errorf("compute penalty for bill %d: %w", bill.ID, err)
	}

	if res.Penalty.GreaterThan(bill.PenaltyAmount) {
		delta := res.Penalty.Sub(bill.PenaltyAmount)
		bill.PenaltyAmount = res.Penalty
		bill.PenaltyRateUsed = res.RateUsed
		bill.AmountDue = bill.AmountDue.Add(delta)
		bill.RemainingAmount = bill.RemainingAmount.Add(delta)
	}
	stamp := now
	bill.PenaltyUpdatedAt = &stamp

	if err := s.billRepo.SavePenalty(ctx, tx, bill); err != nil {
		return fmt.Errorf("save penalty for bill %d: %w", bill.ID, err)
	}
	return nil
}

// orderExpiryTask expires GENERATED payment orders past their TTL.
func (s *Scheduler) orderExpiryTask(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	expired, err := s.orderRepo.ExpireStale(ctx, s.db, now)
	if err != nil {
		return expired, fmt.Errorf("expire orders: %w", err)
	}
	obsmetrics.Maintenance().AddRecordsProcessed("order_expiry", "payment_orders", int(expired))
	return expired, nil
}

// orderRecalculationTask refreshes the cached total of every live order
// from the current amount_due of its bills. Per-order failures are
// collected so one bad order never blocks the rest.
func (s *Scheduler) orderRecalculationTask(ctx context.Context) (int64, error) {
	ids, err := s.orderRepo.ListGeneratedIDs(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("list live orders: %w", err)
	}

	var processed int64
	var taskErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return processed, errors.Join(taskErr, err)
		}
		if err := s.orderRepo.RecalculateTotal(ctx, s.db, id); err != nil {
			taskErr = errors.Join(taskErr, fmt.Errorf("recalculate order %d: %w", id, err))
			continue
		}
		processed++
	}
	obsmetrics.Maintenance().AddRecordsProcessed("order_recalculation", "payment_orders", int(processed))
	return processed, taskErr
}
