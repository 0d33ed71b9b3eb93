package allocation

import (
	"errors"
	"sort"

	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	"github.com/shopspring/decimal"
)

var ErrNoBillsSelected = errors.New("no_bills_selected")

// Plan is the allocation decision for one incoming payment.
type Plan struct {
	// ToSettle are the bills the payment fully clears, oldest first.
	ToSettle []*billingdomain.BillingRecord
	// FutureSettled is the subset of ToSettle with fiscal_year beyond
	// the current year.
	FutureSettled []*billingdomain.BillingRecord
	// AllFuture is every outstanding future-year bill, selected or not.
	AllFuture []*billingdomain.BillingRecord
	// Spillover is the amount deducted from each unselected future
	// bill's remaining_amount: len(FutureSettled) * annual installment.
	Spillover decimal.Decimal

	OverdueSettled int
	CurrentSettled int
}

// Build partitions the parcel's outstanding bills and decides which of
// them the payment of n bill-units settles.
//
// Overdue bills are always cleared first, even beyond the requested n.
// A remaining unit goes to the current-year bill, and any budget left
// after that buys future bills from the end of the schedule, i.e. the
// farthest years first. Pre-paying the most distant obligations is the
// established business rule for lease installments here; the nearest
// future years instead absorb the spillover deduction.
func Build(bills []*billingdomain.BillingRecord, n int, currentYear int, annualInstallment decimal.Decimal) (*Plan, error) {
	if n <= 0 || len(bills) == 0 {
		return nil, ErrNoBillsSelected
	}

	sorted := make([]*billingdomain.BillingRecord, len(bills))
	copy(sorted, bills)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FiscalYear < sorted[j].FiscalYear
	})

	var overdue, future []*billingdomain.BillingRecord
	var current *billingdomain.BillingRecord
	for _, bill := range sorted {
		switch {
		case bill.FiscalYear < currentYear:
			overdue = append(overdue, bill)
		case bill.FiscalYear == currentYear:
			current = bill
		default:
			future = append(future, bill)
		}
	}

	plan := &Plan{AllFuture: future}

	// Overdue debt is cleared in full whenever any payment unit
	// arrives, even if it exceeds the requested count.
	budget := n - len(overdue)
	plan.ToSettle = append(plan.ToSettle, overdue...)
	plan.OverdueSettled = len(overdue)

	if budget > 0 && current != nil {
		plan.ToSettle = append(plan.ToSettle, current)
		plan.CurrentSettled = 1
		budget--
	}

	if budget > 0 && len(future) > 0 {
		take := budget
		if take > len(future) {
			take = len(future)
		}
		selected := future[len(future)-take:]
		plan.ToSettle = append(plan.ToSettle, selected...)
		plan.FutureSettled = selected
	}

	if len(plan.ToSettle) == 0 {
		return nil, ErrNoBillsSelected
	}

	plan.Spillover = annualInstallment.Mul(decimal.NewFromInt(int64(len(plan.FutureSettled))))

	return plan, nil
}

// ApplySpillover reduces the remaining amount of every unselected
// future bill by the spillover, floored at zero. Selected bills are
// left untouched; settlement forces them to zero separately.
func (p *Plan) ApplySpillover() {
	if p.Spillover.LessThanOrEqual(decimal.Zero) {
		return
	}
	for _, bill := range p.AllFuture {
		if p.isFutureSelected(bill) {
			continue
		}
		reduced := bill.RemainingAmount.Sub(p.Spillover)
		if reduced.IsNegative() {
			reduced = decimal.Zero
		}
		bill.RemainingAmount = reduced
	}
}

func (p *Plan) isFutureSelected(bill *billingdomain.BillingRecord) bool {
	for _, selected := range p.FutureSettled {
		if selected.ID == bill.ID {
			return true
		}
	}
	return false
}
