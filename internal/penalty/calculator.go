package penalty

import (
	"context"
	"fmt"
	"time"

	"github.com/landgov/parcelledger/internal/clock"
	ratedomain "github.com/landgov/parcelledger/internal/rate/domain"
	rateservice "github.com/landgov/parcelledger/internal/rate/service"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var daysPerYear = decimal.NewFromInt(365)

// Result is the outcome of a penalty computation.
type Result struct {
	Penalty  decimal.Decimal
	RateUsed decimal.Decimal
}

type Params struct {
	fx.In

	Resolver rateservice.Resolver
	Clock    clock.Clock
	Log      *zap.Logger
}

// Calculator computes late-payment penalties from the configured annual
// rate and grace period. Pure with respect to its inputs except for the
// rate lookup.
type Calculator struct {
	resolver rateservice.Resolver
	clock    clock.Clock
	log      *zap.Logger
}

func NewCalculator(p Params) *Calculator {
	return &Calculator{
		resolver: p.Resolver,
		clock:    p.Clock,
		log:      p.Log.Named("penalty.calculator"),
	}
}

// Calculate returns the penalty accrued on principal since dueDate.
// Zero when the bill is not yet overdue or still within grace days.
// penalty = principal * annualRate * effectiveOverdueDays / 365,
// rounded to the cent.
func (c *Calculator) Calculate(ctx context.Context, principal decimal.Decimal, dueDate time.Time) (Result, error) {
	now := c.clock.Now()
	if !now.After(dueDate) {
		return Result{Penalty: decimal.Zero, RateUsed: decimal.Zero}, nil
	}

	grace, err := c.resolver.Resolve(ctx, ratedomain.RateTypeGraceDays, now)
	if err != nil {
		return Result{}, fmt.Errorf("resolve grace days: %w", err)
	}
	rate, err := c.resolver.Resolve(ctx, ratedomain.RateTypePenalty, now)
	if err != nil {
		return Result{}, fmt.Errorf("resolve penalty rate: %w", err)
	}
	if rate.Defaulted() {
		c.log.Warn("penalty rate missing, computing with zero rate",
			zap.Time("due_date", dueDate))
	}

	daysOverdue := int64(now.Sub(dueDate) / (24 * time.Hour))
	effectiveDays := daysOverdue - grace.Value.IntPart()
	if effectiveDays <= 0 {
		return Result{Penalty: decimal.Zero, RateUsed: rate.Value}, nil
	}

	penalty := principal.
		Mul(rate.Value).
		Mul(decimal.NewFromInt(effectiveDays)).
		Div(daysPerYear).
		Round(2)

	return Result{Penalty: penalty, RateUsed: rate.Value}, nil
}
