package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/landgov/parcelledger/internal/rate/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("rate.resolver"),
	}
}

// Resolve selects the active configuration row effective at asOf. When
// windows overlap, the most recent effective_from wins. A missing
// configuration resolves to zero rather than halting billing, logged as
// a degraded condition.
func (s *Service) Resolve(ctx context.Context, rateType string, asOf time.Time) (domain.Resolution, error) {
	rateType = strings.TrimSpace(rateType)

	var cfg domain.RateConfiguration
	err := s.db.WithContext(ctx).
		Where("rate_type = ? AND is_active = ? AND effective_from <= ?", rateType, true, asOf).
		Where("effective_until IS NULL OR effective_until >= ?", asOf).
		Order("effective_from desc").
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("no effective rate configuration, defaulting to zero",
				zap.String("rate_type", rateType),
				zap.Time("as_of", asOf),
			)
			return domain.Resolution{
				Value:  decimal.Zero,
				Source: domain.SourceDefaultedMissing,
			}, nil
		}
		return domain.Resolution{}, err
	}

	return domain.Resolution{
		Value:  cfg.RateValue,
		Source: domain.SourceResolved,
	}, nil
}

var _ Resolver = (*Service)(nil)
