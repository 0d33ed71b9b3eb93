package service

import (
	"context"
	"time"

	"github.com/landgov/parcelledger/internal/rate/domain"
)

// Resolver resolves the effective value for a rate type at an instant.
type Resolver interface {
	Resolve(ctx context.Context, rateType string, asOf time.Time) (domain.Resolution, error)
}
