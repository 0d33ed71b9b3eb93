package service

import (
	"context"

	"github.com/landgov/parcelledger/internal/payment/domain"
)

// Processor reconciles incoming bank payments against the ledger.
type Processor interface {
	ProcessPayment(ctx context.Context, input domain.ProcessPaymentInput) (*domain.AllocationResult, error)
}
