package domain

import "errors"

var (
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrParcelNotFound       = errors.New("parcel_not_found")
	ErrLeaseNotFound        = errors.New("lease_not_found")
	ErrNoOutstandingBills   = errors.New("no_outstanding_bills")
	ErrInvalidInput         = errors.New("invalid_payment_input")
)
