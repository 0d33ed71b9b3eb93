package domain

import "errors"

var (
	ErrBillNotFound      = errors.New("bill_not_found")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrInvalidOrderInput = errors.New("invalid_order_input")
	ErrNoBillsForOrder   = errors.New("no_bills_for_order")
)
