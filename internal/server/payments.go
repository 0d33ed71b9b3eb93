package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/landgov/parcelledger/internal/allocation"
	paymentdomain "github.com/landgov/parcelledger/internal/payment/domain"
	"github.com/shopspring/decimal"
)

type paymentNotificationRequest struct {
	TransactionID  string          `json:"transactionId" binding:"required"`
	UPIN           string          `json:"upin" binding:"required"`
	Number         int             `json:"number" binding:"required"`
	AmountPaid     decimal.Decimal `json:"amountPaid"`
	PaymentDate    string          `json:"paymentDate"`
	PaymentChannel string          `json:"paymentChannel"`
	BankBranch     string          `json:"bankBranch"`
	BankAccount    string          `json:"bankAccount"`
	Notes          string          `json:"notes"`
}

type paymentNotificationResponse struct {
	Success bool                            `json:"success"`
	Data    *paymentdomain.AllocationResult `json:"data,omitempty"`
	Error   string                          `json:"error,omitempty"`
	Message string                          `json:"message,omitempty"`
}

// HandlePaymentNotification ingests one settlement notification from the
// bank gateway. The transport answer is 200 for every well-formed
// request; success=false carries the business rejection so the gateway
// does not retry what will never succeed.
func (s *Server) HandlePaymentNotification(c *gin.Context) {
	var req paymentNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	input := paymentdomain.ProcessPaymentInput{
		BankTxnID:      req.TransactionID,
		UPIN:           req.UPIN,
		NumberOfBills:  req.Number,
		AmountPaid:     req.AmountPaid,
		PaymentChannel: req.PaymentChannel,
		BankBranch:     req.BankBranch,
		BankAccount:    req.BankAccount,
		Notes:          req.Notes,
	}
	if req.PaymentDate != "" {
		paidAt, err := time.Parse(time.RFC3339, req.PaymentDate)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		input.PaymentDate = paidAt
	}

	result, err := s.paymentSvc.ProcessPayment(c.Request.Context(), input)
	if err != nil {
		if code, message, ok := businessRejection(err); ok {
			c.JSON(http.StatusOK, paymentNotificationResponse{
				Success: false,
				Error:   code,
				Message: message,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentNotificationResponse{Success: true, Data: result})
}

func businessRejection(err error) (string, string, bool) {
	switch {
	case errors.Is(err, paymentdomain.ErrDuplicateTransaction):
		return "duplicate_transaction", "transaction already processed", true
	case errors.Is(err, paymentdomain.ErrParcelNotFound):
		return "parcel_not_found", "no parcel registered under this UPIN", true
	case errors.Is(err, paymentdomain.ErrLeaseNotFound):
		return "lease_not_found", "parcel has no active lease agreement", true
	case errors.Is(err, paymentdomain.ErrNoOutstandingBills):
		return "no_outstanding_bills", "nothing left to settle on this parcel", true
	case errors.Is(err, paymentdomain.ErrInvalidInput),
		errors.Is(err, allocation.ErrNoBillsSelected):
		return "invalid_request", "notification payload is invalid", true
	default:
		return "", "", false
	}
}
