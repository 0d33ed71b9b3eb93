package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingservice "github.com/landgov/parcelledger/internal/billing/service"
)

type generateOrderRequest struct {
	UPIN          string `json:"upin" binding:"required"`
	NumberOfBills int    `json:"numberOfBills" binding:"required,min=1"`
}

// GenerateOrder creates a payment order over the parcel's oldest
// outstanding bills for presentation at the bank.
func (s *Server) GenerateOrder(c *gin.Context) {
	var req generateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderSvc.GenerateOrder(c.Request.Context(), billingservice.GenerateOrderInput{
		UPIN:          req.UPIN,
		NumberOfBills: req.NumberOfBills,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}
