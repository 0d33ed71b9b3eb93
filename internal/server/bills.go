package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	"github.com/landgov/parcelledger/pkg/db/pagination"
)

type listBillsResponse struct {
	Bills    []*billingdomain.BillingRecord `json:"bills"`
	PageInfo *pagination.PageInfo           `json:"page_info"`
}

// ListBills returns the billing history of one parcel, oldest fiscal
// year first, with cursor pagination.
func (s *Server) ListBills(c *gin.Context) {
	upin := strings.TrimSpace(c.Query("upin"))
	if upin == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if page.PageSize <= 0 || page.PageSize > 250 {
		page.PageSize = 10
	}

	bills, err := s.billRepo.ListByUPIN(c.Request.Context(), s.db, upin, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(bills, int32(page.PageSize), func(b *billingdomain.BillingRecord) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: b.ID.String()})
		return token
	})
	if len(bills) > page.PageSize {
		bills = bills[:page.PageSize]
	}

	c.JSON(http.StatusOK, listBillsResponse{Bills: bills, PageInfo: pageInfo})
}

// GetOrderByNumber returns a payment order with its bill items.
func (s *Server) GetOrderByNumber(c *gin.Context) {
	orderNumber := strings.TrimSpace(c.Param("orderNumber"))
	if orderNumber == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderRepo.FindByNumber(c.Request.Context(), s.db, orderNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
