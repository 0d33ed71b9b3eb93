package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	billingrepo "github.com/landgov/parcelledger/internal/billing/repository"
	billingservice "github.com/landgov/parcelledger/internal/billing/service"
	"github.com/landgov/parcelledger/internal/clock"
	"github.com/landgov/parcelledger/internal/config"
	parceldomain "github.com/landgov/parcelledger/internal/parcel/domain"
	parcelrepo "github.com/landgov/parcelledger/internal/parcel/repository"
	paymentdomain "github.com/landgov/parcelledger/internal/payment/domain"
	paymentrepo "github.com/landgov/parcelledger/internal/payment/repository"
	paymentservice "github.com/landgov/parcelledger/internal/payment/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	srv    *Server
	node   *snowflake.Node
	parcel *parceldomain.Parcel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&parceldomain.Parcel{},
		&parceldomain.LeaseAgreement{},
		&billingdomain.BillingRecord{},
		&billingdomain.PaymentOrder{},
		&billingdomain.OrderBillItem{},
		&paymentdomain.FinancialTransaction{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:         gdb,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Repo:       paymentrepo.Provide(),
		ParcelRepo: parcelrepo.Provide(),
		BillRepo:   billingrepo.ProvideBillRepository(),
	})

	orderSvc := billingservice.NewService(billingservice.Params{
		DB:         gdb,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Tuning:     config.NewStaticTuningHolder(config.DefaultMaintenanceTuning()),
		ParcelRepo: parcelrepo.Provide(),
		BillRepo:   billingrepo.ProvideBillRepository(),
		OrderRepo:  billingrepo.ProvideOrderRepository(),
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        config.Config{},
		DB:         gdb,
		PaymentSvc: paymentSvc,
		BillRepo:   billingrepo.ProvideBillRepository(),
		OrderRepo:  billingrepo.ProvideOrderRepository(),
		OrderSvc:   orderSvc,
	})

	parcel := &parceldomain.Parcel{ID: node.Generate(), UPIN: "AA-01-0001"}
	require.NoError(t, gdb.Create(parcel).Error)
	lease := &parceldomain.LeaseAgreement{
		ID:                node.Generate(),
		ParcelID:          parcel.ID,
		AnnualInstallment: decimal.NewFromInt(1000),
	}
	require.NoError(t, gdb.Create(lease).Error)

	return &fixture{db: gdb, srv: srv, node: node, parcel: parcel}
}

func (f *fixture) addBill(t *testing.T, year int, amount string, status billingdomain.BillStatus) *billingdomain.BillingRecord {
	t.Helper()
	due := decimal.RequireFromString(amount)
	bill := &billingdomain.BillingRecord{
		ID:              f.node.Generate(),
		ParcelID:        f.parcel.ID,
		UPIN:            f.parcel.UPIN,
		FiscalYear:      year,
		BaseAmount:      due,
		AmountDue:       due,
		RemainingAmount: due,
		Status:          status,
		DueDate:         time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.db.Create(bill).Error)
	return bill
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func notification(txnID, upin string, n int) map[string]any {
	return map[string]any{
		"transactionId": txnID,
		"upin":          upin,
		"number":        n,
		"amountPaid":    "1000",
	}
}

func TestPaymentNotificationSettles(t *testing.T) {
	f := newFixture(t)
	bill := f.addBill(t, 2024, "1000", billingdomain.BillStatusUnpaid)

	rec := f.do(t, http.MethodPost, "/api/payments/notifications", notification("T1", f.parcel.UPIN, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp paymentNotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	require.Len(t, resp.Data.SettledBills, 1)
	require.Equal(t, bill.FiscalYear, resp.Data.SettledBills[0].FiscalYear)
}

func TestPaymentNotificationBusinessRejection(t *testing.T) {
	f := newFixture(t)

	// Unknown parcel: transport 200, business failure in the payload.
	rec := f.do(t, http.MethodPost, "/api/payments/notifications", notification("T1", "ZZ-99-9999", 1))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp paymentNotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, "parcel_not_found", resp.Error)

	// Replay of a settled transaction is also a business failure.
	f.addBill(t, 2024, "1000", billingdomain.BillStatusUnpaid)
	rec = f.do(t, http.MethodPost, "/api/payments/notifications", notification("T2", f.parcel.UPIN, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/payments/notifications", notification("T2", f.parcel.UPIN, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, "duplicate_transaction", resp.Error)
}

func TestPaymentNotificationMalformedPayload(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/payments/notifications", map[string]any{"upin": f.parcel.UPIN})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "validation_error", resp.Error.Type)
}

func TestListBillsPaginates(t *testing.T) {
	f := newFixture(t)
	for year := 2022; year <= 2024; year++ {
		f.addBill(t, year, "1000", billingdomain.BillStatusUnpaid)
	}

	rec := f.do(t, http.MethodGet, "/api/bills?upin="+f.parcel.UPIN+"&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listBillsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Bills, 2)
	require.Equal(t, 2022, resp.Bills[0].FiscalYear)
	require.True(t, resp.PageInfo.HasMore)
	require.NotEmpty(t, resp.PageInfo.NextPageToken)

	rec = f.do(t, http.MethodGet, "/api/bills?upin="+f.parcel.UPIN+"&page_size=2&page_token="+resp.PageInfo.NextPageToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Bills, 1)
	require.Equal(t, 2024, resp.Bills[0].FiscalYear)
	require.False(t, resp.PageInfo.HasMore)
}

func TestListBillsRequiresUPIN(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/bills", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateOrderEndpoint(t *testing.T) {
	f := newFixture(t)
	f.addBill(t, 2023, "1000", billingdomain.BillStatusUnpaid)
	f.addBill(t, 2024, "1000", billingdomain.BillStatusUnpaid)

	rec := f.do(t, http.MethodPost, "/api/orders", map[string]any{
		"upin":          f.parcel.UPIN,
		"numberOfBills": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var order billingdomain.PaymentOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.NotEmpty(t, order.OrderNumber)
	require.Len(t, order.Items, 2)

	// The new order is retrievable through the lookup endpoint.
	rec = f.do(t, http.MethodGet, "/api/orders/"+order.OrderNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Unknown parcels map to 404, malformed payloads to 400.
	rec = f.do(t, http.MethodPost, "/api/orders", map[string]any{"upin": "ZZ-99-9999", "numberOfBills": 1})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", map[string]any{"upin": f.parcel.UPIN})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderByNumberNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/orders/ORD-MISSING", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMaintenanceEndpointsWithoutScheduler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/admin/maintenance/run", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/maintenance/runs", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
