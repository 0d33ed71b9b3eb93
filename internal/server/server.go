package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	billingservice "github.com/landgov/parcelledger/internal/billing/service"
	"github.com/landgov/parcelledger/internal/config"
	"github.com/landgov/parcelledger/internal/maintenance"
	"github.com/landgov/parcelledger/internal/observability"
	obsmiddleware "github.com/landgov/parcelledger/internal/observability/logger"
	obstracing "github.com/landgov/parcelledger/internal/observability/tracing"
	paymentservice "github.com/landgov/parcelledger/internal/payment/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	paymentSvc  paymentservice.Processor
	billRepo    billingdomain.BillRepository
	orderRepo   billingdomain.OrderRepository
	orderSvc    *billingservice.Service
	maintenance *maintenance.Scheduler
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	PaymentSvc  paymentservice.Processor
	BillRepo    billingdomain.BillRepository
	OrderRepo   billingdomain.OrderRepository
	OrderSvc    *billingservice.Service
	Maintenance *maintenance.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		paymentSvc:  p.PaymentSvc,
		billRepo:    p.BillRepo,
		orderRepo:   p.OrderRepo,
		orderSvc:    p.OrderSvc,
		maintenance: p.Maintenance,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// The bank gateway retries on non-200, so business failures still
	// answer 200 with success=false in the payload.
	api.POST("/payments/notifications", s.HandlePaymentNotification)

	api.GET("/bills", s.ListBills)
	api.POST("/orders", s.GenerateOrder)
	api.GET("/orders/:orderNumber", s.GetOrderByNumber)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/maintenance/run", s.TriggerMaintenance)
	admin.GET("/maintenance/runs", s.ListMaintenanceRuns)
}
