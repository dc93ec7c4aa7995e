package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Coll76/nearbyhappenings/internal/api"
	"github.com/Coll76/nearbyhappenings/internal/api/handler"
	custommw "github.com/Coll76/nearbyhappenings/internal/api/middleware"
	"github.com/Coll76/nearbyhappenings/internal/application"
	"github.com/Coll76/nearbyhappenings/internal/config"
	"github.com/Coll76/nearbyhappenings/internal/infrastructure/postgres"
	redisinfra "github.com/Coll76/nearbyhappenings/internal/infrastructure/redis"
	"github.com/Coll76/nearbyhappenings/internal/pkg/logger"
	"github.com/Coll76/nearbyhappenings/internal/pkg/metrics"
	"github.com/Coll76/nearbyhappenings/internal/provider"
	"github.com/Coll76/nearbyhappenings/internal/provider/card"
	"github.com/Coll76/nearbyhappenings/internal/provider/mobilemoney"
	"github.com/Coll76/nearbyhappenings/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.Get()
	m := metrics.Init()

	// PostgreSQL接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	// マイグレーション実行
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		log.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	// Redis接続
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()
	lockManager := redisinfra.NewLockManager(redisClient)
	availabilityCache := redisinfra.NewAvailabilityCache(redisClient)

	// リポジトリ
	txManager := postgres.NewTxManager(db)
	slotRepo := postgres.NewSlotRepository(db)
	ticketRepo := postgres.NewTicketRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)

	// 決済プロバイダ
	providers := provider.NewRegistry(
		card.New(cfg.Providers.Card),
		mobilemoney.New(cfg.Providers.MobileMoney),
	)

	// アプリケーションサービス
	ledger := application.NewCapacityLedger(slotRepo, availabilityCache, m)
	slotService := application.NewSlotService(slotRepo, availabilityCache)
	purchaseService := application.NewPurchaseService(txManager, ledger, slotRepo, ticketRepo, paymentRepo, providers, m)
	ticketService := application.NewTicketService(txManager, ledger, slotRepo, ticketRepo, paymentRepo, providers, m)
	orchestrator := application.NewPaymentOrchestrator(txManager, paymentRepo, providers, ticketService, lockManager, m)

	// 決済照合ワーカー
	poller := worker.NewReconciliationPoller(paymentRepo, orchestrator, cfg.Worker)
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go poller.Start(workerCtx)

	// Echoサーバー
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	// ハンドラー
	slotHandler := handler.NewSlotHandler(slotService)
	purchaseHandler := handler.NewPurchaseHandler(purchaseService)
	ticketHandler := handler.NewTicketHandler(ticketService)
	callbackHandler := handler.NewCallbackHandler(orchestrator)
	healthHandler := handler.NewHealthHandler()

	// ルーティング
	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommw.MetricsBasicAuth())

	v1 := e.Group("/api/v1")
	v1.POST("/slots", slotHandler.Create)
	v1.GET("/slots", slotHandler.List)
	v1.GET("/slots/:id", slotHandler.GetByID)
	v1.GET("/slots/:id/availability", slotHandler.GetAvailability)
	v1.GET("/slots/:id/tickets", ticketHandler.ListBySlot)
	v1.GET("/slots/:id/stats", ticketHandler.GetSlotStats)

	v1.POST("/purchases", purchaseHandler.Create)

	v1.GET("/tickets/:id", ticketHandler.GetByID)
	v1.GET("/tickets/order/:order_number", ticketHandler.GetByOrderNumber)
	v1.GET("/tickets/:id/payment", ticketHandler.GetPayment)
	v1.POST("/tickets/:id/cancel", ticketHandler.Cancel)
	v1.POST("/tickets/check-in", ticketHandler.CheckIn)

	v1.POST("/callbacks/card", callbackHandler.Card)
	v1.POST("/callbacks/mobile_money", callbackHandler.MobileMoney)

	// サーバー起動
	go func() {
		addr := ":" + cfg.Server.Port
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal("サーバー起動に失敗", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("サーバーをシャットダウンしています")

	cancelWorker()
	poller.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal("サーバーのシャットダウンに失敗", zap.Error(err))
	}

	log.Info("サーバーが正常に終了しました")
}
