package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/infra/logging"
	"storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/slicer"
	"storefront/internal/infra/storage"
	"storefront/internal/reconciler"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//.envは任意（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.IsDev()})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	txm := infraRepo.NewTxManagerGorm(gormDB)
	fileRepo := infraRepo.NewFileGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	catalogRepo := infraRepo.NewCatalogGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	quoteRepo := infraRepo.NewQuoteGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)

	//外部サービス
	blobs, err := storage.NewS3Store(ctx, storage.Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PublicBaseURL:   cfg.S3PublicBaseURL,
	}, logger)
	if err != nil {
		return err
	}
	slicerClient := slicer.NewClient(cfg.SlicerURL)
	paymentClient := payment.NewClient(cfg.PaymentURL, cfg.PaymentAPIKey)

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}

	//スライス結果のポーリング
	notifier := usecase.NewCartNotifier(cartRepo, logger)
	rec := reconciler.NewReconciler(fileRepo, slicerClient, cfg.SlicerRPS, logger)
	rec.OnResolved(notifier.FileResolved)
	scheduler := reconciler.NewScheduler(rec, fileRepo, cfg.ReconcileMinInterval, cfg.ReconcileMaxInterval, logger)

	//Usecase生成
	fileUC := usecase.NewFileUsecase(txm, fileRepo, cartRepo, catalogRepo, blobs, paymentClient,
		rec.Dispatcher(), scheduler, notifier, idGen, clock,
		usecase.FileConfig{Retention: cfg.FileRetention, MaxUploadBytes: cfg.MaxUploadBytes}, logger)
	cartUC := usecase.NewCartUsecase(txm, cartRepo, cartRepo, fileRepo, catalogRepo, notifier, cfg.FreeShippingThreshold)
	checkoutUC := usecase.NewCheckoutUsecase(txm, orderRepo, catalogRepo, paymentClient, notifier, clock,
		usecase.CheckoutConfig{
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			TaxRate:               cfg.TaxRate,
			OrderStatusOptions:    orderStatusOptions(cfg),
			AbandonAfter:          cfg.CheckoutAbandonAfter,
		}, logger)
	orderUC := usecase.NewOrderUsecase(txm)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, auditRepo, clock)
	quoteUC := usecase.NewQuoteUsecase(cartRepo, cartRepo, fileRepo, catalogRepo, quoteRepo, clock, logger)

	//Handler生成
	srv := server.New(cfg, server.Handlers{
		Files:      handler.NewFileHandler(fileUC, cfg.MaxUploadBytes),
		Carts:      handler.NewCartHandler(cartUC, notifier),
		Checkout:   handler.NewCheckoutHandler(checkoutUC, cfg.WebhookSecret),
		Orders:     handler.NewOrderHandler(orderUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
		Quotes:     handler.NewQuoteHandler(quoteUC),
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	//保存期限切れファイルの削除と、決済セッションが付かなかった注文の取り消し
	g.Go(func() error {
		ticker := time.NewTicker(cfg.JanitorInterval)
		defer ticker.Stop()
		abandoned := time.NewTicker(cfg.CheckoutAbandonAfter)
		defer abandoned.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-abandoned.C:
				n, err := checkoutUC.ReleaseAbandoned(gctx)
				if err != nil {
					logger.Error("release abandoned checkouts failed", zap.Error(err))
				}
				if n > 0 {
					logger.Info("abandoned checkouts released", zap.Int("count", n))
				}
			case <-ticker.C:
				n, err := fileUC.PurgeExpired(gctx)
				if err != nil {
					logger.Error("purge expired files failed", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("expired files purged", zap.Int("count", n))
				}
			}
		}
	})

	return g.Wait()
}

func orderStatusOptions(cfg config.Config) []string {
	if len(cfg.OrderStatusSequence) == 0 {
		return model.DefaultOrderStatusOptions
	}
	return cfg.OrderStatusSequence
}
