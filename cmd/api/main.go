package main

import (
	"context"
	"time"

	"shop/internal/config"
	"shop/internal/domain/model"
	"shop/internal/gateway"
	"shop/internal/handler"
	"shop/internal/infra/db"
	infraRepo "shop/internal/infra/repository"
	"shop/internal/logger"
	"shop/internal/notify"
	"shop/internal/server"
	"shop/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// 期限切れホールドの掃除間隔
const sweepInterval = 5 * time.Minute

func main() {
	//.envは無くても起動はできる（環境変数直渡しの構成）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Options{
		Service: "shop-api",
		Env:     cfg.GoEnv,
		Level:   cfg.LogLevel,
	})

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		panic(err)
	}
	if err := gormDB.AutoMigrate(
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.StockReservation{},
		&model.DiscountCode{},
		&model.ShippingZone{},
		&model.ShippingZoneTerritory{},
		&model.ShippingRate{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderEvent{},
	); err != nil {
		panic(err)
	}

	//Repository（GORM実装）生成
	txManager := infraRepo.NewTxManagerGorm(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	cartItemRepo := infraRepo.NewCartItemGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	reservationRepo := infraRepo.NewReservationGormRepository(gormDB)
	discountRepo := infraRepo.NewDiscountGormRepository(gormDB)
	shippingRepo := infraRepo.NewShippingGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	orderEventRepo := infraRepo.NewOrderEventGormRepository(gormDB)

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}
	gw := gateway.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayAPIKey)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.NotifyURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.NotifyURL)
	}

	//Usecase生成
	quoteUC := usecase.NewQuoteUsecase(shippingRepo, discountRepo, clock)
	reservationUC := usecase.NewReservationUsecase(txManager, productRepo, reservationRepo, clock)
	cartUC := usecase.NewCartUsecase(txManager, cartRepo, cartItemRepo, productRepo)
	checkoutUC := usecase.NewCheckoutUsecase(
		cartRepo, cartItemRepo, productRepo,
		quoteUC, reservationUC, gw, idGen, log, cfg.ReservationTTL,
	)
	settlementUC := usecase.NewSettlementUsecase(
		txManager, orderRepo, orderItemRepo, orderEventRepo, shippingRepo,
		reservationUC, notifier, clock, log,
	)
	orderUC := usecase.NewOrderUsecase(txManager, orderRepo, orderItemRepo, orderEventRepo, notifier, clock, log)

	//Handler生成
	handlers := server.Handlers{
		Cart:     handler.NewCartHandler(cartUC),
		Checkout: handler.NewCheckoutHandler(checkoutUC),
		Order:    handler.NewOrderHandler(orderUC),
		Webhook:  handler.NewWebhookHandler(settlementUC, cfg.WebhookSecret, log),
	}

	//期限切れホールドの定期掃除。取り逃しても読み側は期限で除外する
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for range t.C {
			n, err := reservationUC.SweepExpired(context.Background())
			if err != nil {
				log.Error("reservation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("swept expired reservations", "count", n)
			}
		}
	}()

	//Server起動
	addr := ":" + cfg.Port
	log.Info("starting server", "addr", addr)
	if err := server.Start(addr, cfg, handlers); err != nil {
		panic(err)
	}
}
