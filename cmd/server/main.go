package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/stayescrow/internal/blockchain"
	"github.com/example/stayescrow/internal/config"
	"github.com/example/stayescrow/internal/database"
	"github.com/example/stayescrow/internal/handlers"
	"github.com/example/stayescrow/internal/logging"
	"github.com/example/stayescrow/internal/messaging"
	"github.com/example/stayescrow/internal/routes"
	"github.com/example/stayescrow/internal/services"
)

func main() {
	cfg := config.Load()

	_, logCloser := logging.Setup("payments-svc", cfg.AppEnv, cfg.LogFile)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.Connect(cfg.DatabaseURL)

	var contract services.EscrowContract
	client, err := blockchain.Dial(ctx, cfg.RPCURL, blockchain.Config{
		ContractAddress: cfg.ContractAddress,
		PrivateKey:      cfg.PrivateKey,
		FallbackAdmin:   cfg.FallbackAdmin,
		GasLimit:        cfg.GasLimit,
		Poll: blockchain.PollConfig{
			Interval:    cfg.ReceiptInterval,
			MaxAttempts: cfg.ReceiptMaxAttempts,
			SettleDelay: cfg.SettleDelay,
		},
	})
	if err != nil {
		log.Printf("[Blockchain] escrow contract unavailable, intents fall back to direct transfers: %v", err)
	} else {
		defer client.Close()
		contract = client
		if !client.Configured() {
			log.Printf("[Blockchain] WEB3_CONTRACT_ADDRESS not set, intents fall back to direct transfers")
		}
	}

	var upstream services.PropertyReader
	if cfg.PropertyServiceURL != "" {
		upstream = services.NewPropertyServiceClient(cfg.PropertyServiceURL)
	}
	properties := services.NewCachedPropertyReader(services.NewPropertyDatabaseService(db), upstream)

	ledger := services.NewLedger(db)
	settlement := services.NewSettlementService(ledger, properties, contract, services.SettlementOptions{
		IntentChainID:  cfg.IntentChainID,
		StatusNotifier: services.NewBookingServiceClient(cfg.BookingServiceURL),
		Alerter:        services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat),
	})

	var store messaging.LastIDStore
	if cfg.RedisURL != "" {
		redisStore, err := messaging.NewRedisLastIDStore(cfg.RedisURL)
		if err != nil {
			log.Printf("[Redis] last booking id will not be shared: %v", err)
		} else {
			defer redisStore.Close()
			store = redisStore
		}
	}
	queue := messaging.NewBookingQueue(0, store)

	if cfg.KafkaBroker != "" {
		consumer, err := messaging.NewKafkaConsumer(messaging.KafkaConfig{
			Broker:  cfg.KafkaBroker,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaBookingCreatedTopic,
		}, queue)
		if err != nil {
			log.Printf("[Kafka] booking-created consumer disabled: %v", err)
		} else {
			go consumer.Run(ctx)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "Stay Escrow Payments",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, cfg, routes.Dependencies{
		DB:         db,
		Settlement: settlement,
		Reputation: services.NewReputationService(ledger),
		Queue:      queue,
	})

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Printf("fiber.Shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
