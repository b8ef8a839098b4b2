package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ticketry/boxoffice/internal/adapters/crdb"
	gatewayadapter "github.com/ticketry/boxoffice/internal/adapters/gateway"
	mongoadapter "github.com/ticketry/boxoffice/internal/adapters/mongo"
	"github.com/ticketry/boxoffice/internal/adapters/rabbit"
	redisadapter "github.com/ticketry/boxoffice/internal/adapters/redis"
	"github.com/ticketry/boxoffice/internal/availability"
	"github.com/ticketry/boxoffice/internal/checkout"
	"github.com/ticketry/boxoffice/internal/clock"
	"github.com/ticketry/boxoffice/internal/config"
	httphandler "github.com/ticketry/boxoffice/internal/http"
	"github.com/ticketry/boxoffice/internal/idempotency"
	"github.com/ticketry/boxoffice/internal/observability"
	"github.com/ticketry/boxoffice/internal/outbox"
	"github.com/ticketry/boxoffice/internal/ratelimit"
	"github.com/ticketry/boxoffice/internal/reservation"
	"github.com/ticketry/boxoffice/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	ledger := crdb.NewLedger(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("boxoffice")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	snapshot := redisadapter.NewAvailabilitySnapshot(redisClient, 2*time.Second)
	sessions := redisadapter.NewSessionStore(redisClient, cfg.HoldTTL+time.Hour)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := ratelimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	clk := clock.NewSystem()
	manager := reservation.NewManager(repo, ledger, clk, logger,
		reservation.WithHoldTTL(cfg.HoldTTL),
		reservation.WithOutbox(outbox.NewRecorder(repo)),
	)
	calc := availability.NewCalculator(repo, clk, snapshot)
	pay := gatewayadapter.NewClient(cfg.GatewayURL)
	finalizer := settlement.NewFinalizer(manager, pay, rabbitPub, logger, settlement.WithAudit(audit))
	controller := checkout.NewController(manager, finalizer, sessions, clk, logger, checkout.WithAudit(audit))

	handlers := httphandler.NewHandlers(controller, calc, repo, catalog, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
