package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ticketry/boxoffice/internal/adapters/crdb"
	gatewayadapter "github.com/ticketry/boxoffice/internal/adapters/gateway"
	mongoadapter "github.com/ticketry/boxoffice/internal/adapters/mongo"
	"github.com/ticketry/boxoffice/internal/adapters/rabbit"
	"github.com/ticketry/boxoffice/internal/clock"
	"github.com/ticketry/boxoffice/internal/config"
	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
	"github.com/ticketry/boxoffice/internal/settlement"
	"github.com/ticketry/boxoffice/internal/sweeper"
)

// fanoutNotifier forwards expiry events to the broker and the audit trail.
type fanoutNotifier []sweeper.Notifier

func (f fanoutNotifier) HoldExpired(ctx context.Context, hold domain.Hold) error {
	var firstErr error
	for _, n := range f {
		if err := n.HoldExpired(ctx, hold); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// The sweeper binary also hosts the compensating-void worker: both are
// background remediation loops over the same broker connection.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("boxoffice"), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	voidConsumer, err := rabbit.NewVoidConsumer(conn)
	if err != nil {
		log.Fatalf("failed to create void consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := sweeper.New(repo, clock.NewSystem(), fanoutNotifier{rabbitPub, audit}, logger)
	go sw.Run(ctx, cfg.SweepInterval)

	voids := settlement.NewVoidWorker(voidConsumer, gatewayadapter.NewClient(cfg.GatewayURL), logger)
	go func() {
		if err := voids.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("void worker stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweeper")
}
