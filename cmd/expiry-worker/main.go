package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/activity-bookings/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/activity-bookings/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/activity-bookings/internal/adapters/redis"
	"github.com/robertarktes/activity-bookings/internal/booking"
	"github.com/robertarktes/activity-bookings/internal/config"
	"github.com/robertarktes/activity-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
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
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("bookings"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)

	service := booking.NewService(repo, redisCache, audit, nil, logger, cfg)

	worker := NewExpiryWorker(service, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// ExpiryWorker enforces deadlines: orders unpaid past their payment
// deadline are cancelled with the timeout reason (releasing capacity),
// and waitlist entries past their expiry are marked expired.
type ExpiryWorker struct {
	service *booking.Service
	logger  observability.Logger
}

func NewExpiryWorker(service *booking.Service, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{service: service, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs the order and waitlist expirations concurrently; they
// touch disjoint rows.
func (w *ExpiryWorker) sweep(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		expired, err := w.service.ExpireOverdueOrders(ctx)
		if err != nil {
			return errors.Wrap(err, "expire overdue orders")
		}
		if expired > 0 {
			w.logger.WithField("count", expired).Info("expired overdue orders")
		}
		return nil
	})
	g.Go(func() error {
		stale, err := w.service.ExpireWaitlistEntries(ctx)
		if err != nil {
			return errors.Wrap(err, "expire waitlist entries")
		}
		if stale > 0 {
			w.logger.WithField("count", stale).Info("expired waitlist entries")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		w.logger.Error("expiry sweep failed: ", err)
	}
}
