package main

import (
	"context"
	"fmt"

	"bountyexpo/internal/config"
	"bountyexpo/internal/db"
	"bountyexpo/internal/lock"
	"bountyexpo/internal/payment"
	"bountyexpo/internal/service"
	"bountyexpo/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the infrastructure shared by every command.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store store.Store
	pool  *db.Pool
	rdb   *redis.Client
}

func openApp(ctx context.Context, log *zap.Logger, needRedis bool) (*app, error) {
	cfg, warnings, err := config.Load()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn("Config value coerced", zap.String("detail", w))
	}

	a := &app{cfg: cfg, log: log}
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("Using in-memory store; data is lost on restart")
		a.store = store.NewMemory()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, log)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.store = db.NewStore(pool)
	}
	a.store = store.WithTimeout(a.store, cfg.StoreTimeout)

	if needRedis && cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) processor() payment.Processor {
	if a.cfg.PaymentGatewayURL == "" {
		a.log.Warn("PAYMENT_GATEWAY_URL not set; using the sandbox processor")
		return payment.NewSandbox()
	}
	return payment.NewGateway(a.cfg.PaymentGatewayURL, a.cfg.PaymentAPIKey, a.cfg.PaymentTimeout, a.log)
}

func (a *app) retryPolicy() payment.RetryPolicy {
	p := payment.DefaultRetryPolicy()
	p.MaxRetries = uint64(a.cfg.PaymentMaxRetries)
	p.Base = a.cfg.PaymentRetryBase
	p.AttemptTimeout = a.cfg.PaymentTimeout
	p.Log = a.log
	return p
}

func (a *app) locker() lock.Locker {
	if a.cfg.LockBackend == "redis" && a.rdb != nil {
		a.log.Info("Using Redis bounty locks", zap.Duration("ttl", a.cfg.LockTTL))
		return lock.NewRedisLocker(a.rdb, a.cfg.LockTTL, a.log)
	}
	return lock.NewMutexMap()
}

// services bundles the lifecycle services built over the app's store.
type services struct {
	escalator  *service.Escalator
	escrow     *service.EscrowCoordinator
	bounties   *service.BountyService
	requests   *service.RequestService
	completion *service.CompletionService
	wallet     *service.WalletService
	incidents  *service.IncidentService
	auditor    *service.Auditor
}

func (a *app) services(bus service.EventBus, proofs service.ProofChecker) *services {
	escalator := service.NewEscalator(a.store, a.log)
	escrow := service.NewEscrowCoordinator(a.store, a.processor(), a.retryPolicy(), escalator, a.log)
	escrow.SetCommitTimeout(a.cfg.StoreTimeout)
	locker := a.locker()

	completion := service.NewCompletionService(a.store, escrow, locker, proofs, bus, a.log)
	completion.SetRevisionLimit(a.cfg.RevisionLimit)

	return &services{
		escalator:  escalator,
		escrow:     escrow,
		bounties:   service.NewBountyService(a.store, escrow, locker, bus, a.log),
		requests:   service.NewRequestService(a.store, escrow, locker, bus, a.log),
		completion: completion,
		wallet:     service.NewWalletService(a.store),
		incidents:  service.NewIncidentService(a.store, a.log),
		auditor:    service.NewAuditor(a.store, escalator, a.log),
	}
}
