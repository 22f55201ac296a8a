package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bountyexpo/internal/api"
	"bountyexpo/internal/auth"
	"bountyexpo/internal/jobs"
	"bountyexpo/internal/pubsub"
	"bountyexpo/internal/schema"
	"bountyexpo/internal/service"
	"bountyexpo/internal/storage"
	"bountyexpo/internal/ws"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()
			return serve(cmd.Context(), logger, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	return cmd
}

func serve(ctx context.Context, logger *zap.Logger, addrOverride string) error {
	a, err := openApp(ctx, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	bus := pubsub.New(a.rdb, logger)
	var forwarder *pubsub.RabbitForwarder
	if cfg.RabbitMQURL != "" {
		forwarder, err = pubsub.NewRabbitForwarder(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ forwarding disabled", zap.Error(err))
			forwarder = nil
		} else {
			defer forwarder.Close()
			bus.SetForwarder(forwarder)
		}
	}

	hub := ws.NewHub(logger)
	if streams := bus.GetStreams(); streams != nil {
		hub.SetStreamsProvider(&wsStreamsAdapter{streams: streams})
	}
	bus.SetWSHub(hub)

	files, proofs, err := a.proofService(ctx)
	if err != nil {
		return err
	}

	svc := a.services(bus, proofs)
	hub.SetCommandHandler(ws.NewCommandHandler(svc.bounties, svc.requests, svc.completion, logger))

	var jobServer *jobs.JobServer
	if cfg.RedisAddr != "" {
		var client *asynq.Client
		jobServer, client = jobs.NewJobServer(cfg.RedisAddr, a.store, bus, logger)
		if forwarder != nil {
			jobServer.SetDeliverer(forwarder)
		}
		jobClient := service.NewAsynqJobClient(client)
		svc.escalator.SetJobClient(jobClient)
		svc.requests.SetJobClient(jobClient)
		svc.completion.SetJobClient(jobClient)
	} else {
		logger.Warn("REDIS_ADDR not set; background jobs, event replay and Redis locks are disabled")
	}

	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.Add("escrow-audit", cfg.AuditSchedule, func(ctx context.Context) error {
		_, err := svc.auditor.Run(ctx)
		return err
	}); err != nil {
		return err
	}

	addr := cfg.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	srv := &http.Server{
		Addr: addr,
		Handler: api.Routes(api.Dependencies{
			Bounties:    svc.bounties,
			Requests:    svc.requests,
			Completion:  svc.completion,
			Wallet:      svc.wallet,
			Incidents:   svc.incidents,
			Auditor:     svc.auditor,
			Proofs:      proofs,
			Files:       files,
			Hub:         hub,
			Auth:        auth.NewJWTConfig(cfg.JWTSecret, cfg.AuthDevHeader),
			Admins:      cfg.AdminUsers,
			CORSOrigins: cfg.CORSAllowedOrigins,
			Log:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go hub.Run()

	g, ctx := errgroup.WithContext(ctx)
	if jobServer != nil {
		g.Go(func() error {
			if err := jobServer.Start(); err != nil {
				return fmt.Errorf("job server failed: %w", err)
			}
			<-ctx.Done()
			jobServer.Stop()
			return nil
		})
	}
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}

// proofService picks the object store for proof attachments. The local store
// is also returned so the API can serve its presigned URLs.
func (a *app) proofService(ctx context.Context) (*storage.LocalStorage, *storage.ProofService, error) {
	cfg := a.cfg
	policy := storage.NewFilePolicy(cfg.ProofMaxFileMB, cfg.ProofMaxTotalMB, cfg.ProofMIMETypes, nil)
	compiler := schema.NewCompilerWithCache(64)

	if cfg.StorageDriver == "s3" {
		s3, err := storage.NewS3Storage(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Endpoint)
		if err != nil {
			return nil, nil, err
		}
		return nil, storage.NewProofService(s3, policy, compiler, a.log), nil
	}

	secret := cfg.StorageSecret
	if secret == "" {
		secret = cfg.JWTSecret
	}
	if secret == "" {
		return nil, nil, errors.New("STORAGE_SECRET or JWT_SECRET is required to sign local uploads")
	}
	local, err := storage.NewLocalStorage(cfg.StorageBaseDir, cfg.StorageBaseURL, []byte(secret))
	if err != nil {
		return nil, nil, err
	}
	return local, storage.NewProofService(local, policy, compiler, a.log), nil
}
