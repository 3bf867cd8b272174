package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/classifier"
	"github.com/example/leafcheck/internal/config"
	"github.com/example/leafcheck/internal/handlers"
	"github.com/example/leafcheck/internal/hub"
	"github.com/example/leafcheck/internal/logging"
	"github.com/example/leafcheck/internal/predictclient"
	"github.com/example/leafcheck/internal/preview"
	"github.com/example/leafcheck/internal/session"
	"github.com/example/leafcheck/internal/workflow"
)

const sweepInterval = time.Minute

func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := initPreviewStore(ctx, cfg, logger)
	registry := preview.NewRegistry(store, cfg.PreviewTTL, logger)
	predictor := initPredictor(cfg, logger)

	stateHub := hub.New(logger)
	sessions := session.NewManager(newWorkflowFactory(predictor, registry, stateHub, logger), cfg.SessionIdleTTL, logger)
	sessions.OnEvict(stateHub.CloseSession)
	go sessions.Run(ctx, sweepInterval)

	router := handlers.NewRouter(handlers.Deps{
		Sessions:      sessions,
		Tokens:        session.NewTokens(cfg.SessionSecret, cfg.SessionIdleTTL),
		Hub:           stateHub,
		Previews:      registry,
		MaxUploadSize: cfg.UploadMaxBytes,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("leafcheck listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("predictor_mode", cfg.PredictorMode),
		zap.String("predict_url", cfg.PredictURL),
	)
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initPredictor(cfg *config.Config, logger *zap.Logger) classifier.Client {
	if cfg.PredictorMode == config.ModeSimulated {
		logger.Warn("using simulated predictor; no backend will be contacted")
		return classifier.Simulated{}
	}
	return predictclient.New(cfg.PredictURL, nil, logger)
}

func initPreviewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) preview.Store {
	if cfg.RedisAddr == "" {
		return preview.NewMemoryStore()
	}
	redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return preview.NewRedisStore(preview.NewRedisCache(initRedis(redisCtx, cfg.RedisAddr, logger)))
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// newWorkflowFactory builds per-session workflows whose transitions are
// pushed to the session's websocket connections.
func newWorkflowFactory(predictor classifier.Client, previews workflow.Previews, stateHub *hub.Hub, logger *zap.Logger) session.Factory {
	return func(sessionID string) *workflow.Workflow {
		wf := workflow.New(predictor, previews, logging.WithSession(logger, sessionID))
		wf.Subscribe(func(view workflow.View) {
			stateHub.Publish(sessionID, view)
		})
		return wf
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
