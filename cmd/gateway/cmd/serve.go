package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/gateway/multiapi/common"
	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/graceful"
	"github.com/gateway/multiapi/common/logger"
	"github.com/gateway/multiapi/common/tracing"
	"github.com/gateway/multiapi/internal/breaker"
	"github.com/gateway/multiapi/internal/cache"
	"github.com/gateway/multiapi/internal/configstore"
	"github.com/gateway/multiapi/internal/controlplane"
	"github.com/gateway/multiapi/internal/dataplane"
	"github.com/gateway/multiapi/internal/dispatch"
	"github.com/gateway/multiapi/internal/keymanager"
	"github.com/gateway/multiapi/internal/quota"
	"github.com/gateway/multiapi/internal/router"
	"github.com/gateway/multiapi/internal/secret"
	"github.com/gateway/multiapi/internal/streaminghub"
	"github.com/gateway/multiapi/internal/usage"
	"github.com/gateway/multiapi/middleware"
	"github.com/gateway/multiapi/model"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the data-plane and control-plane HTTP servers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	logger.SetupLogger()
	logger.Logger.Info("starting gateway")

	if err := model.InitDB(); err != nil {
		return err
	}

	if config.RedisConnString != "" {
		if err := common.InitRedisClient(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.TracingEnabled {
		if err := tracing.Init(ctx); err != nil {
			logger.Logger.Error("tracing init failed, continuing without it", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background()) }()
		}
	}

	box, err := secret.NewBox(config.SecretsKey)
	if err != nil {
		return err
	}

	br := breaker.New(breaker.Config{
		Window:       time.Duration(config.BreakerWindowSeconds) * time.Second,
		FailureRatio: config.BreakerFailRatio,
		MinSamples:   config.BreakerSampleMin,
		Cooldown:     time.Duration(config.BreakerCooldownSeconds) * time.Second,
		CooldownCap:  time.Duration(config.BreakerMaxCooldownSeconds) * time.Second,
	})

	responseCache, err := cache.New(config.CacheMaxEntries, config.CacheTTLChat)
	if err != nil {
		return err
	}

	streams := streaminghub.New(config.StreamMaxConcurrentPerTenant)

	pipeline := &dispatch.Pipeline{
		Config:     configstore.New(),
		Quota:      quota.New(),
		Cache:      responseCache,
		CacheTheta: config.CacheTemperatureThreshold,
		Router:     router.New(br),
		Breaker:    br,
		Keys:       keymanager.New(box),
		Usage:      usage.New(),
		Streams:    streams,
	}
	pipeline.Config.SetStrategy(router.Strategy(config.DefaultStrategy), router.DefaultWeights)

	dataSrv := &dataplane.Server{Pipeline: pipeline}
	controlSrv := &controlplane.Server{
		Config:  pipeline.Config,
		Keys:    pipeline.Keys,
		Breaker: br,
		Streams: streams,
		Usage:   pipeline.Usage,
	}

	gin.SetMode(gin.ReleaseMode)
	if config.DebugEnabled {
		gin.SetMode(gin.DebugMode)
	}

	dataEngine := gin.New()
	dataEngine.Use(middleware.RelayPanicRecover(), middleware.RequestTracker(), middleware.RequestId(), middleware.TracingMiddleware())
	for _, prefix := range []string{"/v1/v1/messages", "/openai/v1/messages", "/openai/v1/v1/messages", "/api/v1/v1/messages"} {
		dataEngine.Use(middleware.RewriteClaudeMessagesPrefix(prefix, dataEngine))
	}
	dataSrv.Register(dataEngine)

	adminEngine := gin.New()
	adminEngine.Use(middleware.RelayPanicRecover(), middleware.RequestTracker(), middleware.RequestId())
	controlSrv.Register(adminEngine)

	dataHTTP := &http.Server{
		Addr:              config.GatewayHost + ":" + strconv.Itoa(config.GatewayPort),
		Handler:           dataEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminHTTP := &http.Server{
		Addr:              config.AdminHost + ":" + strconv.Itoa(config.AdminPort),
		Handler:           adminEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Logger.Info("data plane listening", zap.String("addr", dataHTTP.Addr))
		errCh <- dataHTTP.ListenAndServe()
	}()
	go func() {
		logger.Logger.Info("control plane listening", zap.String("addr", adminHTTP.Addr))
		errCh <- adminHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	graceful.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = dataHTTP.Shutdown(shutdownCtx)
	_ = adminHTTP.Shutdown(shutdownCtx)

	if err := graceful.Drain(shutdownCtx); err != nil {
		logger.Logger.Warn("graceful drain did not complete cleanly", zap.Error(err))
	}

	return nil
}
