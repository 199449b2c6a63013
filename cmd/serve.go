package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/analytics"
	"github.com/spigell/repo-matcher/internal/server"
	"github.com/spigell/repo-matcher/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching API over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is :8080)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger("server")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the repo-matcher server", zap.String("version", version))

	config.Telemetry.ServiceVersion = version
	tel, err := telemetry.Setup(ctx, config.Telemetry)
	if err != nil {
		logger.Fatal("initializing telemetry", zap.Error(err))
	}
	if tel != nil {
		logger.Info("telemetry initialized", zap.String("endpoint", config.Telemetry.Endpoint))
	} else {
		logger.Info("telemetry disabled", zap.String("reason", "no endpoint configured"))
	}

	directory, closeDirectory, err := newDirectory(ctx, config.Users, logger)
	if err != nil {
		logger.Fatal("preparing user directory", zap.Error(err))
	}
	defer closeDirectory()

	sink, closeSink, err := newSink(ctx, config.Analytics, logger)
	if err != nil {
		logger.Fatal("preparing analytics", zap.Error(err))
	}
	dispatcher := analytics.NewDispatcher(sink, config.Analytics.Timeout, logger)

	service, err := newService(ctx, config, directory, dispatcher, logger)
	if err != nil {
		logger.Fatal("preparing matching service", zap.Error(err))
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	serverConfig := config.Server
	serverConfig.Tracing = tel != nil
	serverConfig.ServiceName = config.Telemetry.ServiceName

	if err := server.New(service, serverConfig, logger).Run(ctx); err != nil {
		logger.Error("serving", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dispatcher.Close()
	if err := closeSink(); err != nil {
		logger.Warn("closing analytics sink", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
