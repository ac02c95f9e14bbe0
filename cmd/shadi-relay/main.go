package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/auth"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/config"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/gateway"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/logging"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/notify"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/presence"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/ratelimit"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/relay"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/server"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/store"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/typing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "shadi-relay",
		Short: "Realtime presence and messaging relay",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Handshake token signing secret (overrides env)")
	cmd.PersistentFlags().String("push-endpoint", defaults.GetString("push.endpoint"), "Push gateway endpoint URL")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "push.endpoint", "push-endpoint")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := store.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sqlStore, err := store.NewSQLStore(db)
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
	})
	if err != nil {
		return err
	}

	registry := presence.NewRegistry()

	limiter := ratelimit.NewLimiter(appConfig.NotificationLimits,
		ratelimit.WithSweepInterval(appConfig.SweepInterval))
	limiter.Start()
	defer limiter.Stop()

	var provider notify.Provider = notify.NopProvider{}
	if appConfig.PushEndpoint != "" {
		httpProvider, err := notify.NewHTTPProvider(notify.HTTPProviderConfig{
			Endpoint: appConfig.PushEndpoint,
			APIKey:   appConfig.PushAPIKey,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		provider = httpProvider
	}

	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		Provider:    provider,
		Presence:    registry,
		Limiter:     limiter,
		Logger:      logger,
		PushTimeout: appConfig.PushTimeout,
	})
	if err != nil {
		return err
	}

	relayService, err := relay.NewService(relay.ServiceConfig{
		Store:        sqlStore,
		Router:       registry,
		Notifier:     dispatcher,
		IDProvider:   relay.NewUUIDProvider(),
		Logger:       logger,
		StoreTimeout: appConfig.StoreTimeout,
	})
	if err != nil {
		return err
	}

	throttle := typing.NewThrottle(typing.WithCooldown(appConfig.TypingCooldown))

	relayGateway, err := gateway.New(gateway.Config{
		Verifier:     verifier,
		Registry:     registry,
		Relay:        relayService,
		Throttle:     throttle,
		Store:        sqlStore,
		Logger:       logger,
		StoreTimeout: appConfig.StoreTimeout,
	})
	if err != nil {
		return err
	}
	defer relayGateway.Shutdown()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		GatewayHandler: relayGateway.Handler(),
		Registry:       registry,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		relayGateway.Shutdown()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
