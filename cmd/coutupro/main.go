package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/MarcoPoloResearchLab/coutupro/internal/access"
	"github.com/MarcoPoloResearchLab/coutupro/internal/alerts"
	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"github.com/MarcoPoloResearchLab/coutupro/internal/auth"
	"github.com/MarcoPoloResearchLab/coutupro/internal/backup"
	"github.com/MarcoPoloResearchLab/coutupro/internal/config"
	"github.com/MarcoPoloResearchLab/coutupro/internal/dashboard"
	"github.com/MarcoPoloResearchLab/coutupro/internal/database"
	"github.com/MarcoPoloResearchLab/coutupro/internal/logging"
	"github.com/MarcoPoloResearchLab/coutupro/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "coutupro",
		Short:        "Tailoring workshop backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newServeCommand(),
		newCodesCommand(),
		newSessionCommand(),
		newExportCommand(),
		newImportCommand(),
		newClearCommand(),
		newAlertsCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Duration("session-ttl", defaults.GetDuration("session.ttl"), "Session lifetime")
	cmd.PersistentFlags().Duration("alert-interval", defaults.GetDuration("alerts.interval"), "Alert rule evaluation interval")
	cmd.PersistentFlags().String("timezone", defaults.GetString("workshop.timezone"), "Workshop timezone for dashboard periods")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "session.ttl", "session-ttl")
	bindFlag(cmd, "alerts.interval", "alert-interval")
	bindFlag(cmd, "workshop.timezone", "timezone")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		return err
	}

	return nil
}

// application holds the wired services shared by the server and the CLI commands.
type application struct {
	config     config.AppConfig
	logger     *zap.Logger
	db         *gorm.DB
	realtime   *server.RealtimeDispatcher
	services   *atelier.Services
	gate       *access.Gate
	dashboard  *dashboard.Aggregator
	backup     *backup.Service
	alertsTick *alerts.Scheduler
}

func openApplication(console bool) (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	newLogger := logging.NewLogger
	if console {
		newLogger = logging.NewConsoleLogger
	}
	logger, err := newLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	location, err := appConfig.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	ids := atelier.NewUUIDProvider()
	realtime := server.NewRealtimeDispatcher()
	services, err := atelier.NewServices(atelier.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ids,
		Logger:     logger,
		Notifier:   realtime,
	})
	if err != nil {
		return nil, closeOnError(db, err)
	}

	gate, err := access.NewGate(access.GateConfig{Database: db, IDProvider: ids, Logger: logger})
	if err != nil {
		return nil, closeOnError(db, err)
	}

	aggregator, err := dashboard.NewAggregator(dashboard.Config{
		Database: db,
		Settings: services.Settings,
		Location: location,
		Logger:   logger,
	})
	if err != nil {
		return nil, closeOnError(db, err)
	}

	backups, err := backup.NewService(backup.Config{Database: db, Logger: logger})
	if err != nil {
		return nil, closeOnError(db, err)
	}

	engine, err := alerts.NewEngine(alerts.EngineConfig{Services: services, Logger: logger})
	if err != nil {
		return nil, closeOnError(db, err)
	}
	scheduler, err := alerts.NewScheduler(alerts.SchedulerConfig{
		Engine:          engine,
		TickInterval:    appConfig.AlertInterval,
		CleanupInterval: appConfig.CleanupInterval,
		Logger:          logger,
	})
	if err != nil {
		return nil, closeOnError(db, err)
	}

	return &application{
		config:     appConfig,
		logger:     logger,
		db:         db,
		realtime:   realtime,
		services:   services,
		gate:       gate,
		dashboard:  aggregator,
		backup:     backups,
		alertsTick: scheduler,
	}, nil
}

func closeOnError(db *gorm.DB, err error) error {
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	return err
}

func (a *application) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func runServer(ctx context.Context) error {
	app, err := openApplication(false)
	if err != nil {
		return err
	}
	defer app.Close()

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(app.config.SessionSigningSecret),
		TokenTTL:      app.config.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(app.config.SessionSigningSecret),
		CookieName:    app.config.SessionCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Services:       app.services,
		Gate:           app.gate,
		Tokens:         tokenIssuer,
		Sessions:       sessionValidator,
		Dashboard:      app.dashboard,
		Backup:         app.backup,
		Realtime:       app.realtime,
		Alerts:         app.alertsTick,
		AllowedOrigins: app.config.AllowedOrigins,
		SecureCookies:  app.config.SecureCookies,
		Logger:         app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.alertsTick.Start()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serverErr := httpServer.Shutdown(shutdownCtx)
		if err := app.alertsTick.Stop(shutdownCtx); err != nil {
			app.logger.Warn("alert scheduler did not stop cleanly", zap.Error(err))
		}
		return serverErr
	case err := <-errCh:
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = app.alertsTick.Stop(stopCtx)
		return err
	}
}
