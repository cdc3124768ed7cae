package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/famling-app/famling/backend/internal/achievements"
	"github.com/famling-app/famling/backend/internal/auth"
	"github.com/famling-app/famling/backend/internal/config"
	"github.com/famling-app/famling/backend/internal/database"
	"github.com/famling-app/famling/backend/internal/familia"
	"github.com/famling-app/famling/backend/internal/logging"
	"github.com/famling-app/famling/backend/internal/people"
	"github.com/famling-app/famling/backend/internal/remote"
	"github.com/famling-app/famling/backend/internal/server"
	"github.com/famling-app/famling/backend/internal/sync"
)

const (
	tokenIssuer   = "famling-agent"
	tokenAudience = "famling-api"
)

var (
	cfgFile   string
	forceFull bool
	ownerID   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "famling-sync",
		Short: "Famling offline-first sync engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the document-store API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass for every entity type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context())
		},
	}
	syncCmd.Flags().BoolVar(&forceFull, "full", false, "Force a full resync (clear and repopulate the local cache)")
	syncCmd.Flags().StringVar(&ownerID, "owner", "", "Restrict owner-scoped entities to this owner id")

	rootCmd.AddCommand(serveCmd, syncCmd)
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
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "Server SQLite database path")
	cmd.PersistentFlags().String("cache-path", defaults.GetString("cache.path"), "Agent SQLite cache path")
	cmd.PersistentFlags().String("remote-base-url", defaults.GetString("remote.base_url"), "Document-store API base URL")
	cmd.PersistentFlags().String("device-id", "", "Device identifier used as token subject")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "cache.path", "cache-path")
	bindFlag(cmd, "remote.base_url", "remote-base-url")
	bindFlag(cmd, "device.id", "device-id")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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
	if err := appConfig.ValidateServer(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenServer(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokens := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Database: db,
		Tokens:   tokens,
		Logger:   logger,
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
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runSync(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := appConfig.ValidateAgent(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenAgent(appConfig.CachePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	manager, err := buildManager(db, appConfig, logger)
	if err != nil {
		return err
	}

	scope := sync.ScopeAll
	if ownerID != "" {
		scope, err = sync.OwnerScope(ownerID)
		if err != nil {
			return err
		}
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := false
	for event := range manager.SyncIncremental(signalCtx, scope, forceFull) {
		switch event.Kind {
		case sync.EventStarted:
			fmt.Printf("%-24s %s\n", event.Entity, "started")
		case sync.EventCompleted:
			outcome := event.Outcome
			fmt.Printf("%-24s completed: pushed=%d merged=%d unchanged=%d deletes=%d failures=%d violations=%d\n",
				event.Entity, outcome.Pushed, outcome.Merged, outcome.Unchanged,
				outcome.DeletesConfirmed, outcome.PushFailed, len(outcome.Violations))
		case sync.EventFailed:
			failed = true
			fmt.Printf("%-24s failed: %v\n", event.Entity, event.Err)
		case sync.EventCoalesced:
			fmt.Printf("%-24s coalesced\n", event.Entity)
		}
	}
	if failed {
		return errors.New("one or more entity types failed to reconcile")
	}
	return nil
}

func buildManager(db *gorm.DB, appConfig config.AppConfig, logger *zap.Logger) (*sync.Manager, error) {
	tokens := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
	})
	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: appConfig.RemoteBaseURL,
		Token: func(ctx context.Context) (string, error) {
			return tokens.IssueToken(appConfig.DeviceID)
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	peopleStore, err := people.NewStore(db)
	if err != nil {
		return nil, err
	}
	peopleRemote, err := remote.NewCollection[people.Person](client, people.EntityType.String())
	if err != nil {
		return nil, err
	}
	peopleTask, err := people.NewTask(peopleStore, peopleRemote, logger)
	if err != nil {
		return nil, err
	}

	blacklistStore, err := familia.NewBlacklistStore(db)
	if err != nil {
		return nil, err
	}
	blacklistRemote, err := remote.NewCollection[familia.BlacklistEntry](client, familia.BlacklistEntityType.String())
	if err != nil {
		return nil, err
	}
	blacklistTask, err := familia.NewBlacklistTask(blacklistStore, blacklistRemote, logger)
	if err != nil {
		return nil, err
	}

	customNameStore, err := familia.NewCustomNameStore(db)
	if err != nil {
		return nil, err
	}
	customNameRemote, err := remote.NewCollection[familia.CustomFamilyName](client, familia.CustomNameEntityType.String())
	if err != nil {
		return nil, err
	}
	customNameTask, err := familia.NewCustomNameTask(customNameStore, customNameRemote, logger)
	if err != nil {
		return nil, err
	}

	progressStore, err := achievements.NewStore(db)
	if err != nil {
		return nil, err
	}
	achievementsService, err := achievements.NewService(achievements.ServiceConfig{
		Store:    progressStore,
		Catalog:  achievements.DefaultCatalog(),
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	progressRemote, err := remote.NewCollection[achievements.Progress](client, achievements.EntityType.String())
	if err != nil {
		return nil, err
	}
	progressTask, err := achievements.NewTask(progressStore, progressRemote, achievementsService, logger)
	if err != nil {
		return nil, err
	}

	checkpoints, err := sync.NewCheckpointStore(db)
	if err != nil {
		return nil, err
	}

	return sync.NewManager(sync.ManagerConfig{
		Tasks:            []sync.Task{peopleTask, blacklistTask, customNameTask, progressTask},
		Checkpoints:      checkpoints,
		MaxCheckpointAge: appConfig.FullResyncMaxAge,
		Logger:           logger,
	})
}
