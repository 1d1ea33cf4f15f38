package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/app"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/auth"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/config"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/database"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/logging"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/observability"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rangedrill-api",
		Short: "Preflop range training backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newSeedCommand(), newGridCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "CORS origins allowed to call the API (all when empty)")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("tracing-exporter", defaults.GetString("tracing.exporter"), "Span exporter (none, stdout, otlp)")
	cmd.PersistentFlags().String("tracing-endpoint", "", "OTLP/HTTP collector host:port")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "tracing.exporter", "tracing-exporter")
	bindFlag(cmd, "tracing.endpoint", "tracing-endpoint")
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

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newSeedCommand() *cobra.Command {
	var creator string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the sample open-raise scenarios and their active group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(creator) == "" {
				return errors.New("--creator is required")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt environment) error {
				result, err := app.SeedSamples(ctx, rt.services.Scenarios, creator)
				if err != nil {
					return err
				}
				if len(result.Scenarios) == 0 {
					pterm.Info.Printfln("Sample scenarios already exist for %s", creator)
					return nil
				}
				for _, scenario := range result.Scenarios {
					pterm.Success.Printfln("Created scenario %d: %s %s (%d raising hands)",
						scenario.ID, scenario.Name, scenario.PositionGroupName(), scenario.Grid().Count(hands.Raise))
				}
				pterm.Success.Printfln("Created active group %d: %s", result.Group.ID, result.Group.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "Player id that owns the seeded scenarios")
	return cmd
}

func newGridCommand() *cobra.Command {
	var (
		scenarioID    uint
		showDistances bool
	)
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print a scenario grid or its border distances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenarioID == 0 {
				return errors.New("--scenario is required")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt environment) error {
				scenario, err := rt.services.Scenarios.Scenario(ctx, scenarioID)
				if err != nil {
					return err
				}
				var distances map[string]int
				if showDistances {
					cached, err := rt.services.Scenarios.BorderDistances(ctx, scenarioID)
					if err != nil {
						return err
					}
					distances = distanceLabels(cached)
				}
				rendered, err := renderGrid(scenario.Grid(), distances)
				if err != nil {
					return err
				}
				pterm.DefaultSection.Printfln("%s · %s · %dbb", scenario.Name, scenario.PositionGroupName(), scenario.StackDepth)
				pterm.Println(rendered)
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&scenarioID, "scenario", 0, "Scenario id")
	cmd.Flags().BoolVar(&showDistances, "distances", false, "Show border distances instead of actions")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		userID string
		roles  []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for a player",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(cmd.Context(), auth.SessionIdentity{UserID: userID, Roles: roles})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			pterm.Info.Printfln("Expires in %s", time.Duration(expiresIn)*time.Second)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Player id (optionally provider:id)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

type environment struct {
	config   config.AppConfig
	logger   *zap.Logger
	services app.Services
}

// withRuntime loads configuration, opens the database and builds the services
// for the duration of fn.
func withRuntime(ctx context.Context, fn func(context.Context, environment) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	services, err := app.NewServices(app.Options{
		Database:   db,
		Logger:     logger,
		Clock:      time.Now,
		MaxRetries: appConfig.DrillMaxRetries,
	})
	if err != nil {
		return err
	}

	return fn(ctx, environment{config: appConfig, logger: logger, services: services})
}

func runServer(ctx context.Context) error {
	return withRuntime(ctx, func(ctx context.Context, rt environment) error {
		shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName: rt.config.ServiceName,
			Version:     version,
			Exporter:    rt.config.TracingExporter,
			Endpoint:    rt.config.TracingEndpoint,
			Insecure:    true,
		}, rt.logger)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				rt.logger.Warn("tracing shutdown failed", zap.Error(err))
			}
		}()

		sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
			SigningSecret: []byte(rt.config.AuthSigningSecret),
			CookieName:    rt.config.AuthCookieName,
			Issuer:        rt.config.AuthIssuer,
		})
		if err != nil {
			return err
		}

		handler, err := server.NewHTTPHandler(server.Dependencies{
			SessionValidator: sessionValidator,
			Players:          rt.services.Players,
			Drills:           rt.services.Drills,
			Scenarios:        rt.services.Scenarios,
			Stats:            rt.services.Stats,
			RangeDrill:       rt.services.RangeDrill,
			Realtime:         server.NewRealtimeDispatcher(),
			Logger:           rt.logger,
			AllowedOrigins:   rt.config.AllowedOrigins,
			ServiceName:      rt.config.ServiceName,
		})
		if err != nil {
			return err
		}

		signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Request contexts derive from signalCtx so open event streams end on shutdown.
		httpServer := &http.Server{
			Addr:              rt.config.HTTPAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return signalCtx },
		}

		errCh := make(chan error, 1)
		go func() {
			rt.logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
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
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	})
}
