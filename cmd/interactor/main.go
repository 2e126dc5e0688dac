package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/pysugar/service-interactor/internal/auth"
	"github.com/pysugar/service-interactor/internal/config"
	"github.com/pysugar/service-interactor/internal/db"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/loginsync"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
	"github.com/pysugar/service-interactor/internal/services"
	"github.com/pysugar/service-interactor/internal/session"
	"github.com/pysugar/service-interactor/internal/version"
	"github.com/pysugar/service-interactor/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "interactor",
		Short:         "Linked OAuth accounts and their calendars, files and mail",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			cfg.RedditUserAgent = cmp.Or(cfg.RedditUserAgent, version.UserAgent())
			logging.Init(logging.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and load the scope catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(database)
			fmt.Println("ok")
			return nil
		},
	}

	var scopeProvider string
	scopesCmd := &cobra.Command{
		Use:   "scopes",
		Short: "List the scope catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scopeProvider != "" {
				if _, err := provider.ParseKind(scopeProvider); err != nil {
					return err
				}
			}
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(database)

			q := database.Order("provider, id")
			if scopeProvider != "" {
				q = q.Where("provider = ?", scopeProvider)
			}
			var rows []scopeRow
			if err := q.Table("scopes").Find(&rows).Error; err != nil {
				return err
			}
			for _, s := range rows {
				flags := ""
				if s.Required {
					flags += " required"
				}
				if s.GrantsAccess {
					flags += " grants-access"
				}
				fmt.Printf("%-10s %-10s %s%s\n", s.Provider, s.AccessType, s.Name, flags)
			}
			return nil
		},
	}
	scopesCmd.Flags().StringVar(&scopeProvider, "provider", "", "Only list scopes of this provider")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		// version needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}

	root.AddCommand(serveCmd, migrateCmd, scopesCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}

type scopeRow struct {
	Provider     string
	Name         string
	Required     bool
	GrantsAccess bool
	AccessType   string
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	database, err := db.InitDB(db.Options{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.DSN,
		Verbose: cfg.Database.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return database, nil
}

func closeDB(database *gorm.DB) {
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.Named("main")
	defer func() { _ = logging.Sync() }()

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)

	store, err := session.Open(ctx, cfg.Session)
	if err != nil {
		return err
	}

	ledger := scopes.NewLedger(database)
	syncer := loginsync.New(database, ledger)
	if err := syncer.Register(database); err != nil {
		return fmt.Errorf("register login sync: %w", err)
	}
	factory := services.NewFactory(database, ledger, services.WithRedditUserAgent(cfg.RedditUserAgent))

	clients := auth.Clients(cfg)
	var loginKinds []provider.Kind
	for _, k := range provider.Kinds() {
		if _, ok := clients[k]; ok {
			loginKinds = append(loginKinds, k)
		}
	}
	if len(loginKinds) == 0 {
		log.Warn("no OAuth provider configured; set <PROVIDER>_CLIENT_ID and <PROVIDER>_CLIENT_SECRET")
	}

	handler := web.NewRouter(web.Deps{
		Factory:    factory,
		Sessions:   session.NewManager(store, cfg.Session),
		Auth:       auth.NewHandler(database, syncer, clients, auth.WithBaseURL(cfg.BaseURL)),
		LoginKinds: loginKinds,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	displayURL := cfg.Addr()
	if cfg.Host == "0.0.0.0" {
		displayURL = fmt.Sprintf("<your-ip>:%d", cfg.Port)
	}
	log.Info("service-interactor starting",
		zap.String("addr", srv.Addr),
		zap.String("version", version.Version),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Strings("providers", kindNames(loginKinds)),
	)
	log.Info("connections page", zap.String("url", "http://"+displayURL+"/connections"))

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func kindNames(kinds []provider.Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	slices.Sort(out)
	return out
}
