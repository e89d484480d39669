package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/throwapin-auth/internal/browserauth"
	"github.com/dgellow/throwapin-auth/internal/config"
	"github.com/dgellow/throwapin-auth/internal/cookie"
	"github.com/dgellow/throwapin-auth/internal/idp"
	jsonwriter "github.com/dgellow/throwapin-auth/internal/json"
	"github.com/dgellow/throwapin-auth/internal/log"
	"github.com/dgellow/throwapin-auth/internal/oauth"
	"github.com/dgellow/throwapin-auth/internal/server"
	"github.com/dgellow/throwapin-auth/internal/storage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// App is the complete auth service with all dependencies built
type App struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      storage.UserStore
}

// NewApp creates the application and connects to the configured store.
// Store clients may keep ctx for credential refresh, so it must outlive the App.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("app", "Building auth service", map[string]any{
		"environment":  cfg.Environment,
		"storage":      cfg.Storage,
		"frontendURL":  cfg.FrontendURL,
		"secureCookie": cfg.Session.Secure,
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	handler, err := buildHTTPHandler(cfg, store)
	if err != nil {
		_ = store.Close(context.Background())
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Addr()),
		store:      store,
	}, nil
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives or the server
// fails, then shuts down gracefully and closes the store
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Addr())
	if err != nil {
		_ = a.store.Close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", a.config.Addr(), err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Serve(ln); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		reason := "shutdown requested"
		if ctx.Err() == nil {
			reason = "server error"
		}
		log.LogInfoWithFields("app", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
		if err := a.store.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	if err != nil {
		log.LogErrorWithFields("app", "Shutdown with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("app", "Application shutdown complete", nil)
	return nil
}

func setupStorage(ctx context.Context, cfg config.Config) (storage.UserStore, error) {
	switch cfg.Storage {
	case config.StorageMongoDB:
		log.LogInfoWithFields("storage", "Using MongoDB storage", map[string]any{
			"database": cfg.Mongo.Database,
		})
		return storage.NewMongoStorage(ctx, string(cfg.Mongo.URI), cfg.Mongo.Database)

	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":  cfg.Firestore.ProjectID,
			"database": cfg.Firestore.Database,
		})
		return storage.NewFirestoreStorage(ctx, cfg.Firestore.ProjectID, cfg.Firestore.Database, cfg.Firestore.CredentialsFile)

	case config.StorageMemory:
		log.LogWarnWithFields("storage", "Using in-memory storage, users are lost on restart", nil)
		return storage.NewMemoryStorage(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// buildHTTPHandler wires the auth components and returns the routed,
// middleware-wrapped handler
func buildHTTPHandler(cfg config.Config, store storage.UserStore) (http.Handler, error) {
	outbound := &http.Client{Timeout: cfg.OutboundTimeout}

	flow := oauth.NewFlowManager(cfg.Google.ClientID, string(cfg.Google.ClientSecret), oauth.Endpoint{
		AuthURL:  cfg.Google.AuthURL,
		TokenURL: cfg.Google.TokenURL,
	}, outbound)
	userInfo := idp.NewUserInfoClient(cfg.Google.UserInfoURL, outbound)

	sessions, err := browserauth.NewSessionManager(
		[]byte(cfg.Session.SecretKey),
		cfg.Session.TTL,
		cookie.Policy{Secure: cfg.Session.Secure},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	authHandlers := server.NewAuthHandlers(flow, userInfo, store, sessions, cfg.FrontendURL, cfg.Google.RedirectURI)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", server.NewHealthHandler())
	authHandlers.RegisterRoutes(mux)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w)
	})

	return server.ChainMiddleware(mux,
		server.NewCORSMiddleware([]string{cfg.FrontendURL}),
		server.NewLoggerMiddleware("http"),
		server.NewRecoverMiddleware("app"),
	), nil
}
