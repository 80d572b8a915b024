package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	fleet "github.com/everydev1618/botfleet"
	"github.com/everydev1618/botfleet/llm"
)

// Server is the HTTP server for tenant accounts plus the bot fleet
// supervisor that keeps their Telegram workers running.
type Server struct {
	cfg       Config
	store     Store
	connector fleet.Connector
	completer fleet.Completer
	sup       *fleet.Supervisor
	startedAt time.Time
}

// New creates a new Server.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Start initializes the store, the completion backend, and the fleet
// supervisor, registers routes, and listens for HTTP requests. It blocks
// until ctx is cancelled, then stops the fleet and drains the server.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	if s.cfg.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if err := os.MkdirAll(s.cfg.FilesDir, 0o755); err != nil {
		return fmt.Errorf("create files dir: %w", err)
	}

	// Initialize SQLite store.
	if s.store == nil {
		store, err := NewSQLiteStore(s.cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		s.store = store
	}
	if err := s.store.Init(); err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	if s.completer == nil {
		s.completer = llm.NewYandexGPT(
			llm.WithAPIKey(s.cfg.YandexAPIKey),
			llm.WithFolderID(s.cfg.YandexFolderID),
		)
	}
	if s.connector == nil {
		s.connector = &fleet.TelegramConnector{PollTimeout: s.cfg.PollTimeout}
	}

	// The store is both the snapshot source and the per-message tenant
	// data reader, so profile edits take effect without restarts.
	s.sup = fleet.NewSupervisor(fleet.SupervisorConfig{
		Source:            s.store,
		Connector:         s.connector,
		Data:              s.store,
		Completer:         s.completer,
		StopTimeout:       s.cfg.StopTimeout,
		CompletionTimeout: s.cfg.CompletionTimeout,
	})

	fleetCtx, stopFleet := context.WithCancel(context.Background())
	fleetDone := make(chan struct{})
	go func() {
		defer close(fleetDone)
		s.sup.Run(fleetCtx, s.cfg.ReconcileInterval)
	}()

	// Build router.
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: corsMiddleware(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("botfleet serve started", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case runErr = <-errCh:
	}

	// Stop the fleet first so workers finish their in-flight messages
	// before the store goes away. Run bounds the total stop time.
	stopFleet()
	<-fleetDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	return runErr
}

// registerRoutes adds all API routes to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.HandleFunc("POST /api/admin/users", s.requireAdmin(s.handleCreateUser))
	mux.HandleFunc("POST /api/admin/users/{username}/block", s.requireAdmin(s.handleBlockUser))
	mux.HandleFunc("GET /api/fleet", s.requireAdmin(s.handleFleetStatus))

	mux.HandleFunc("GET /api/me", s.requireUser(s.handleGetProfile))
	mux.HandleFunc("POST /api/me", s.requireUser(s.handleUpdateProfile))

	mux.HandleFunc("POST /api/files", s.requireUser(s.handleUploadFile))
	mux.HandleFunc("GET /api/files", s.requireUser(s.handleListFiles))

	mux.HandleFunc("POST /api/ask", s.requireUser(s.handleAsk))
}

// corsMiddleware adds permissive CORS headers for development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
