package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/auth"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/config"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/content"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/db"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/handlers"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/middleware"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/relay"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/room"
)

// Server represents the application server
type Server struct {
	httpServer *http.Server
	registry   *room.RoomRegistry
	store      db.IContentStore
	verifier   auth.Verifier
	relay      *relay.RedisRelay
	config     *config.Config
	logger     *slog.Logger

	stopRelay context.CancelFunc
	relayDone chan struct{}
}

// NewServer wires storage, presence, authentication and routes from cfg.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	presence, err := config.LoadPresence(cfg.PresenceConfigFile)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg, presence, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:  store,
		config: cfg,
		logger: logger,
	}

	opts := []room.Option{room.WithPalette(presence.Palette)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			store.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		s.relay = relay.NewRedisRelay(rdb, relay.DefaultPrefix, logger)
		opts = append(opts, room.WithRelay(s.relay))
		logger.Info("redis relay enabled", "addr", cfg.RedisAddr)
	}
	s.registry = room.NewRoomRegistry(logger, opts...)

	verifier, authorizer, err := newAuth(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.verifier = verifier

	svc := content.NewService(store, nil, logger)
	h := handlers.NewHandlers(s.registry, svc, authorizer, presence, logger)

	// Setup routes
	r := mux.NewRouter()
	r.Use(middleware.Recovery(logger), middleware.AccessLog(logger))
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(middleware.Auth(verifier, logger), middleware.Recovery(logger))
	h.Register(api)

	// Order: CORS → Routes (Recovery → AccessLog → Auth → Recovery → handler)
	var handler http.Handler = r
	handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.WorkspaceHeader},
		AllowCredentials: true,
	}).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections manage their own write deadlines
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func newStore(ctx context.Context, cfg *config.Config, presence *config.Presence, logger *slog.Logger) (db.IContentStore, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory content store; content is lost on restart")
		return db.NewMemoryContentStore(presence.HistoryLimit), nil
	case "postgres", "":
		store, err := db.NewPostgresContentStore(ctx, cfg.GetDatabaseConnectionString(), presence.HistoryLimit, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
}

func newAuth(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Verifier, auth.Authorizer, error) {
	switch {
	case cfg.JWKSURL != "":
		v, err := auth.NewJWKSVerifier(ctx, cfg.JWKSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return v, auth.ClaimsAuthorizer{}, nil
	case cfg.JWTSecret != "":
		v, err := auth.NewHMACVerifier(cfg.JWTSecret, logger)
		if err != nil {
			return nil, nil, err
		}
		return v, auth.ClaimsAuthorizer{}, nil
	case cfg.AuthDisabled:
		logger.Warn("authentication disabled; tokens are trusted as user ids")
		return auth.DevVerifier{}, auth.AllowAll{}, nil
	default:
		return nil, nil, errors.New("no authentication configured: set JWKS_URL or JWT_SECRET, or AUTH_DISABLED=true")
	}
}

// Start runs the relay subscriber, if any, and serves HTTP until Close.
func (s *Server) Start() error {
	if s.relay != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopRelay = cancel
		s.relayDone = make(chan struct{})
		go func() {
			defer close(s.relayDone)
			if err := s.relay.Run(ctx, s.registry.DeliverRemote); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("redis relay stopped", "error", err)
			}
		}()
	}

	s.logger.Info("starting collaboration server", "addr", s.httpServer.Addr, "store", s.config.Store)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Close closes the relay, the verifier and the store
func (s *Server) Close() error {
	var errs []error
	if s.stopRelay != nil {
		s.stopRelay()
		<-s.relayDone
	}
	if s.relay != nil {
		errs = append(errs, s.relay.Close())
	}
	if s.verifier != nil {
		errs = append(errs, s.verifier.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
