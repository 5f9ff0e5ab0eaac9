package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// storage bundles the quiz library, credits and stats backends.
type storage interface {
	app.QuizLibrary
	app.CreditsStore
	app.StatsStore
}

type pgStorage struct {
	*pgstore.QuizStore
	*pgstore.AccountStore
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	roomTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var store storage = memory.NewLibrary()
	if pool != nil {
		store = pgStorage{pgstore.NewQuizStore(pool), pgstore.NewAccountStore(pool)}
	} else {
		logger.Warn("postgres not configured, quiz library is kept in memory")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo interface {
		app.QuizRepository
		app.QuizCache
	}
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, store, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(store, quizTTL)
	}

	var rooms app.RoomStore
	if redisClient != nil {
		rooms = redisstore.NewRoomStore(redisClient, roomTTL, logger.Named("rooms"))
	} else {
		rooms = memory.NewRoomStore()
	}

	var verifier *auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		logger.Warn("auth.jwt_secret not set, REST API is disabled and games are anonymous")
	}

	hub := transport.NewHub(logger.Named("hub"))
	scheduler := app.NewTickerScheduler(logger.Named("timers"))
	defer scheduler.Stop()

	engine := app.NewEngine(rooms, hub, scheduler, logger.Named("engine"), engineConfig(cfg),
		app.WithQuizRepository(quizRepo),
		app.WithStatsRecorder(store),
	)
	service := app.NewQuizService(store, store, store, quizRepo, logger.Named("library"))

	reaper, err := startReaper(engine, cfg, logger)
	if err != nil {
		return err
	}
	defer reaper.Stop()

	wsHandler := transport.NewWSHandler(engine, hub, verifier, logger.Named("ws"), transport.WSOptions{
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
		PingInterval:      config.TTLDuration(cfg.WebSocket.PingInterval, 30*time.Second),
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	})
	restHandler := transport.NewRESTHandler(service, engine, verifier, logger.Named("rest"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	restHandler.Register(mux)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func engineConfig(cfg config.Config) app.EngineConfig {
	defaults := app.DefaultEngineConfig()
	return app.EngineConfig{
		DefaultTimeLimit:  cfg.Game.TimeLimit,
		CountdownSeconds:  cfg.Game.CountdownSeconds,
		TickInterval:      config.TTLDuration(cfg.Game.Tick, defaults.TickInterval),
		CodeLength:        cfg.Game.CodeLength,
		FinishedRetention: config.TTLDuration(cfg.Game.FinishedRetention, defaults.FinishedRetention),
		MaxRoomAge:        config.TTLDuration(cfg.Game.MaxRoomAge, defaults.MaxRoomAge),
	}
}

// startReaper schedules the sweep of finished and abandoned rooms.
func startReaper(engine *app.Engine, cfg config.Config, logger *zap.Logger) (*cron.Cron, error) {
	spec := cfg.Game.ReapSchedule
	if spec == "" {
		spec = "@every 1m"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		engine.Reap(time.Now())
	}); err != nil {
		return nil, err
	}
	c.Start()
	logger.Debug("room reaper scheduled", zap.String("schedule", spec))
	return c, nil
}
