package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/auth"
	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/config"
	"github.com/iliyamo/cinema-scheduling/internal/database"
	"github.com/iliyamo/cinema-scheduling/internal/handler"
	"github.com/iliyamo/cinema-scheduling/internal/logger"
	"github.com/iliyamo/cinema-scheduling/internal/middleware"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/queue"
	"github.com/iliyamo/cinema-scheduling/internal/repository"
	"github.com/iliyamo/cinema-scheduling/internal/repository/memstore"
	"github.com/iliyamo/cinema-scheduling/internal/router"
	"github.com/iliyamo/cinema-scheduling/internal/service"
	"github.com/iliyamo/cinema-scheduling/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// stores is what the selected backend provides to the rest of main.
type stores struct {
	repos   service.Repositories
	users   handler.UserStore
	tokens  handler.TokenStore
	movies  handler.MovieLister
	rooms   handler.RoomLister
	pinger  handler.Pinger
	cleanup func()
}

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.cleanup()

	clk := clock.NewSystem()
	if err := bootstrapAdmin(ctx, cfg, st.users, log); err != nil {
		return err
	}

	// Events are optional; the reservation engine publishes only when a
	// publisher is configured.
	var events service.EventPublisher
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer func() { _ = pub.Close() }()
		events = pub

		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.LedgerDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("ledger consumer stopped", zap.Error(err))
			}
		}()
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, clk)
	scheduling := service.NewSchedulingService(st.repos, clk, cfg.Location, log)
	reservation := service.NewReservationService(st.repos, clk, events, log)
	statistics := service.NewStatisticsService(st.repos.Purchases, clk, cfg.Location, log)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))

	router.Register(e, router.Handlers{
		Health:     handler.Health(st.pinger),
		Auth:       handler.NewAuthHandler(st.users, st.tokens, issuer, cfg.BcryptCost, clk, log),
		Catalog:    handler.NewCatalogHandler(st.movies, st.rooms, log),
		Screenings: handler.NewScreeningHandler(scheduling, log),
		Purchases:  handler.NewPurchaseHandler(reservation, log),
		Statistics: handler.NewStatisticsHandler(statistics, log),
		Tokens:     issuer,
		Cache:      middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.String("timezone", cfg.Location.String()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		s := memstore.New()
		if cfg.SeedDemo {
			seedDemo(s)
			log.Info("memory store seeded with demo catalogue")
		}
		return &stores{
			repos: service.Repositories{
				Tx:         s,
				Movies:     s.Movies(),
				Rooms:      s.Rooms(),
				Users:      s.Users(),
				Screenings: s.Screenings(),
				Purchases:  s.Purchases(),
			},
			users:   s.Users(),
			tokens:  s.Tokens(),
			movies:  s.Movies(),
			rooms:   s.Rooms(),
			cleanup: func() {},
		}, nil
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	users := repository.NewUserRepo(db)
	movies := repository.NewMovieRepo(db)
	rooms := repository.NewRoomRepo(db)
	return &stores{
		repos: service.Repositories{
			Tx:         repository.NewTxManager(db),
			Movies:     movies,
			Rooms:      rooms,
			Users:      users,
			Screenings: repository.NewScreeningRepo(db),
			Purchases:  repository.NewPurchaseRepo(db),
		},
		users:   users,
		tokens:  repository.NewTokenRepo(db),
		movies:  movies,
		rooms:   rooms,
		pinger:  db,
		cleanup: func() { _ = db.Close() },
	}, nil
}

// bootstrapAdmin creates the configured administrator unless the email
// is already taken.
func bootstrapAdmin(ctx context.Context, cfg config.Config, users handler.UserStore, log *zap.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	_, err := users.GetByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	hash, err := auth.HashPassword(cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	id, err := users.Create(ctx, cfg.AdminEmail, hash, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("admin provisioned", zap.Uint64("user_id", id))
	return nil
}

func seedDemo(s *memstore.Store) {
	s.AddMovie(model.Movie{ID: 1, Title: "Arrival", DurationMin: 116, Categories: []string{"drama", "sci-fi"}})
	s.AddMovie(model.Movie{ID: 2, Title: "Heat", DurationMin: 170, Categories: []string{"crime", "drama"}})
	s.AddMovie(model.Movie{ID: 3, Title: "Paddington 2", DurationMin: 104, Categories: []string{"comedy", "family"}})
	s.AddRoom(model.Room{ID: 1, Name: "Hall A", MaxSeats: 120})
	s.AddRoom(model.Room{ID: 2, Name: "Hall B", MaxSeats: 60})
	s.AddRoom(model.Room{ID: 3, Name: "Studio", MaxSeats: 24})
}
