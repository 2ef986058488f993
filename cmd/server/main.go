package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"fookiki/internal/board"
	"fookiki/internal/clock"
	"fookiki/internal/config"
	"fookiki/internal/hub"
	"fookiki/internal/matchmaking"
	"fookiki/internal/queue"
	"fookiki/internal/room"
	"fookiki/internal/server"
	"fookiki/internal/storage"
)

func main() {
	flags := pflag.NewFlagSet("fookiki", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Parse(os.Args[1:])
	path, _ := flags.GetString("config")

	cfg, err := config.Load(path, flags)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}
	log := newLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, _ := zerolog.ParseLevel(c.Level)
	var logger zerolog.Logger
	if c.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	clk := clock.Real()
	h := hub.New()
	formations := board.Builtin()

	rooms := room.NewManager(room.Options{
		Store:      store,
		Formations: formations,
		Hub:        h,
		Clock:      clk,
		Defaults:   cfg.RoomDefaults(),
		Logger:     log,
	})
	defer rooms.Close()
	if err := rooms.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("restore rooms")
	}

	var (
		q     matchmaking.Queue
		notes interface {
			matchmaking.Notifier
			matchmaking.Subscriber
		}
	)
	if addr := cfg.Storage.RedisAddr; addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		q = queue.NewRedis(client, log)
		notes = queue.NewRedisNotifier(client, log)
		log.Info().Str("addr", addr).Msg("matchmaking queue on redis")
	} else {
		q = queue.NewSQLite(store, log)
		notes = queue.NewLocalNotifier(h, log)
		log.Info().Msg("matchmaking queue on sqlite")
	}

	resolver := matchmaking.NewResolver(matchmaking.Options{
		Queue:      q,
		Rooms:      rooms,
		Notifier:   notes,
		Formations: formations,
		Clock:      clk,
		Config:     cfg.MatchmakingConfig(),
		Logger:     log,
	})

	srv := server.New(server.Options{
		Rooms:         rooms,
		Matchmaking:   matchmaking.NewService(q, resolver, notes, clk, log),
		Notifications: notes,
		WebFS:         os.DirFS(cfg.Server.WebDir),
		Logger:        log,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		rooms.CleanupLoop(ctx, cfg.CleanupInterval(), cfg.MaxRoomAge())
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
