package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/battleship/apps/go-server/internal/database"
	"github.com/robalobadob/battleship/apps/go-server/internal/httpserver"
	"github.com/robalobadob/battleship/apps/go-server/internal/lobby"
	"github.com/robalobadob/battleship/apps/go-server/internal/store"
	"github.com/robalobadob/battleship/apps/go-server/internal/users"
	"github.com/robalobadob/battleship/apps/go-server/internal/ws"
)

type config struct {
	Port     string
	DBPath   string
	BotDelay time.Duration
	HTTP     httpserver.Config
}

func loadConfig() config {
	days, _ := strconv.Atoi(getEnv("JWT_EXPIRES_DAYS", "14"))
	delay, err := time.ParseDuration(getEnv("BOT_DELAY", "1s"))
	if err != nil {
		log.Warn().Err(err).Msg("invalid BOT_DELAY, using 1s")
		delay = time.Second
	}
	return config{
		Port:     getEnv("PORT", "5175"),
		DBPath:   getEnv("DB_PATH", "./data/battleship.db"),
		BotDelay: delay,
		HTTP: httpserver.Config{
			JWTSecret:      getEnv("JWT_SECRET", "dev_secret_change_me"),
			JWTExpiresDays: days,
			CookieName:     getEnv("COOKIE_NAME", "battleship_token"),
			ClientOrigin:   getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
			Production:     os.Getenv("NODE_ENV") == "production",
		},
	}
}

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	cfg := loadConfig()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	defer db.Close()

	accounts := users.NewStore(db)
	ctl := lobby.New(accounts, store.NewMemoryStore(), nil, lobby.Config{BotDelay: cfg.BotDelay})
	hub := ws.NewHub(ctl, cfg.HTTP.ClientOrigin)
	srv := httpserver.New(accounts, ctl, hub, cfg.HTTP)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("port", cfg.Port).Dur("botDelay", cfg.BotDelay).Msg("starting battleship server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// hijacked websockets are not tracked by Shutdown
	hub.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
