package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"partychat/internal/server"
)

func main() {
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
		log.Warn().Msg("JWT_SECRET not set, using dev default")
	}

	srv := server.New(secret, log)
	log.Info().Str("addr", *addr).Msg("dev server listening")
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
