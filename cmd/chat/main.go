package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"partychat/internal/api"
	"partychat/internal/chat"
	"partychat/internal/config"
	"partychat/internal/identity"
	"partychat/internal/socket"
	"partychat/internal/ui"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config.toml")
	serverURL := flag.String("server", "", "REST base URL (overrides config)")
	username := flag.String("user", "", "username (overrides config)")
	password := flag.String("pass", "", "password (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *password != "" {
		cfg.Password = *password
	}
	if cfg.Username == "" || cfg.Password == "" {
		fmt.Fprintln(os.Stderr, "username and password required (flags, config file or env)")
		os.Exit(1)
	}

	log := newLogger(cfg)

	ctx := context.Background()
	client := api.NewClient(cfg.ServerURL)

	// Dev flow: register then log in; an already-taken username just means
	// the account exists.
	if err := client.Register(ctx, cfg.Username, cfg.Password); err != nil {
		log.Debug().Err(err).Msg("register skipped")
	}
	auth, err := client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}

	self, err := identity.FromToken(auth.AccessToken)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Info().Str("identity", self.ID).Str("username", self.Username).Msg("logged in")

	manager := socket.NewManager(cfg.WebsocketURL(), log)
	defer manager.Shutdown()

	orch := chat.New(client, chat.DialWith(manager, self.ID, auth.AccessToken), self.ID, log)
	if err := orch.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "could not start chat:", err)
		os.Exit(1)
	}
	defer orch.Close()

	program := tea.NewProgram(ui.NewModel(ctx, orch), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger keeps logs off the terminal the TUI owns: file if configured,
// discarded otherwise.
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = io.Discard
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
