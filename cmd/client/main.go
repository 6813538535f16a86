package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/memberchat/internal/client/api"
	"github.com/cloudzz-dev/memberchat/internal/client/session"
	"github.com/cloudzz-dev/memberchat/internal/client/widget"
	"github.com/cloudzz-dev/memberchat/internal/config"
	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

func main() {
	cfg := config.LoadClient()

	log, err := logger.NewFile(cfg.LogFile, cfg.Debug)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.New(cfg.ServerURL, api.WithLogger(log))
	app := &app{cfg: cfg, log: log, client: client, ctx: ctx}
	if app.sessions, err = session.ForProfile(cfg.Profile); err != nil {
		log.Warn("sessions disabled", "error", err)
	}

	wcfg := widget.Config{
		Auth:    client,
		Connect: app.connect,
		Log:     log,
	}
	if ms := app.resume(ctx); ms != nil {
		wcfg.Messenger = ms
	}

	p := tea.NewProgram(widget.New(ctx, wcfg), tea.WithAltScreen(), tea.WithContext(ctx))
	app.setProgram(p)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		log.Error("client exited", "error", err)
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
