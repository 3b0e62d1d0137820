package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/authctl"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg := config.Load(args)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	outbox, err := server.OpenOutbox(cfg.MailOutbox)
	if err != nil {
		return err
	}
	defer outbox.Close()

	svc, err := server.OpenServices(ctx, cfg, server.NewLogger(os.Stderr), outbox)
	if err != nil {
		return err
	}
	defer svc.Close()

	app := authctl.NewApp(svc.Users, svc.Sessions, os.Stdout)
	return app.Run(ctx, flagx.ExcludeArgs(args, config.FlagNames))
}
