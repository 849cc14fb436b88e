package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fdp/internal/app"
	"fdp/internal/config"
	"fdp/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "awareness:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("awareness", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a TOML or JSON config file (overrides "+config.EnvConfigFile+")")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithPrecedence(*configPath)
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer func() { _ = log.Sync() }()

	application, err := app.NewApplication(cfg, nil, log)
	if err != nil {
		return errors.Wrap(err, "create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return errors.Wrap(err, "start application")
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err, ok := <-application.Errors():
		if ok && err != nil {
			runErr = errors.Wrap(err, "http server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
