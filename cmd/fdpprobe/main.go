// Command fdpprobe runs a headless viewer window against an awareness
// service. It registers one case, logs every banner, header and modal
// change, and stays connected until interrupted.
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

	"fdp/internal/config"
	"fdp/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fdpprobe:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseOptions(args []string) (probeOptions, string, error) {
	flags := flag.NewFlagSet("fdpprobe", flag.ContinueOnError)
	opts := probeOptions{}
	flags.StringVar(&opts.URL, "url", envOr("FDP_PROBE_URL", "http://localhost:8090"), "awareness service URL")
	flags.StringVar(&opts.UserID, "user", os.Getenv("FDP_PROBE_USER"), "user ID to register as")
	flags.StringVar(&opts.Case.CaseID, "case", os.Getenv("FDP_PROBE_CASE"), "case ID shown by this window")
	flags.StringVar(&opts.Case.PatientName, "patient", os.Getenv("FDP_PROBE_PATIENT"), "patient name, \"Last, First\"")
	flags.StringVar(&opts.Case.PatientDOB, "dob", "", "patient date of birth")
	flags.BoolVar(&opts.Privacy, "privacy", false, "show initials instead of patient identifiers")
	audio := flags.String("audio", "off", "audio mode: off, chime, brief or full")
	flags.BoolVar(&opts.AutoAck, "ack", false, "acknowledge warning modals automatically")
	level := flags.String("log-level", envOr("FDP_LOG_LEVEL", "info"), "log level")

	if err := flags.Parse(args); err != nil {
		return probeOptions{}, "", err
	}
	if opts.UserID == "" {
		return probeOptions{}, "", errors.New("a user ID is required (-user or FDP_PROBE_USER)")
	}
	if opts.Case.CaseID == "" {
		return probeOptions{}, "", errors.New("a case ID is required (-case or FDP_PROBE_CASE)")
	}
	opts.Audio = audioMode(*audio)
	return opts, *level, nil
}

func run(args []string) error {
	opts, level, err := parseOptions(args)
	if err != nil {
		return err
	}

	log, err := logger.New(&config.LoggingConfig{Level: level, Development: true})
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := startProbe(ctx, opts, nil, log)
	if err != nil {
		return err
	}
	log.Info("probe window registered",
		zap.String("window_id", p.session.WindowID()),
		zap.String("case_id", opts.Case.CaseID))

	select {
	case <-ctx.Done():
	case <-p.client.Done():
		log.Warn("awareness service closed the connection")
	}
	return p.Close()
}
