package main

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fdp/pkg/fdp"
	"fdp/pkg/sessionclient"
	"fdp/pkg/types"
)

type probeOptions struct {
	URL     string
	UserID  string
	Case    fdp.CaseContext
	Privacy bool
	Audio   fdp.AudioMode
	AutoAck bool
}

func audioMode(s string) fdp.AudioMode {
	return fdp.AudioMode(strings.ToLower(strings.TrimSpace(s)))
}

// probe is one headless window: a Layer 1 session wired to a session client.
type probe struct {
	session  *fdp.Session
	platform *fdp.ManualPlatform
	client   *sessionclient.Client
	logger   *zap.Logger
}

func startProbe(ctx context.Context, opts probeOptions, clk clock.Clock, logger *zap.Logger) (*probe, error) {
	cfg := fdp.DefaultConfig()
	cfg.PrivacyMode = opts.Privacy
	cfg.AudioMode = opts.Audio

	out := &logRenderer{logger: logger.Named("ui")}
	platform := fdp.NewManualPlatform()
	session, err := fdp.NewSession(fdp.Options{
		Config:   cfg,
		Platform: platform,
		Banner:   out,
		Header:   out,
		Modal:    out,
		Audio:    fdp.NewAudioAnnouncer(cfg.AudioMode, cfg.PrivacyMode, out),
		Clock:    clk,
		Logger:   logger.Named("fdp"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create window session")
	}
	if err := session.Start(); err != nil {
		return nil, errors.Wrap(err, "start window session")
	}

	if opts.AutoAck {
		session.Emitter().On(fdp.EventWarning, func(fdp.Event) {
			// Emit runs on the client's read loop; acknowledge off it.
			go func() {
				if err := session.Modal().Select("acknowledge"); err != nil {
					logger.Debug("auto-acknowledge skipped", zap.Error(err))
				}
			}()
		})
	}

	clientCfg := sessionclient.DefaultConfig(opts.URL)
	clientCfg.HeartbeatInterval = cfg.HeartbeatInterval
	clientOpts := []sessionclient.Option{sessionclient.WithLogger(logger.Named("client"))}
	if clk != nil {
		clientOpts = append(clientOpts, sessionclient.WithClock(clk))
	}
	client, err := sessionclient.Dial(ctx, clientCfg, session, clientOpts...)
	if err != nil {
		session.Stop()
		return nil, err
	}

	p := &probe{session: session, platform: platform, client: client, logger: logger}
	if err := session.OpenCase(opts.Case); err != nil {
		_ = p.Close()
		return nil, err
	}
	if err := client.Register(types.RegisterPayload{
		UserID:            opts.UserID,
		CaseID:            opts.Case.CaseID,
		PatientIdentifier: opts.Case.PatientName,
		WindowID:          session.WindowID(),
	}); err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "register window")
	}
	platform.Focus()
	return p, nil
}

func (p *probe) Close() error {
	err := p.client.Close()
	p.session.Stop()
	return err
}

// logRenderer stands in for the banner, header, modal and speaker of a real window.
type logRenderer struct {
	logger *zap.Logger
}

func (r *logRenderer) ShowBanner(v fdp.BannerView) {
	r.logger.Info("banner shown",
		zap.String("case_id", v.CaseID),
		zap.String("patient", v.Patient),
		zap.Duration("duration", v.Duration))
}

func (r *logRenderer) HideBanner() { r.logger.Debug("banner hidden") }

func (r *logRenderer) RenderHeader(v fdp.HeaderView) {
	r.logger.Info("header",
		zap.String("case_id", v.CaseID),
		zap.String("patient", v.Patient),
		zap.Bool("collapsed", v.Collapsed),
		zap.Bool("warning", v.WarningActive),
		zap.String("warning_type", string(v.WarningType)),
		zap.Int("cases", v.MultiCaseCount))
}

func (r *logRenderer) ShowModal(v fdp.ModalView) {
	ids := make([]string, 0, len(v.Cases))
	for _, c := range v.Cases {
		ids = append(ids, c.CaseID)
	}
	r.logger.Warn("warning modal",
		zap.String("type", string(v.Type)),
		zap.String("title", v.Title),
		zap.String("message", v.Message),
		zap.Strings("cases", ids))
}

func (r *logRenderer) CloseModal() { r.logger.Info("warning modal closed") }

func (r *logRenderer) PlayCue() { r.logger.Info("audio cue") }

func (r *logRenderer) Speak(text string) { r.logger.Info("audio", zap.String("text", text)) }
