package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fdp/internal/app"
	"fdp/internal/config"
	"fdp/pkg/fdp"
	"fdp/pkg/types"
)

func TestParseOptions(t *testing.T) {
	t.Setenv("FDP_PROBE_USER", "u1")
	t.Setenv("FDP_PROBE_CASE", "LAB:S26-1")

	opts, level, err := parseOptions([]string{"-patient", "Doe, Jane", "-audio", " Brief ", "-ack"})
	require.NoError(t, err)
	assert.Equal(t, "u1", opts.UserID)
	assert.Equal(t, "LAB:S26-1", opts.Case.CaseID)
	assert.Equal(t, "Doe, Jane", opts.Case.PatientName)
	assert.Equal(t, fdp.AudioBrief, opts.Audio)
	assert.True(t, opts.AutoAck)
	assert.Equal(t, "http://localhost:8090", opts.URL)
	assert.Equal(t, "info", level)
}

func TestParseOptionsErrors(t *testing.T) {
	_, _, err := parseOptions([]string{"-bogus"})
	assert.Error(t, err)

	_, _, err = parseOptions([]string{"-case", "C-1"})
	assert.ErrorContains(t, err, "user ID")

	_, _, err = parseOptions([]string{"-user", "u1"})
	assert.ErrorContains(t, err, "case ID")
}

func startService(t *testing.T) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0

	application, err := app.NewApplication(cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return "http://" + application.Addr()
}

func TestProbe_TwoCasesRaiseAndResolveWarning(t *testing.T) {
	url := startService(t)
	logger := zaptest.NewLogger(t)

	first, err := startProbe(context.Background(), probeOptions{
		URL:    url,
		UserID: "u1",
		Case:   fdp.CaseContext{CaseID: "C-001", PatientName: "Doe, Jane"},
		Audio:  fdp.AudioFull,
	}, nil, logger)
	require.NoError(t, err)
	defer first.Close()

	second, err := startProbe(context.Background(), probeOptions{
		URL:     url,
		UserID:  "u1",
		Case:    fdp.CaseContext{CaseID: "C-002", PatientName: "Roe, Richard"},
		AutoAck: true,
	}, nil, logger)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		view, ok := first.session.Modal().Current()
		return ok && view.Type == types.WarningMultiCase && len(view.Cases) == 2
	}, 2*time.Second, 10*time.Millisecond)
	state := first.session.Indicator().State()
	assert.True(t, state.WarningActive)
	assert.Equal(t, 2, state.MultiCaseCount)

	assert.Eventually(t, func() bool {
		_, open := second.session.Modal().Current()
		return !open && second.session.Indicator().State().WarningActive
	}, 2*time.Second, 10*time.Millisecond, "auto-acknowledge closes the modal but keeps the badge")

	require.NoError(t, second.Close())

	assert.Eventually(t, func() bool {
		_, open := first.session.Modal().Current()
		return !open && !first.session.Indicator().State().WarningActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartProbe_DialFailure(t *testing.T) {
	_, err := startProbe(context.Background(), probeOptions{
		URL:    "ftp://localhost",
		UserID: "u1",
		Case:   fdp.CaseContext{CaseID: "C-001"},
	}, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}
