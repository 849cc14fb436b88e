package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fdp/internal/app"
	"fdp/internal/config"
	"fdp/pkg/sessionclient"
	"fdp/pkg/types"
)

const frameTimeout = 3 * time.Second

// testService is a running awareness application on an ephemeral port.
type testService struct {
	app  *app.Application
	base string
}

// startService starts the application with the audit trail enabled.
// mutate may adjust the configuration; clk may be nil for the wall clock.
func startService(t *testing.T, clk clock.Clock, mutate func(*config.Config)) *testService {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg, clk, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return &testService{app: application, base: "http://" + application.Addr()}
}

func (s *testService) auditKinds(t *testing.T) map[types.AuditEventKind]int {
	t.Helper()
	resp, err := http.Get(s.base + "/api/audit?limit=1000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []types.AuditEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	kinds := make(map[types.AuditEventKind]int)
	for _, e := range body.Events {
		kinds[e.Kind]++
	}
	return kinds
}

// window is a session client plus everything the service sent it.
type window struct {
	client *sessionclient.Client
	frames chan types.OutboundMessage
	closed chan error
}

func openWindow(t *testing.T, s *testService) *window {
	t.Helper()
	w := &window{
		frames: make(chan types.OutboundMessage, 128),
		closed: make(chan error, 1),
	}
	client, err := sessionclient.Dial(context.Background(), sessionclient.DefaultConfig(s.base), w,
		sessionclient.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	w.client = client
	t.Cleanup(func() { _ = client.Close() })
	return w
}

func (w *window) OnConnected()             {}
func (w *window) OnDisconnected(err error) { w.closed <- err }

func (w *window) OnAck(a types.AckPayload) {
	w.frames <- types.OutboundMessage{Type: types.MessageTypeAck, Payload: a}
}

func (w *window) OnWarning(warning types.SessionWarning) {
	w.frames <- types.OutboundMessage{Type: types.MessageTypeWarning, Payload: warning}
}

func (w *window) OnSync(payload types.SyncPayload) {
	w.frames <- types.OutboundMessage{Type: types.MessageTypeSync, Payload: payload}
}

func (w *window) OnError(e types.ErrorPayload) {
	w.frames <- types.OutboundMessage{Type: types.MessageTypeError, Payload: e}
}

// register sends a registration and waits for its ack.
func (w *window) register(t *testing.T, userID, windowID, caseID string) types.AckPayload {
	t.Helper()
	require.NoError(t, w.client.Register(types.RegisterPayload{
		UserID:   userID,
		WindowID: windowID,
		CaseID:   caseID,
	}))
	return w.expect(t, types.MessageTypeAck).Payload.(types.AckPayload)
}

// expect skips frames until one of msgType arrives.
func (w *window) expect(t *testing.T, msgType string) types.OutboundMessage {
	t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case msg := <-w.frames:
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %s frame within %s", msgType, frameTimeout)
			return types.OutboundMessage{}
		}
	}
}

// nextWarning returns the next warning frame without blocking, if any.
func (w *window) nextWarning() (types.SessionWarning, bool) {
	for {
		select {
		case msg := <-w.frames:
			if warning, ok := msg.Payload.(types.SessionWarning); ok {
				return warning, true
			}
		default:
			return types.SessionWarning{}, false
		}
	}
}
