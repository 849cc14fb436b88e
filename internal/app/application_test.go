package app

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fdp/internal/api"
	"fdp/internal/config"
	"fdp/internal/database"
	pkgdatabase "fdp/pkg/database"
	"fdp/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

func readFrame(t *testing.T, conn *websocket.Conn) types.OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg types.OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = -1

	_, err := NewApplication(cfg, nil, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestApplication_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	application, err := NewApplication(cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	addr := application.Addr()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "register",
		"payload": types.RegisterPayload{
			UserID: "u1", CaseID: "C-001", PatientIdentifier: "Jane Doe",
			ViewerType: "pacs", WindowID: "w1", OpenedAt: 1700000000000,
		},
	}))
	ack := readFrame(t, conn)
	assert.Equal(t, types.MessageTypeAck, ack.Type)

	resp, err := http.Get("http://" + addr + "/api/stats")
	require.NoError(t, err)
	var stats api.StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	_ = resp.Body.Close()
	assert.Equal(t, 1, stats.Sessions.Registrations)
	assert.Equal(t, 1, stats.Connections["total_connections"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, application.Stop(ctx))

	// The client sees a normal close.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// Stop flushed the audit queue.
	trail, err := database.NewManager(pkgdatabase.DefaultConfig(cfg.Audit.Path), database.Options{QueueSize: 1, WriteTimeout: time.Second}, nil, nil)
	require.NoError(t, err)
	defer trail.Close()

	events, err := trail.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, types.AuditRegister, events[len(events)-1].Kind)
	for _, e := range events {
		assert.NotContains(t, e.Detail, "Jane Doe")
		assert.NotContains(t, e.Detail, "C-001")
	}
}

func TestApplication_AuditDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = false
	application, err := NewApplication(cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	defer application.Stop(context.Background())

	resp, err := http.Get("http://" + application.Addr() + "/api/audit")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
