package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fdp/pkg/interfaces"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newSocketPair returns the server and client ends of a live socket.
func newSocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case ws := <-serverSide:
		return ws, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side of socket never arrived")
		return nil, nil
	}
}

func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Connection = &Connection{}
}

func TestConnection_NewConnectionInitialization(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, nil)
	defer conn.Close()

	assert.NotEmpty(t, conn.GetID())
	assert.Equal(t, writeQueueSize, cap(conn.writeCh))
	assert.True(t, conn.alive.Load())

	other := NewConnection(server, nil)
	assert.NotEqual(t, conn.GetID(), other.GetID())
	other.cancel()
}

func TestConnection_WriteJSONPreservesOrder(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConnection(server, nil)
	defer conn.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, conn.WriteJSON(map[string]int{"seq": i}))
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 20; i++ {
		var got map[string]int
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, i, got["seq"])
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, nil)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close(), "close is idempotent")
	assert.Equal(t, ErrConnectionClosed, conn.WriteJSON(map[string]string{"a": "b"}))

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestConnection_WriteJSONRejectsUnmarshalable(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, nil)
	defer conn.Close()

	assert.Equal(t, ErrInvalidJSON, conn.WriteJSON(make(chan int)))
}

func TestConnection_CloseWithCodeSendsCloseFrame(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConnection(server, nil)

	require.NoError(t, conn.CloseWithCode(websocket.CloseNormalClosure, "shutdown"))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestConnection_AliveFlag(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, nil)
	defer conn.Close()

	assert.True(t, conn.checkAlive(), "new connections start alive")
	assert.False(t, conn.checkAlive(), "check resets the flag")
	conn.markAlive()
	assert.True(t, conn.checkAlive())
}

func TestConnection_StalledReaderIsClosedWithoutBlocking(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, nil)
	defer conn.Close()

	// The client never reads, so socket buffers and then the queue fill up.
	frame := map[string]string{"pad": strings.Repeat("x", 64*1024)}
	start := time.Now()
	var err error
	for i := 0; i < 2000 && err == nil; i++ {
		err = conn.WriteJSON(frame)
	}

	assert.ErrorIs(t, err, ErrWriteQueueFull)
	assert.Less(t, time.Since(start), writeTimeout, "a full queue must not stall the caller")
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("slow connection should be closed")
	}
	assert.Equal(t, ErrConnectionClosed, conn.WriteJSON(frame))

	healthyServer, healthyClient := newSocketPair(t)
	healthy := NewConnection(healthyServer, nil)
	defer healthy.Close()
	require.NoError(t, healthy.WriteJSON(map[string]int{"seq": 1}))
	require.NoError(t, healthyClient.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]int
	require.NoError(t, healthyClient.ReadJSON(&got))
	assert.Equal(t, 1, got["seq"])
}
