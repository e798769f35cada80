package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const baseTimeout = 2 * time.Second

func waitOrTimeout(t *testing.T, f func(), timeout time.Duration, msg string) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal(msg)
	}
}

type wsFixture struct {
	t       *testing.T
	manager *ConnManager
	server  *httptest.Server
	clients []*testWSClient
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// setUpWSFixture starts a manager behind an httptest server and dials
// nClients sequentially, so client i holds conn id i+1.
func setUpWSFixture(t *testing.T, nClients int) *wsFixture {
	ctx, cancel := context.WithCancel(context.Background())
	f := &wsFixture{t: t, cancel: cancel}

	f.manager = NewConnManager(ctx, &f.wg, testLogger())
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := f.manager.Connect(w, r); err != nil {
			t.Logf("connect: %v", err)
		}
	}))

	url := getWSURLFromHTTPURL(f.server.URL)
	for i := 0; i < nClients; i++ {
		client, err := dialTestWSClient(url)
		require.NoErrorf(t, err, "client %d: failed to connect to server", i)
		f.clients = append(f.clients, client)
		// the id is assigned after the handshake completes, wait for it so
		// ids stay aligned with the dialing order
		n := i + 1
		require.Eventually(t, func() bool {
			return f.manager.Len() == n
		}, baseTimeout, 5*time.Millisecond, "client not registered with the manager")
	}

	return f
}

func (f *wsFixture) tearDown() {
	for _, client := range f.clients {
		client.Close()
	}
	f.cancel()
	f.server.Close()

	waitOrTimeout(f.t, func() {
		f.wg.Wait()
	}, baseTimeout, "timeout waiting for connection loops to stop")
}

// receiveOrTimeout pulls the next inbound event off the manager.
func (f *wsFixture) receiveOrTimeout() *Event {
	select {
	case e := <-f.manager.Receive():
		return e
	case <-time.After(baseTimeout):
		f.t.Fatal("timeout waiting for inbound event")
		return nil
	}
}

func getWSURLFromHTTPURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

type testWSClient struct {
	conn *websocket.Conn
}

func dialTestWSClient(url string) (*testWSClient, error) {
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusSwitchingProtocols {
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
	return &testWSClient{conn: conn}, nil
}

func (c *testWSClient) SendEvent(t *testing.T, eventType string, payload interface{}) {
	b, err := json.Marshal(payload)
	require.Nil(t, err)
	require.Nil(t, c.conn.WriteJSON(&Event{Type: eventType, Payload: b}))
}

func (c *testWSClient) SendRaw(t *testing.T, data string) {
	require.Nil(t, c.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// ReadEvent blocks for the next text frame within the timeout. Ping
// frames are handled transparently by gorilla.
func (c *testWSClient) ReadEvent(timeout time.Duration) (*Event, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	var e Event
	if err := c.conn.ReadJSON(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *testWSClient) Close() {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}
