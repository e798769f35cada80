package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/context"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// ConnIDGenerator assigns an id to a freshly upgraded connection. Ids
// must be unique among live connections; they are the transport handle
// everything else (registry, rooms) keys on.
type ConnIDGenerator interface {
	Generate(r *http.Request, conn *websocket.Conn) (int, error)
}

type AutoIncrementConnIDGenerator struct {
	counter int64
	mu      sync.Mutex
}

func (g *AutoIncrementConnIDGenerator) Generate(_ *http.Request, _ *websocket.Conn) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return int(g.counter), nil
}

// ConnManager owns every live websocket connection. Connections are
// anonymous at this layer: identity only exists after a register_user
// event reaches the chat service.
type ConnManager struct {
	conns   map[int]*Conn
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger

	idGenerator ConnIDGenerator

	onConnectionOpened func(int)
	onConnectionClosed func(int)

	receivedEvent chan *Event

	upgrader        websocket.Upgrader
	ReadStreamSize  int
	WriteStreamSize int
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithConnIDGenerator(g ConnIDGenerator) ManagerOption {
	return func(m *ConnManager) {
		m.idGenerator = g
	}
}

func NewConnManager(context context.Context, wg *sync.WaitGroup, logger *slog.Logger, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		connWg:             wg,
		conns:              make(map[int]*Conn),
		logger:             logger,
		context:            context,
		idGenerator:        &AutoIncrementConnIDGenerator{},
		upgrader:           defaultUpgrader,
		ReadStreamSize:     100,
		WriteStreamSize:    100,
		onConnectionOpened: func(int) {},
		onConnectionClosed: func(int) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.receivedEvent = make(chan *Event, m.ReadStreamSize)

	return m
}

func (m *ConnManager) Receive() <-chan *Event {
	return m.receivedEvent
}

func (m *ConnManager) OnConnectionOpened(f func(int)) {
	m.onConnectionOpened = f
}

func (m *ConnManager) OnConnectionClosed(f func(int)) {
	m.onConnectionClosed = f
}

func (m *ConnManager) IsConnected(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[id]
	return ok
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Connect upgrades the request and starts the connection's read and
// write loops.
func (m *ConnManager) Connect(w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	id, err := m.idGenerator.Generate(r, conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("generate conn id: %w", err)
	}

	wsConn := &Conn{
		id:          id,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		readStream:  m.receivedEvent,
		ticker:      time.NewTicker(pingPeriod),
		logger:      m.logger.With(slog.Int("connection", id)),
		notifyDisconnect: func() {
			m.disconnect(id)
		},
	}

	m.mu.Lock()
	m.conns[id] = wsConn
	m.mu.Unlock()

	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	m.onConnectionOpened(id)

	return nil
}

func (m *ConnManager) disconnect(id int) {
	m.mu.Lock()
	conn, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, id)
	m.mu.Unlock()

	conn.close()
	m.onConnectionClosed(id)
}

// Shutdown closes every live connection. The caller's wait group tracks
// the draining read/write loops.
func (m *ConnManager) Shutdown() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[int]*Conn)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.close()
		m.onConnectionClosed(conn.id)
	}
}

// Send delivers an event to every open connection.
func (m *ConnManager) Send(e *Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.conns {
		m.trySend(conn, e)
	}
}

// SendToConns delivers an event to the given connections. Ids that are
// no longer connected are skipped: delivery is best effort, the room log
// keeps the history for replay.
func (m *ConnManager) SendToConns(e *Event, connIDs ...int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range connIDs {
		conn, ok := m.conns[id]
		if !ok {
			continue
		}
		m.trySend(conn, e)
	}
}

// trySend drops the event when the connection's write stream is full
// rather than blocking the relay on one slow client.
func (m *ConnManager) trySend(conn *Conn, e *Event) {
	select {
	case conn.writeStream <- e:
	default:
		m.logger.Warn("write stream full, dropping event",
			slog.Int("connection", conn.id), slog.String("type", e.Type))
	}
}
