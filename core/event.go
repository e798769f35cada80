package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Event is the wire unit of the relay protocol: one JSON object per
// websocket text message. ConnID identifies the dispatching connection
// and is set by the transport, never by the client.
type Event struct {
	ConnID  int             `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{ConnID: %d, Type: %s, Payload.Size: %d}", e.ConnID, e.Type, len(e.Payload))
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// EventTransport is the connection-facing side of the relay: it delivers
// outbound events and surfaces inbound ones.
type EventTransport interface {
	// Send delivers the event to every open connection.
	Send(event *Event)
	// SendToConns delivers the event to the given connections. Unknown ids
	// are skipped.
	SendToConns(event *Event, connIDs ...int)
	Receive() <-chan *Event
}

type EventHandler func(context.Context, *Event) error

// EventRouter dispatches inbound events to registered handlers, one at a
// time. The serialized dispatch is deliberate: combined with the chat
// service mutex it gives every handler an atomic view of the shared
// state.
type EventRouter struct {
	handlers  map[string]EventHandler
	transport EventTransport
	logger    *slog.Logger
}

func NewEventRouter(logger *slog.Logger, transport EventTransport) *EventRouter {
	return &EventRouter{
		handlers:  make(map[string]EventHandler),
		transport: transport,
		logger:    logger,
	}
}

// On registers the handler for an event type. Registering a type twice
// is a programming error.
func (em *EventRouter) On(eventType string, handler EventHandler) {
	if _, ok := em.handlers[eventType]; ok {
		panic(fmt.Sprintf("handler(%s): already registered", eventType))
	}
	em.handlers[eventType] = handler
}

// Listen consumes the transport until the context is cancelled.
func (em *EventRouter) Listen(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				em.logger.Info("event router stopped")
				return
			case e := <-em.transport.Receive():
				em.dispatch(ctx, e)
			}
		}
	}()
}

func (em *EventRouter) dispatch(ctx context.Context, e *Event) {
	handler, ok := em.handlers[e.Type]
	if !ok {
		em.logger.Warn(fmt.Sprintf("no handler for %q", e.Type), slog.Int("conn", e.ConnID))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			em.logger.Error(fmt.Sprintf("handler(%s): panic: %v", e.Type, r))
		}
	}()
	if err := handler(ctx, e); err != nil {
		em.logger.Error(fmt.Sprintf("handler(%s): %v", e.Type, err), slog.Int("conn", e.ConnID))
	}
}

// Emit sends an event to every open connection.
func (em *EventRouter) Emit(t string, payload interface{}) error {
	e, err := newEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.Send(e)
	return nil
}

// EmitTo sends an event to the given connections.
func (em *EventRouter) EmitTo(t string, payload interface{}, connIDs ...int) error {
	if len(connIDs) == 0 {
		return nil
	}
	e, err := newEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.SendToConns(e, connIDs...)
	return nil
}

func newEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}
