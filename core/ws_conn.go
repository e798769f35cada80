package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one client connection. Its read loop feeds decoded events into
// the manager's shared receive stream; its write loop drains the
// per-connection write stream.
type Conn struct {
	conn             *websocket.Conn
	context          context.Context
	id               int
	writeStream      chan *Event
	readStream       chan *Event
	notifyDisconnect func()
	ticker           *time.Ticker
	logger           *slog.Logger
}

func (c *Conn) close() {
	close(c.writeStream)
}

func (c *Conn) readLoop() {
	defer func() {
		c.notifyDisconnect()
		c.conn.Close()
		c.logger.Info("read loop stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			// a malformed frame must not kill the connection's good frames
			c.logger.Error(err.Error())
			continue
		}
		event.ConnID = c.id

		c.logger.Debug(event.String())

		select {
		case c.readStream <- &event:
		case <-c.context.Done():
			return
		}
	}
}

func (c *Conn) writeLoop() {
	var err error
	defer func() {
		c.ticker.Stop()
		if err != nil {
			c.conn.Close()
		}
		c.logger.Info("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, werr := c.conn.NextWriter(websocket.TextMessage)
			if werr != nil {
				err = werr
				c.logger.Error(fmt.Sprintf("getting next writer: %v", werr))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error(err.Error())
			}
			w.Close()
		case <-c.context.Done():
			return
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}
