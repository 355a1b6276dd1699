package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client — одно сокет-соединение пользователя. Личность берётся из токена
// при апгрейде; поля userId в событиях клиента не читаются.
// NewClient -> Start -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan OutgoingMessage
	actor model.Actor

	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, actor model.Actor) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan OutgoingMessage, sendBufSize),
		actor: actor,
		done:  make(chan struct{}),
	}
}

func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

func (c *Client) Wait() { c.wg.Wait() }

// Close можно вызывать многократно из любой горутины.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		// разблокирует ReadMessage/WriteMessage в помпах
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws read deadline user=%s: %v", c.actor.UserID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		msg, err := c.readEvent()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read user=%s: %v", c.actor.UserID, err)
			}
			return
		}
		if msg == nil {
			c.hub.sendToClient(c, errorMessage("malformed event"))
			continue
		}
		c.hub.HandleMessage(ctx, c, *msg)
	}
}

// readEvent возвращает (nil, nil) на кадр, который не разбирается как событие.
func (c *Client) readEvent() (*IncomingMessage, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warnf("ws malformed event user=%s: %v", c.actor.UserID, err)
		return nil, nil
	}
	return &msg, nil
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, nil)
			return
		case msg := <-c.send:
			if err := c.writeEvent(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeEvent кодирует событие в буфер из пула; ошибка кодирования не рвёт соединение.
func (c *Client) writeEvent(msg OutgoingMessage) error {
	buf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(buf)
	buf.Reset()
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		logger.Errorf("ws encode %s user=%s: %v", msg.Type, c.actor.UserID, err)
		return nil
	}
	return c.write(websocket.TextMessage, bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

func (c *Client) write(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}
