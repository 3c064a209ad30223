package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"campus-chat/services"

	"github.com/gorilla/websocket"
)

// connection owns the single writer of a websocket. Responses and fanned out
// events are merged into one write loop.
type connection struct {
	ws         *websocket.Conn
	session    *services.Session
	log        *slog.Logger
	responses  chan services.Frame
	closed     chan struct{}
	once       sync.Once
	writeWait  time.Duration
	pingPeriod time.Duration
}

func newConnection(ws *websocket.Conn, session *services.Session, log *slog.Logger, bufferSize int, writeWait, pingPeriod time.Duration) *connection {
	return &connection{
		ws:         ws,
		session:    session,
		log:        log,
		responses:  make(chan services.Frame, bufferSize),
		closed:     make(chan struct{}),
		writeWait:  writeWait,
		pingPeriod: pingPeriod,
	}
}

// reply queues a response. A client that does not read its responses is cut off.
func (c *connection) reply(f services.Frame) {
	select {
	case <-c.closed:
	case c.responses <- f:
	default:
		c.log.Warn("Response buffer full, closing connection", "connection_id", c.session.ConnectionID)
		c.close(websocket.ClosePolicyViolation, "response buffer full")
	}
}

func (c *connection) close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(c.writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case f := <-c.responses:
			if err := c.write(f); err != nil {
				c.close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case e := <-c.session.Sink.Events():
			f, err := services.EventFrame(e)
			if err != nil {
				c.log.Error("Event not serializable", "event", e.Name, "error", err)
				continue
			}
			if err := c.write(f); err != nil {
				c.close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

func (c *connection) write(f services.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}
