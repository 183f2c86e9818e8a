package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/protocol"
	"github.com/skypro1111/voice-translate-service/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = protocol.MaxPacketSize
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamEvent is a JSON text message sent to a streaming client
type StreamEvent struct {
	Type  string            `json:"type"` // started, run or error
	RunID string            `json:"run_id,omitempty"`
	Run   *pipeline.RunInfo `json:"run,omitempty"`
	Error string            `json:"error,omitempty"`
}

// streamConn carries ingest packets for one session over a websocket.
// Binary messages are protocol packets; results come back as StreamEvents.
type streamConn struct {
	conn       *websocket.Conn
	sessionID  uint32
	sessions   *session.Manager
	dispatcher *Dispatcher
	logger     *slog.Logger

	// baseCtx bounds runs finished on behalf of this connection
	baseCtx   context.Context
	finishing sync.WaitGroup

	writeMu sync.Mutex
}

// handleStream upgrades GET /sessions/{id}/stream to a websocket
func (h *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			slog.Uint64("session_id", uint64(id)),
			slog.String("error", err.Error()))
		return
	}

	h.sessions.GetOrCreateSession(id)

	c := &streamConn{
		conn:       conn,
		sessionID:  id,
		sessions:   h.sessions,
		dispatcher: h.dispatcher,
		logger:     h.logger.With(slog.Uint64("session_id", uint64(id))),
		baseCtx:    h.ctx,
	}

	c.logger.Info("Stream connected", slog.String("remote_addr", r.RemoteAddr))
	c.serve()
}

// serve runs the read loop until the peer goes away
func (c *streamConn) serve() {
	done := make(chan struct{})
	go c.pingLoop(done)

	c.readPump()

	close(done)
	c.finishing.Wait()

	// A capture the peer abandoned has no one to finish it
	if err := c.sessions.CancelRun(c.sessionID); err != nil && !errors.Is(err, session.ErrNoActiveRun) && !errors.Is(err, session.ErrSessionNotFound) {
		c.logger.Warn("Failed to cancel abandoned run", slog.String("error", err.Error()))
	}

	c.conn.Close()
	c.logger.Info("Stream disconnected")
}

func (c *streamConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Stream read error", slog.String("error", err.Error()))
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			c.send(StreamEvent{Type: "error", Error: "expected binary ingest packets"})
			continue
		}

		c.handleMessage(data)
	}
}

func (c *streamConn) handleMessage(data []byte) {
	header, err := protocol.ParseHeader(data)
	if err != nil {
		c.send(StreamEvent{Type: "error", Error: err.Error()})
		return
	}
	if header.SessionID != c.sessionID {
		c.send(StreamEvent{Type: "error", Error: "packet session does not match stream"})
		return
	}

	packet, err := c.dispatcher.Dispatch(data)
	if err != nil {
		c.send(StreamEvent{Type: "error", Error: err.Error()})
		return
	}

	switch packet.Header.PacketType {
	case protocol.PacketTypeStart:
		event := StreamEvent{Type: "started"}
		if sess, ok := c.sessions.GetSession(c.sessionID); ok {
			if info := sess.GetSessionInfo(); info.CurrentRun != nil {
				event.RunID = info.CurrentRun.ID
			}
		}
		c.send(event)

	case protocol.PacketTypeStop:
		c.finishing.Add(1)
		go func() {
			defer c.finishing.Done()

			run, err := c.dispatcher.Finish(c.baseCtx, c.sessionID)
			if err != nil && (run.ID == "" || errors.Is(err, pipeline.ErrInvalidTransition)) {
				c.send(StreamEvent{Type: "error", Error: err.Error()})
				return
			}
			info := run.Info()
			c.send(StreamEvent{Type: "run", RunID: run.ID, Run: &info})
		}()
	}
}

// send writes one event; websocket connections support a single writer
func (c *streamConn) send(event StreamEvent) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(event); err != nil {
		c.logger.Debug("Failed to write stream event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}

func (c *streamConn) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
