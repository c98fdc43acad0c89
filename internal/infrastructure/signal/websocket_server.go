package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vcv/internal/core/domain"
	apperrors "vcv/pkg/errors"
	"vcv/pkg/optimize"
)

var encodeBuffers = optimize.NewBufferPool(1024, 64*1024)

type ServerConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBufferSize    int
	MaxMessageSize    int64
	MessagesPerSecond float64 // 0 disables the per-connection limiter
	Burst             int
	AllowedOrigins    []string // empty allows any origin
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBufferSize:    64,
		MaxMessageSize:    64 * 1024,
		MessagesPerSecond: 50,
		Burst:             100,
	}
}

// WebSocketServer carries the signaling protocol over WebSocket. Each
// connection gets a fresh peer id.
type WebSocketServer struct {
	gateway  *Gateway
	cfg      ServerConfig
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[domain.PeerID]*wsConn

	logger *zap.SugaredLogger
}

func NewWebSocketServer(gateway *Gateway, cfg ServerConfig, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		gateway: gateway,
		cfg:     cfg,
		conns:   make(map[domain.PeerID]*wsConn),
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	c := newWSConn(domain.PeerID(uuid.NewString()), conn, s.cfg.SendBufferSize)
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.gateway.Connect(c)
	s.logger.Infow("peer connected via WebSocket", "peer_id", c.id, "remote_addr", r.RemoteAddr)

	go s.writePump(c)
	s.readLoop(c)

	c.close()
	s.gateway.Disconnect(c)
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.logger.Infow("peer disconnected", "peer_id", c.id)
}

// readLoop handles requests one at a time, in arrival order.
func (s *WebSocketServer) readLoop(c *wsConn) {
	conn := c.conn
	conn.SetReadLimit(s.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading message from peer", "peer_id", c.id, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		var msg SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debugw("malformed message", "peer_id", c.id, "error", err)
			c.Send(Response{
				Type:  TypeResponse,
				ID:    requestID(data),
				Error: &ErrorBody{Code: string(apperrors.ErrCodeInvalidInput), Message: "malformed message"},
			})
			continue
		}
		if limiter != nil && !limiter.Allow() {
			s.logger.Warnw("signal rate limit exceeded", "peer_id", c.id, "type", msg.Type)
			s.gateway.reply(c, msg.ID, nil, apperrors.NewRateLimitError())
			continue
		}

		s.gateway.HandleMessage(context.Background(), c, msg)
	}
}

// requestID recovers the id of a frame whose other fields do not decode.
// Frames that are not JSON objects get an uncorrelated reply.
func requestID(data []byte) json.RawMessage {
	var partial struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return nil
	}
	return partial.ID
}

func (s *WebSocketServer) writePump(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case v := <-c.send:
			if err := s.writeJSON(c, v); err != nil {
				s.logger.Infow("error writing to peer", "peer_id", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "peer_id", c.id, "error", err)
				c.close()
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.cfg.WriteTimeout))
			return
		}
	}
}

func (s *WebSocketServer) writeJSON(c *wsConn, v interface{}) error {
	buf := encodeBuffers.Get()
	defer encodeBuffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// Connections returns the number of open signaling connections.
func (s *WebSocketServer) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close drops every connection. Their peers leave their rooms as the read
// loops unwind.
func (s *WebSocketServer) Close() {
	s.mu.RLock()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

type wsConn struct {
	id   domain.PeerID
	conn *websocket.Conn
	send chan interface{}

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(id domain.PeerID, conn *websocket.Conn, buffer int) *wsConn {
	if buffer <= 0 {
		buffer = 1
	}
	return &wsConn{
		id:   id,
		conn: conn,
		send: make(chan interface{}, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() domain.PeerID { return c.id }

// Send never blocks. A connection whose queue is full is closed, so a client
// never silently misses an event.
func (c *wsConn) Send(v interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- v:
		return true
	case <-c.done:
		return false
	default:
		c.close()
		return false
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
