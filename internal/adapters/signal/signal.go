// Package signal is the websocket entry point: it upgrades the per-user
// connection, runs the read/write pumps and routes every inbound envelope to
// the owning service.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/app"
	"github.com/collabquest/relay/internal/config"
	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Controller struct {
	Orch    *app.Orchestrator
	Cfg     *config.Config
	limiter *RateLimiter
}

func NewController(orch *app.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{
		Orch:    orch,
		Cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
	}
}

// wsConn implements core.SignalConnection over a gorilla websocket. Sends go
// through a buffered channel drained by the write pump; a full buffer is
// backpressure, never a block.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades /ws/:user_id into the user's persistent connection.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	userID, err := domain.ParseUserID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	device := c.GetString("device_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}

	// Resolve the display name once per connection; it stamps every message
	// this user sends. Offline collaborator just means no enrichment.
	senderName := ""
	if u, err := ctl.Orch.Store.User(c.Request.Context(), userID); err == nil {
		senderName = u.Username
	}

	handle := ctl.Orch.OnConnect(userID, conn, device)
	log.Info().Str("module", "signal").Str("user", string(userID)).Str("device", device).Msg("new connection")

	d := newDispatcher(ctl, handle, userID, senderName)
	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn, d)
}
