package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump owns the connection teardown: when the read loop exits for any
// reason the session is unregistered, which also escalates a mid-call
// disconnect to an implicit hang-up.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *wsConn, d *dispatcher) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(d.userID)).Msg("connection closing")
		cancel()
		d.close()
		ctl.Orch.OnDisconnect(d.handle)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("user", string(d.userID)).Msg("readPump unexpected close")
				}
				return
			}
			d.route(data)
		}
	}
}
