package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// Client -> server event names.
const (
	EventJoinChannel  = "join_channel"
	EventLeaveChannel = "leave_channel"
	EventSendMessage  = "send_message"
	EventTyping       = "typing"
	EventPing         = "ping"
)

// clientEvent is the union of every client payload.
type clientEvent struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	Content   string           `json:"content"`
	ClientID  string           `json:"clientId"`
	IsTyping  bool             `json:"isTyping"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, cid core.ConnectionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ConnectionID, c *WsSignalConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		cancel()
		c.Close()
		if ctl.limiter != nil {
			ctl.limiter.Forget(cid)
		}
		ctl.Orch.Disconnect(context.WithoutCancel(ctx), cid)
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, cid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnectionID, c *WsSignalConn, data []byte) {
	var ev clientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad json")
		metrics.InboundEvents.WithLabelValues("malformed").Inc()
		ctl.sendError(c, "", "bad_payload", "", "")
		return
	}

	switch ev.Type {
	case EventJoinChannel, EventLeaveChannel, EventSendMessage, EventTyping, EventPing:
		metrics.InboundEvents.WithLabelValues(ev.Type).Inc()
	default:
		metrics.InboundEvents.WithLabelValues("unknown").Inc()
	}

	switch ev.Type {
	case EventJoinChannel:
		ctl.handleJoin(ctx, cid, c, ev)
	case EventLeaveChannel:
		ctl.handleLeave(cid, c, ev)
	case EventSendMessage:
		ctl.handleSend(ctx, cid, c, ev)
	case EventTyping:
		ctl.handleTyping(cid, c, ev)
	case EventPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", ev.Type).Msg("unknown signal")
		ctl.sendError(c, ev.Type, "unknown_event", "", "")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("reply not delivered")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, event, code string, ch domain.ChannelID, clientID string) {
	ctl.sendJSON(c, core.ErrorEvent{
		Type:      core.EventError,
		Event:     event,
		Error:     code,
		ChannelID: ch,
		ClientID:  clientID,
	})
}

// errorCode turns a coordinator error into the short code sent to clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid_payload"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "server_error"
	}
}
