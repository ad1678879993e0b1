package signal

import (
	"context"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSend(ctx context.Context, cid core.ConnectionID, conn *WsSignalConn, ev clientEvent) {
	if !ctl.allow(cid) {
		metrics.MessagesSent.WithLabelValues("rate_limited").Inc()
		ctl.sendError(conn, ev.Type, "rate_limited", ev.ChannelID, ev.ClientID)
		return
	}
	msg, err := ctl.Orch.SendMessage(ctx, cid, orch.SendInput{ChannelID: ev.ChannelID, Content: ev.Content})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("channel", string(ev.ChannelID)).Msg("send rejected")
		ctl.sendError(conn, ev.Type, errorCode(err), ev.ChannelID, ev.ClientID)
		return
	}
	ctl.sendJSON(conn, core.MessageAck{
		Type:      core.EventMessageAck,
		ClientID:  ev.ClientID,
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
	})
}

// handleTyping answers a rate-limited indicator with an error and does not
// relay it.
func (ctl *SignalWSController) handleTyping(cid core.ConnectionID, conn *WsSignalConn, ev clientEvent) {
	if !ctl.allow(cid) {
		ctl.sendError(conn, ev.Type, "rate_limited", ev.ChannelID, "")
		return
	}
	if err := ctl.Orch.Typing(cid, ev.ChannelID, ev.IsTyping); err != nil {
		ctl.sendError(conn, ev.Type, errorCode(err), ev.ChannelID, "")
	}
}

func (ctl *SignalWSController) allow(cid core.ConnectionID) bool {
	return ctl.limiter == nil || ctl.limiter.Allow(cid)
}
