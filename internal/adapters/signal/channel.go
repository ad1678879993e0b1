package signal

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, cid core.ConnectionID, conn *WsSignalConn, ev clientEvent) {
	if err := ctl.Orch.JoinChannel(ctx, cid, ev.ChannelID); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("channel", string(ev.ChannelID)).Msg("join rejected")
		ctl.sendError(conn, ev.Type, errorCode(err), ev.ChannelID, "")
	}
}

func (ctl *SignalWSController) handleLeave(cid core.ConnectionID, conn *WsSignalConn, ev clientEvent) {
	if err := ctl.Orch.LeaveChannel(cid, ev.ChannelID); err != nil {
		ctl.sendError(conn, ev.Type, errorCode(err), ev.ChannelID, "")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("channel", string(ev.ChannelID)).Msg("leave")
}
