package signal

import (
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(sid domain.ConnID, conn *WsSignalConn, msg domain.ClientMessage) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(msg.RoomID)).Msg("join")
	if err := ctl.Orch.Join(sid, msg.JoinRequest()); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		ctl.sendError(conn, err.Error())
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid domain.ConnID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
}

func (ctl *SignalWSController) handleEndCall(sid domain.ConnID, conn *WsSignalConn, msg domain.ClientMessage) {
	if err := ctl.Orch.EndCall(sid, msg.RoomID); err != nil {
		ctl.sendError(conn, err.Error())
	}
}
