package signal

import (
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRelaySignal(sid domain.ConnID, conn *WsSignalConn, msg domain.ClientMessage) {
	if len(msg.Signal) == 0 {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if msg.SenderID != "" && msg.SenderID != sid {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("claimed", string(msg.SenderID)).Msg("ignoring claimed sender id")
	}
	if err := ctl.Orch.SendSignal(sid, msg.RoomID, msg.Signal); err != nil {
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *SignalWSController) handleChat(sid domain.ConnID, conn *WsSignalConn, msg domain.ClientMessage) {
	if err := ctl.Orch.SendChat(sid, msg.ChatRequest()); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("chat rejected")
		ctl.sendError(conn, err.Error())
	}
}
