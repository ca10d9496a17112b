package signal

import "github.com/dkeye/consult/internal/domain"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, domain.EventPong())
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, msg string) {
	ctl.sendJSON(conn, domain.EventError(msg))
}
