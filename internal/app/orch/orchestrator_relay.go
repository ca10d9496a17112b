package orch

import (
	"encoding/json"

	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// SendSignal relays an opaque envelope to everyone in room except the
// sender. The sender id is always the sending connection's own id.
func (o *Orchestrator) SendSignal(id domain.ConnID, room domain.RoomID, signal json.RawMessage) error {
	current, ok := o.Registry.RoomOf(id)
	if !ok || current != room {
		return ErrNotInRoom
	}
	res := o.Relay.SendExcept(room, id, encode(domain.EventReceiveSignal(id, signal)))
	log.Debug().Str("module", "app.orch").Str("sid", string(id)).Str("room", string(room)).
		Int("send_to", res.SendTo).Msg("signal relayed")
	o.applyPolicy(room, res)
	return nil
}

// SendChat relays a chat envelope to every member of room, sender included.
func (o *Orchestrator) SendChat(id domain.ConnID, req domain.ChatRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	current, ok := o.Registry.RoomOf(id)
	if !ok || current != req.RoomID {
		return ErrNotInRoom
	}
	res := o.Relay.SendAll(req.RoomID, encode(domain.EventReceiveChat(req.Message)))
	log.Debug().Str("module", "app.orch").Str("sid", string(id)).Str("room", string(req.RoomID)).
		Str("chat_type", string(req.Message.Type)).Int("send_to", res.SendTo).Msg("chat relayed")
	o.applyPolicy(req.RoomID, res)
	return nil
}

// ParticipantCount returns how many connections are in room.
func (o *Orchestrator) ParticipantCount(room domain.RoomID) int {
	return len(o.Registry.Members(room))
}
