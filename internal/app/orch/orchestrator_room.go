package orch

import (
	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join adds id to the requested room. Others get user-joined, the caller gets
// existing-users, then the whole room gets participants-updated. All three
// are emitted under the registry lock, so no concurrent mutation can
// interleave with them.
func (o *Orchestrator) Join(id domain.ConnID, req domain.JoinRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	var pub, prevPub core.PublishResult
	res, err := o.Registry.Join(id, req.RoomID, req.DisplayName, req.Role, func(res app.JoinResult) {
		if prev := res.Previous; prev != nil && !prev.Ended {
			prevPub = app.Fanout(prev.Members, "", encode(domain.EventParticipantsUpdated(app.Roster(prev.Members))))
		}
		pub.Merge(app.Fanout(res.Others, "", encode(domain.EventUserJoined(res.Self.RosterEntry))))
		if err := res.Self.Conn.TrySend(encode(domain.EventExistingUsers(app.Roster(res.Others)))); err != nil {
			pub.Dropped = append(pub.Dropped, id)
		}
		pub.Merge(app.Fanout(res.Members, "", encode(domain.EventParticipantsUpdated(app.Roster(res.Members)))))
	})
	if err != nil {
		return err
	}
	log.Info().Str("module", "app.orch").Str("sid", string(id)).Str("room", string(req.RoomID)).
		Str("role", string(req.Role)).Msg("join")

	if prev := res.Previous; prev != nil {
		o.applyPolicy(prev.Room, prevPub)
		if prev.Ended {
			o.roomEnded(prev.Room)
		}
	}
	o.applyPolicy(res.Room, pub)
	return nil
}

// Leave removes id from its room; the connection stays usable.
func (o *Orchestrator) Leave(id domain.ConnID) {
	var pub core.PublishResult
	res, ok := o.Registry.Leave(id, announceLeave(&pub))
	o.finishLeave(res, ok, pub)
}

// Disconnect is Leave plus forgetting the connection. Safe to call twice.
func (o *Orchestrator) Disconnect(id domain.ConnID) {
	var pub core.PublishResult
	res, ok := o.Registry.Disconnect(id, announceLeave(&pub))
	o.finishLeave(res, ok, pub)
}

func announceLeave(pub *core.PublishResult) func(app.LeaveResult) {
	return func(res app.LeaveResult) {
		if res.Ended {
			return
		}
		*pub = app.Fanout(res.Members, "", encode(domain.EventParticipantsUpdated(app.Roster(res.Members))))
	}
}

func (o *Orchestrator) finishLeave(res app.LeaveResult, ok bool, pub core.PublishResult) {
	if !ok {
		return
	}
	log.Info().Str("module", "app.orch").Str("sid", string(res.Member.ConnectionID)).Str("room", string(res.Room)).Msg("leave")
	o.applyPolicy(res.Room, pub)
	if res.Ended {
		o.roomEnded(res.Room)
	}
}

// EndCall notifies the rest of the caller's room. The caller stays joined
// until it leaves.
func (o *Orchestrator) EndCall(id domain.ConnID, room domain.RoomID) error {
	current, ok := o.Registry.RoomOf(id)
	if !ok || current != room {
		return ErrNotInRoom
	}
	log.Info().Str("module", "app.orch").Str("sid", string(id)).Str("room", string(room)).Msg("end call")
	o.applyPolicy(room, o.Relay.SendExcept(room, id, encode(domain.EventCallEnded())))
	return nil
}
