package app

import (
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

// Fanout pushes frame to every member except the one with id except.
// An empty except reaches everyone.
func Fanout(members []Member, except domain.ConnID, frame core.Frame) core.PublishResult {
	var res core.PublishResult
	for _, m := range members {
		if m.ConnectionID == except {
			continue
		}
		if err := m.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, m.ConnectionID)
			continue
		}
		res.SendTo++
	}
	return res
}

// Relay forwards opaque payloads to the current members of a room.
type Relay struct {
	Registry *Registry
}

func NewRelay(r *Registry) *Relay { return &Relay{Registry: r} }

// SendExcept delivers to every member of room other than sender.
func (r *Relay) SendExcept(room domain.RoomID, sender domain.ConnID, frame core.Frame) core.PublishResult {
	return Fanout(r.Registry.Members(room), sender, frame)
}

// SendAll delivers to every member of room, the sender included.
func (r *Relay) SendAll(room domain.RoomID, frame core.Frame) core.PublishResult {
	return Fanout(r.Registry.Members(room), "", frame)
}
