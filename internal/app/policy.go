package app

import "github.com/dkeye/consult/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room domain.RoomID, member domain.ConnID) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(domain.RoomID, domain.ConnID) BackpressureAction {
	return p.Action
}

// PolicyByName maps a config value to a policy; unknown names drop frames.
func PolicyByName(name string) Policy {
	if name == "kick" {
		return SimplePolicy{Action: KickMember}
	}
	return SimplePolicy{Action: DropFrame}
}
