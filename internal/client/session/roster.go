package session

import (
	"github.com/dkeye/consult/internal/domain"
	"github.com/samber/lo"
)

// Roster returns a copy of the projected roster. Only call it from the loop.
func (s *Session) Roster() []domain.Participant {
	return append([]domain.Participant(nil), s.roster...)
}

// setRoster replaces the projection with a server snapshot. Flags of known
// participants survive, and the local participant is always present.
func (s *Session) setRoster(entries []domain.RosterEntry) {
	entries = lo.Reject(entries, func(e domain.RosterEntry, _ int) bool {
		_, former := s.formerSelves[e.ConnectionID]
		return former
	})
	known := lo.KeyBy(s.roster, func(p domain.Participant) domain.ConnID { return p.ConnectionID })
	next := lo.Map(entries, func(e domain.RosterEntry, _ int) domain.Participant {
		if prev, ok := known[e.ConnectionID]; ok {
			prev.RosterEntry = e
			return prev
		}
		if e.ConnectionID == s.self {
			me := s.selfParticipant()
			me.RosterEntry = e
			return me
		}
		return domain.NewParticipant(e)
	})
	if s.self != "" && !lo.ContainsBy(next, func(p domain.Participant) bool { return p.ConnectionID == s.self }) {
		if prev, ok := known[s.self]; ok {
			next = append(next, prev)
		} else {
			next = append(next, s.selfParticipant())
		}
	}
	s.roster = next
	s.deps.View.RosterChanged(s.Roster())
}

func (s *Session) addRosterEntry(e domain.RosterEntry) {
	if e.ConnectionID == "" {
		return
	}
	if _, former := s.formerSelves[e.ConnectionID]; former {
		return
	}
	if lo.ContainsBy(s.roster, func(p domain.Participant) bool { return p.ConnectionID == e.ConnectionID }) {
		return
	}
	s.roster = append(s.roster, domain.NewParticipant(e))
	s.deps.View.RosterChanged(s.Roster())
}

func (s *Session) updateParticipant(id domain.ConnID, fn func(*domain.Participant)) {
	_, i, ok := lo.FindIndexOf(s.roster, func(p domain.Participant) bool { return p.ConnectionID == id })
	if !ok {
		return
	}
	fn(&s.roster[i])
	s.deps.View.RosterChanged(s.Roster())
}

func (s *Session) selfParticipant() domain.Participant {
	p := domain.NewParticipant(domain.RosterEntry{
		ConnectionID: s.self,
		DisplayName:  s.cfg.DisplayName,
		Role:         s.cfg.Role,
	})
	p.IsMicOn = s.camera != nil && s.camera.AudioEnabled()
	p.IsVideoOn = s.camera != nil && s.camera.VideoEnabled()
	p.IsScreenSharing = s.screen != nil
	p.IsRecording = s.recording
	return p
}

// dropDepartedPeers closes connections to peers no longer in the room.
func (s *Session) dropDepartedPeers() {
	present := lo.SliceToMap(s.roster, func(p domain.Participant) (domain.ConnID, struct{}) {
		return p.ConnectionID, struct{}{}
	})
	for id, p := range s.peers {
		if _, ok := present[id]; !ok {
			s.logger.Info().Str("peer", string(id)).Msg("peer left, closing")
			s.closePeer(p)
		}
	}
}
