package session

import (
	"encoding/json"

	"github.com/dkeye/consult/internal/domain"
)

func (s *Session) handleEvent(ev domain.ServerEvent) {
	if s.ended {
		return
	}
	switch ev.Type {
	case domain.EvtConnected:
		s.onConnected(ev.ConnectionID)
	case domain.EvtExistingUsers:
		s.setRoster(ev.Users)
		if s.cfg.Role.Initiator() {
			for _, u := range ev.Users {
				s.offerTo(u.ConnectionID)
			}
		}
	case domain.EvtUserJoined:
		s.addRosterEntry(domain.RosterEntry{ConnectionID: ev.ConnectionID, DisplayName: ev.DisplayName})
		if s.cfg.Role.Initiator() {
			s.offerTo(ev.ConnectionID)
		}
	case domain.EvtParticipantsUpdated:
		s.setRoster(ev.Users)
		s.dropDepartedPeers()
	case domain.EvtReceiveSignal:
		s.handleSignal(ev.SenderID, ev.Signal)
	case domain.EvtReceiveChat:
		s.handleChat(ev.Message)
	case domain.EvtCallEnded:
		s.teardown(true)
	case domain.EvtError:
		s.logger.Warn().Str("error", ev.Error).Msg("server error")
	case domain.EvtPong:
	default:
		s.logger.Warn().Str("type", string(ev.Type)).Msg("unknown server event")
	}
}

// onConnected handles both the first connection and every reconnect. The
// server already treated the old connection as gone, so a new id means
// starting over with a full Join.
func (s *Session) onConnected(id domain.ConnID) {
	if id == "" {
		return
	}
	if s.self != "" && s.self != id {
		s.logger.Info().Str("old", string(s.self)).Str("sid", string(id)).Msg("reconnected, rejoining")
		s.formerSelves[s.self] = struct{}{}
		s.closePeers()
		s.roster = nil
		s.deps.View.RosterChanged(s.Roster())
	}
	s.self = id
	s.join()
}

// isSelf covers ids this client held before a reconnect. The server keeps a
// half-open connection listed until its pong deadline passes.
func (s *Session) isSelf(id domain.ConnID) bool {
	if id == s.self {
		return true
	}
	_, ok := s.formerSelves[id]
	return ok
}

func (s *Session) offerTo(id domain.ConnID) {
	if id == "" || s.isSelf(id) {
		return
	}
	p := s.peerFor(id)
	if p == nil {
		return
	}
	s.offer(p)
}

func (s *Session) handleSignal(sender domain.ConnID, raw json.RawMessage) {
	if sender == "" || s.isSelf(sender) {
		return
	}
	env, err := domain.DecodeSignal(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("peer", string(sender)).Msg("signal dropped")
		return
	}
	if env.TargetID != "" && env.TargetID != s.self {
		return
	}

	switch sig := env.Signal.(type) {
	case domain.Offer:
		if p := s.peerFor(sender); p != nil {
			s.acceptOffer(p, sig.SDP)
		}
	case domain.Answer:
		p, ok := s.peers[sender]
		if !ok {
			s.logger.Warn().Str("peer", string(sender)).Msg("answer for unknown peer dropped")
			return
		}
		s.acceptAnswer(p, sig.SDP)
	case domain.Candidate:
		if p := s.peerFor(sender); p != nil {
			s.addCandidate(p, candidateInit(sig))
		}
	case domain.MediaToggle:
		s.updateParticipant(sender, func(p *domain.Participant) {
			p.IsMicOn, p.IsVideoOn = sig.AudioEnabled, sig.VideoEnabled
		})
		s.deps.View.RemoteMedia(sender, sig.AudioEnabled, sig.VideoEnabled)
	case domain.ScreenShareToggle:
		s.updateParticipant(sender, func(p *domain.Participant) { p.IsScreenSharing = sig.IsScreenSharing })
		s.deps.View.RemoteScreenShare(sender, sig.IsScreenSharing)
	case domain.RecordToggle:
		s.updateParticipant(sender, func(p *domain.Participant) { p.IsRecording = sig.IsRecording })
	}
}

// sendSignal wraps sig in a signal message. An empty target addresses the
// whole room.
func (s *Session) sendSignal(target domain.ConnID, sig domain.Signal) {
	raw, err := json.Marshal(domain.SignalEnvelope{TargetID: target, Signal: sig})
	if err != nil {
		s.logger.Error().Err(err).Msg("encode signal")
		return
	}
	s.send(domain.ClientMessage{
		Type:     domain.MsgSignal,
		RoomID:   s.cfg.RoomID,
		SenderID: s.self,
		Signal:   raw,
	})
}

func (s *Session) handleChat(msg *domain.ChatEnvelope) {
	if msg == nil {
		return
	}
	out := *msg
	if s.deps.Cipher != nil {
		plain, err := s.deps.Cipher.Decrypt(msg.Content)
		if err != nil {
			s.logger.Warn().Err(err).Str("sender", msg.Sender).Msg("chat message not decrypted")
			return
		}
		out.Content = plain
	}
	s.deps.View.ChatReceived(out)
}
