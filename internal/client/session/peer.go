package session

import (
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

type State int

const (
	StateIdle State = iota
	StateLocalMediaReady
	StateOfferSent
	StateOfferReceived
	StateDescriptionsExchanged
	StateConnected
	StateEnded
)

func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateLocalMediaReady:
		return "local-media-ready"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateDescriptionsExchanged:
		return "descriptions-exchanged"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// peer is the negotiation state for one remote connection.
type peer struct {
	id    domain.ConnID
	mc    core.MediaConnection
	state State

	// remoteSet flips once, when the first remote description is applied.
	remoteSet  bool
	candidates []webrtc.ICECandidateInit

	// busy is set while an offer/answer step is in flight; later steps wait
	// in backlog.
	busy    bool
	backlog []func()
	closed  bool
}

func (s *Session) peerFor(id domain.ConnID) *peer {
	if p, ok := s.peers[id]; ok {
		return p
	}
	mc, err := s.deps.Peers.NewMediaConnection(id)
	if err != nil {
		s.logger.Error().Err(err).Str("peer", string(id)).Msg("create peer connection")
		return nil
	}
	p := &peer{id: id, mc: mc, state: StateIdle}
	if s.camera != nil {
		p.state = StateLocalMediaReady
		if t := s.camera.AudioTrack(); t != nil {
			s.addTrack(p, t)
		}
	}
	if t := s.outboundVideo(); t != nil {
		s.addTrack(p, t)
		p.state = StateLocalMediaReady
	}

	mc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		s.post(func() {
			if p.closed {
				return
			}
			s.sendSignal(p.id, candidateSignal(c))
		})
	})
	mc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.post(func() { s.onPeerState(p, st) })
	})
	mc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if s.deps.Recorder != nil {
			s.deps.Recorder.Attach(track)
		}
		kind := track.Kind().String()
		s.post(func() {
			if !p.closed {
				s.deps.View.RemoteTrack(p.id, kind)
			}
		})
	})

	s.peers[id] = p
	s.logger.Info().Str("peer", string(id)).Str("state", p.state.String()).Msg("peer created")
	return p
}

func (s *Session) addTrack(p *peer, t webrtc.TrackLocal) {
	if err := p.mc.AddLocalTrack(t); err != nil {
		s.logger.Error().Err(err).Str("peer", string(p.id)).Msg("add local track")
	}
}

// outboundVideo is the screen while sharing, otherwise the camera.
func (s *Session) outboundVideo() webrtc.TrackLocal {
	if s.screen != nil {
		if t := s.screen.VideoTrack(); t != nil {
			return t
		}
	}
	if s.camera != nil {
		return s.camera.VideoTrack()
	}
	return nil
}

func (s *Session) onPeerState(p *peer, st webrtc.PeerConnectionState) {
	if p.closed {
		return
	}
	switch st {
	case webrtc.PeerConnectionStateConnected:
		p.state = StateConnected
	case webrtc.PeerConnectionStateFailed:
		s.logger.Warn().Str("peer", string(p.id)).Msg("peer connection failed")
	}
	s.logger.Debug().Str("peer", string(p.id)).Str("pc_state", st.String()).Str("state", p.state.String()).Msg("peer state")
}

func (s *Session) closePeer(p *peer) {
	if p.closed {
		return
	}
	p.closed = true
	p.state = StateEnded
	p.candidates = nil
	p.backlog = nil
	delete(s.peers, p.id)
	if err := p.mc.Close(); err != nil {
		s.logger.Warn().Err(err).Str("peer", string(p.id)).Msg("close peer")
	}
}

func (s *Session) closePeers() {
	for _, p := range s.peers {
		s.closePeer(p)
	}
}

// enqueue runs step now, or after the steps already in flight for p.
func (s *Session) enqueue(p *peer, step func()) {
	if p.busy {
		p.backlog = append(p.backlog, step)
		return
	}
	p.busy = true
	step()
}

func (s *Session) release(p *peer) {
	p.busy = false
	if p.closed || len(p.backlog) == 0 {
		return
	}
	next := p.backlog[0]
	p.backlog = p.backlog[1:]
	p.busy = true
	next()
}

func (s *Session) offer(p *peer) {
	s.enqueue(p, func() {
		mc := p.mc
		go func() {
			desc, err := mc.CreateOffer(s.ctx)
			s.post(func() {
				defer s.release(p)
				if p.closed {
					return
				}
				if err != nil {
					s.logger.Error().Err(err).Str("peer", string(p.id)).Msg("create offer")
					return
				}
				p.state = StateOfferSent
				s.sendSignal(p.id, domain.Offer{SDP: desc.SDP})
			})
		}()
	})
}

func (s *Session) acceptOffer(p *peer, sdp string) {
	s.enqueue(p, func() {
		mc := p.mc
		go func() {
			err := mc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
			s.post(func() {
				if p.closed {
					s.release(p)
					return
				}
				if err != nil {
					s.logger.Error().Err(err).Str("peer", string(p.id)).Msg("set remote offer")
					s.release(p)
					return
				}
				p.state = StateOfferReceived
				s.remoteDescriptionSet(p)
				s.answer(p)
			})
		}()
	})
}

// answer continues an accepted offer; p stays busy until it completes.
func (s *Session) answer(p *peer) {
	mc := p.mc
	go func() {
		desc, err := mc.CreateAnswer(s.ctx)
		s.post(func() {
			defer s.release(p)
			if p.closed {
				return
			}
			if err != nil {
				s.logger.Error().Err(err).Str("peer", string(p.id)).Msg("create answer")
				return
			}
			p.state = StateDescriptionsExchanged
			s.sendSignal(p.id, domain.Answer{SDP: desc.SDP})
		})
	}()
}

func (s *Session) acceptAnswer(p *peer, sdp string) {
	s.enqueue(p, func() {
		if p.state != StateOfferSent {
			s.logger.Warn().Str("peer", string(p.id)).Str("state", p.state.String()).Msg("unexpected answer dropped")
			s.release(p)
			return
		}
		mc := p.mc
		go func() {
			err := mc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
			s.post(func() {
				defer s.release(p)
				if p.closed {
					return
				}
				if err != nil {
					s.logger.Error().Err(err).Str("peer", string(p.id)).Msg("set remote answer")
					return
				}
				p.state = StateDescriptionsExchanged
				s.remoteDescriptionSet(p)
			})
		}()
	})
}

// remoteDescriptionSet flushes queued candidates in arrival order.
func (s *Session) remoteDescriptionSet(p *peer) {
	first := !p.remoteSet
	p.remoteSet = true
	if !first {
		return
	}
	queued := p.candidates
	p.candidates = nil
	for _, c := range queued {
		s.applyCandidate(p, c)
	}
	if len(queued) > 0 {
		s.logger.Debug().Str("peer", string(p.id)).Int("count", len(queued)).Msg("flushed queued candidates")
	}
}

func (s *Session) addCandidate(p *peer, c webrtc.ICECandidateInit) {
	if !p.remoteSet {
		p.candidates = append(p.candidates, c)
		return
	}
	s.applyCandidate(p, c)
}

func (s *Session) applyCandidate(p *peer, c webrtc.ICECandidateInit) {
	if err := p.mc.AddICECandidate(c); err != nil {
		s.logger.Warn().Err(err).Str("peer", string(p.id)).Msg("add ice candidate")
	}
}

func candidateSignal(c webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex}
}

func candidateInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex}
}
