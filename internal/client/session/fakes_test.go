package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []domain.ClientMessage
	closed bool
}

func (t *fakeTransport) Send(m domain.ClientMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("closed")
	}
	t.sent = append(t.sent, m)
	return nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTransport) messages(kind domain.MessageType) []domain.ClientMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.ClientMessage
	for _, m := range t.sent {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func (t *fakeTransport) types() []domain.MessageType {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.MessageType, len(t.sent))
	for i, m := range t.sent {
		out[i] = m.Type
	}
	return out
}

type remoteMedia struct {
	peer         domain.ConnID
	audio, video bool
}

type fakeView struct {
	mu          sync.Mutex
	roster      []domain.Participant
	chats       []domain.ChatEnvelope
	media       []remoteMedia
	sharing     map[domain.ConnID]bool
	errs        []error
	ended       int
	endedRemote bool
}

func (v *fakeView) RosterChanged(r []domain.Participant) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.roster = r
}

func (v *fakeView) ChatReceived(m domain.ChatEnvelope) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chats = append(v.chats, m)
}

func (v *fakeView) RemoteMedia(peer domain.ConnID, audio, video bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.media = append(v.media, remoteMedia{peer, audio, video})
}

func (v *fakeView) RemoteScreenShare(peer domain.ConnID, sharing bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sharing == nil {
		v.sharing = map[domain.ConnID]bool{}
	}
	v.sharing[peer] = sharing
}

func (v *fakeView) RemoteTrack(domain.ConnID, string) {}

func (v *fakeView) MediaError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, err)
}

func (v *fakeView) CallEnded(remote bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ended++
	v.endedRemote = remote
}

type fakeMC struct {
	id         domain.ConnID
	remoteGate chan struct{}

	mu       sync.Mutex
	ops      []string
	added    []webrtc.TrackLocal
	replaced []webrtc.TrackLocal
	closed   bool
	onICE    func(webrtc.ICECandidateInit)
}

func (m *fakeMC) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func (m *fakeMC) log() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *fakeMC) AddLocalTrack(t webrtc.TrackLocal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, t)
	return nil
}

func (m *fakeMC) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	m.record("create-offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-for-" + string(m.id)}, nil
}

func (m *fakeMC) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	m.record("create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + string(m.id)}, nil
}

func (m *fakeMC) SetRemoteDescription(d webrtc.SessionDescription) error {
	m.record("set-remote:" + d.Type.String())
	if m.remoteGate != nil {
		<-m.remoteGate
	}
	if strings.HasPrefix(d.SDP, "bad") {
		return errors.New("malformed sdp")
	}
	return nil
}

func (m *fakeMC) AddICECandidate(c webrtc.ICECandidateInit) error {
	m.record("candidate:" + c.Candidate)
	return nil
}

func (m *fakeMC) ReplaceVideoTrack(t webrtc.TrackLocal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = append(m.replaced, t)
	return nil
}

func (m *fakeMC) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onICE = fn
}

func (m *fakeMC) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (m *fakeMC) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (m *fakeMC) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMC) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	conns map[domain.ConnID][]*fakeMC
	gates map[domain.ConnID]chan struct{}
}

func (f *fakeFactory) NewMediaConnection(peer domain.ConnID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conns == nil {
		f.conns = map[domain.ConnID][]*fakeMC{}
	}
	m := &fakeMC{id: peer, remoteGate: f.gates[peer]}
	f.conns[peer] = append(f.conns[peer], m)
	return m, nil
}

func (f *fakeFactory) latest(peer domain.ConnID) *fakeMC {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.conns[peer]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

func (f *fakeFactory) count(peer domain.ConnID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[peer])
}

type fakeStream struct {
	audio, video webrtc.TrackLocal

	mu      sync.Mutex
	audioOn bool
	videoOn bool
	stopped bool
	ended   chan struct{}
	once    sync.Once
}

func newFakeStream(id string, withAudio bool) *fakeStream {
	s := &fakeStream{audioOn: withAudio, videoOn: true, ended: make(chan struct{})}
	if withAudio {
		s.audio = mustTrack(webrtc.MimeTypeOpus, "audio", id)
	}
	s.video = mustTrack(webrtc.MimeTypeVP8, "video", id)
	return s
}

func mustTrack(mime, kind, stream string) webrtc.TrackLocal {
	t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, kind, stream)
	if err != nil {
		panic(fmt.Sprintf("track: %v", err))
	}
	return t
}

func (s *fakeStream) AudioTrack() webrtc.TrackLocal { return s.audio }
func (s *fakeStream) VideoTrack() webrtc.TrackLocal { return s.video }

func (s *fakeStream) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio != nil && s.audioOn
}

func (s *fakeStream) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOn
}

func (s *fakeStream) SetAudioEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioOn = v
}

func (s *fakeStream) SetVideoEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoOn = v
}

func (s *fakeStream) Ended() <-chan struct{} { return s.ended }

func (s *fakeStream) end() { s.once.Do(func() { close(s.ended) }) }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.end()
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevices struct {
	camera    *fakeStream
	cameraErr error
	screen    *fakeStream
}

func (d *fakeDevices) GetUserMedia(context.Context) (core.LocalStream, error) {
	if d.cameraErr != nil {
		return nil, d.cameraErr
	}
	return d.camera, nil
}

func (d *fakeDevices) GetDisplayMedia(context.Context) (core.LocalStream, error) {
	if d.screen == nil {
		return nil, errors.New("denied")
	}
	return d.screen, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	active  bool
	started int
}

func (r *fakeRecorder) Attach(*webrtc.TrackRemote) {}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.started++
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	return nil
}

func (r *fakeRecorder) isActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// prefixCipher marks content instead of encrypting it.
type prefixCipher struct{}

func (prefixCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (prefixCipher) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}
