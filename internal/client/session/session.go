// Package session runs one participant's side of a consultation: it turns
// signaling events into peer connections and keeps a projected roster.
//
// All state is owned by the goroutine running Run. Remote events, local
// commands and completions of asynchronous work (media capture, offer and
// answer creation, description assignment) are all funneled through one
// channel, so handlers never race with each other.
package session

import (
	"context"
	"errors"
	"io"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrMediaUnavailable = errors.New("local media unavailable")
	ErrNoLocalMedia     = errors.New("no local media stream")
	ErrNoRecorder       = errors.New("recording not available")
	ErrNoUploader       = errors.New("attachments not available")
)

type Transport interface {
	Send(domain.ClientMessage) error
	Close()
}

// View is whatever presents the call to the user.
type View interface {
	RosterChanged([]domain.Participant)
	ChatReceived(domain.ChatEnvelope)
	// RemoteMedia mirrors a peer's reported mic and camera state onto the
	// locally rendered tracks of that peer.
	RemoteMedia(peer domain.ConnID, audio, video bool)
	RemoteScreenShare(peer domain.ConnID, sharing bool)
	RemoteTrack(peer domain.ConnID, kind string)
	MediaError(error)
	CallEnded(remote bool)
}

type Cipher interface {
	Encrypt(string) (string, error)
	Decrypt(string) (string, error)
}

type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

type Config struct {
	RoomID      domain.RoomID
	DisplayName string
	Role        domain.Role
}

// Deps are the collaborators of a Session. Cipher, Uploader and Recorder are
// optional.
type Deps struct {
	Transport Transport
	Devices   core.MediaDevices
	Peers     core.MediaFactory
	View      View
	Cipher    Cipher
	Uploader  Uploader
	Recorder  core.Recorder
}

type Session struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	events chan func()
	done   chan struct{}
	ctx    context.Context

	// owned by the loop
	self         domain.ConnID
	formerSelves map[domain.ConnID]struct{}
	mediaSettled bool
	camera       core.LocalStream
	screen       core.LocalStream
	recording    bool
	peers        map[domain.ConnID]*peer
	roster       []domain.Participant
	ended        bool
}

func New(cfg Config, deps Deps) *Session {
	return &Session{
		cfg:  cfg,
		deps: deps,
		logger: log.With().Str("module", "client.session").
			Str("room", string(cfg.RoomID)).Str("role", string(cfg.Role)).Logger(),
		events: make(chan func(), 256),
		done:   make(chan struct{}),
		ctx:    context.Background(),
		peers:  make(map[domain.ConnID]*peer),

		formerSelves: make(map[domain.ConnID]struct{}),
	}
}

// Run owns the session until the call ends or ctx is canceled. Teardown
// happens on every exit path.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)

	s.acquireCamera()
	for {
		select {
		case fn := <-s.events:
			fn()
			if s.ended {
				return nil
			}
		case <-ctx.Done():
			s.teardown(false)
			return ctx.Err()
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// post hands fn to the loop. It reports false once the session is over.
func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Deliver feeds one server event into the session.
func (s *Session) Deliver(ev domain.ServerEvent) {
	s.post(func() { s.handleEvent(ev) })
}

func (s *Session) ToggleMute()        { s.post(s.toggleAudio) }
func (s *Session) ToggleVideo()       { s.post(s.toggleVideo) }
func (s *Session) ToggleScreenShare() { s.post(s.toggleScreenShare) }
func (s *Session) ToggleRecording()   { s.post(s.toggleRecording) }

func (s *Session) SendChat(text string) {
	s.post(func() { s.sendText(text) })
}

// SendFile uploads path and posts its URL as an image or file message.
func (s *Session) SendFile(path string) {
	s.post(func() { s.sendFile(path) })
}

// EndCall tells the rest of the room and tears down locally.
func (s *Session) EndCall() {
	s.post(func() {
		if s.ended {
			return
		}
		s.send(domain.ClientMessage{Type: domain.MsgEndCall, RoomID: s.cfg.RoomID})
		s.teardown(false)
	})
}

func (s *Session) send(msg domain.ClientMessage) {
	if err := s.deps.Transport.Send(msg); err != nil {
		s.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("send failed")
	}
}

func (s *Session) acquireCamera() {
	go func() {
		stream, err := s.deps.Devices.GetUserMedia(s.ctx)
		if !s.post(func() { s.onCamera(stream, err) }) && stream != nil {
			stream.Stop()
		}
	}()
}

func (s *Session) onCamera(stream core.LocalStream, err error) {
	s.mediaSettled = true
	if s.ended {
		if stream != nil {
			stream.Stop()
		}
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("local media acquisition failed")
		s.deps.View.MediaError(errors.Join(ErrMediaUnavailable, err))
	} else {
		s.camera = stream
		s.logger.Info().Bool("audio", stream.AudioEnabled()).Bool("video", stream.VideoEnabled()).Msg("local media ready")
	}
	s.join()
}

// join issues a Join once both the connection id and local media are settled.
func (s *Session) join() {
	if s.self == "" || !s.mediaSettled || s.ended {
		return
	}
	s.logger.Info().Str("sid", string(s.self)).Msg("joining room")
	s.send(domain.ClientMessage{
		Type:        domain.MsgJoin,
		RoomID:      s.cfg.RoomID,
		DisplayName: s.cfg.DisplayName,
		Role:        s.cfg.Role,
	})
}

// teardown runs at most once.
func (s *Session) teardown(remote bool) {
	if s.ended {
		return
	}
	s.ended = true
	s.logger.Info().Bool("remote", remote).Msg("tearing down")

	if s.recording && s.deps.Recorder != nil {
		if err := s.deps.Recorder.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("stop recorder")
		}
		s.recording = false
	}
	if s.screen != nil {
		s.screen.Stop()
		s.screen = nil
	}
	if s.camera != nil {
		s.camera.Stop()
		s.camera = nil
	}
	s.closePeers()
	s.send(domain.ClientMessage{Type: domain.MsgLeave, RoomID: s.cfg.RoomID})
	s.deps.Transport.Close()
	s.deps.View.CallEnded(remote)
}
