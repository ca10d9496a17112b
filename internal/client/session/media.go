package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkeye/consult/internal/client/upload"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

func (s *Session) toggleAudio() {
	if s.ended {
		return
	}
	if s.camera == nil || s.camera.AudioTrack() == nil {
		s.deps.View.MediaError(ErrNoLocalMedia)
		return
	}
	s.camera.SetAudioEnabled(!s.camera.AudioEnabled())
	s.announceMedia()
}

func (s *Session) toggleVideo() {
	if s.ended {
		return
	}
	if s.camera == nil || s.camera.VideoTrack() == nil {
		s.deps.View.MediaError(ErrNoLocalMedia)
		return
	}
	s.camera.SetVideoEnabled(!s.camera.VideoEnabled())
	s.announceMedia()
}

func (s *Session) announceMedia() {
	audio, video := s.camera.AudioEnabled(), s.camera.VideoEnabled()
	s.updateParticipant(s.self, func(p *domain.Participant) { p.IsMicOn, p.IsVideoOn = audio, video })
	s.sendSignal("", domain.MediaToggle{AudioEnabled: audio, VideoEnabled: video})
}

func (s *Session) toggleScreenShare() {
	if s.ended {
		return
	}
	if s.screen != nil {
		s.stopScreenShare()
		return
	}
	go func() {
		stream, err := s.deps.Devices.GetDisplayMedia(s.ctx)
		if !s.post(func() { s.onScreen(stream, err) }) && stream != nil {
			stream.Stop()
		}
	}()
}

func (s *Session) onScreen(stream core.LocalStream, err error) {
	if err != nil {
		s.logger.Warn().Err(err).Msg("screen capture failed")
		s.deps.View.MediaError(err)
		return
	}
	if s.ended || s.screen != nil {
		stream.Stop()
		return
	}
	s.screen = stream
	s.replaceVideo()
	s.updateParticipant(s.self, func(p *domain.Participant) { p.IsScreenSharing = true })
	s.sendSignal("", domain.ScreenShareToggle{IsScreenSharing: true})
	s.logger.Info().Msg("screen share started")

	go func() {
		select {
		case <-stream.Ended():
			s.post(func() {
				if s.screen == stream {
					s.logger.Info().Msg("screen capture ended by source")
					s.stopScreenShare()
				}
			})
		case <-s.done:
		}
	}()
}

// stopScreenShare puts the camera back in the same sender slot.
func (s *Session) stopScreenShare() {
	stream := s.screen
	s.screen = nil
	s.replaceVideo()
	stream.Stop()
	s.updateParticipant(s.self, func(p *domain.Participant) { p.IsScreenSharing = false })
	s.sendSignal("", domain.ScreenShareToggle{IsScreenSharing: false})
	s.logger.Info().Msg("screen share stopped")
}

// replaceVideo points every peer's video sender at the current outbound video.
func (s *Session) replaceVideo() {
	for _, p := range s.peers {
		if err := p.mc.ReplaceVideoTrack(s.outboundVideo()); err != nil {
			s.logger.Warn().Err(err).Str("peer", string(p.id)).Msg("replace video track")
		}
	}
}

func (s *Session) toggleRecording() {
	if s.ended {
		return
	}
	if s.deps.Recorder == nil {
		s.deps.View.MediaError(ErrNoRecorder)
		return
	}
	if s.recording {
		if err := s.deps.Recorder.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("stop recording")
		}
		s.recording = false
	} else {
		if err := s.deps.Recorder.Start(); err != nil {
			s.deps.View.MediaError(err)
			return
		}
		s.recording = true
	}
	rec := s.recording
	s.updateParticipant(s.self, func(p *domain.Participant) { p.IsRecording = rec })
	s.sendSignal("", domain.RecordToggle{IsRecording: rec})
}

func (s *Session) sendText(text string) {
	text = strings.TrimSpace(text)
	if text == "" || s.ended {
		return
	}
	s.sendChat(domain.ChatText, text)
}

// sendChat encrypts content and relays it. The message shows up locally only
// when the relay echoes it back.
func (s *Session) sendChat(kind domain.ChatType, content string) {
	if s.deps.Cipher != nil {
		sealed, err := s.deps.Cipher.Encrypt(content)
		if err != nil {
			s.logger.Error().Err(err).Msg("encrypt chat")
			return
		}
		content = sealed
	}
	s.send(domain.ClientMessage{
		Type:     domain.MsgChat,
		RoomID:   s.cfg.RoomID,
		Sender:   string(s.cfg.Role),
		ChatType: kind,
		Content:  content,
	})
}

func (s *Session) sendFile(path string) {
	if s.ended {
		return
	}
	if s.deps.Uploader == nil {
		s.deps.View.MediaError(ErrNoUploader)
		return
	}
	ctx := s.ctx
	go func() {
		url, kind, err := s.upload(ctx, path)
		s.post(func() {
			if err != nil {
				s.logger.Warn().Err(err).Str("file", path).Msg("attachment upload failed")
				s.deps.View.MediaError(err)
				return
			}
			if s.ended {
				return
			}
			s.sendChat(kind, url)
		})
	}()
}

func (s *Session) upload(ctx context.Context, path string) (string, domain.ChatType, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	url, err := s.deps.Uploader.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return "", "", err
	}
	return url, upload.ChatTypeOf(mt), nil
}
