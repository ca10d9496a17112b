package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

var ErrNoDevice = errors.New("no media source configured")

const oggPageDuration = 20 * time.Millisecond

// FileDevices stands in for capture hardware: camera video and microphone
// audio are looped from IVF (VP8) and Ogg (Opus) files, and the screen is an
// IVF file that ends the share when it runs out.
type FileDevices struct {
	AudioPath  string
	VideoPath  string
	ScreenPath string
}

func (d FileDevices) GetUserMedia(ctx context.Context) (core.LocalStream, error) {
	if d.AudioPath == "" && d.VideoPath == "" {
		return nil, ErrNoDevice
	}
	for _, p := range []string{d.AudioPath, d.VideoPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("media source: %w", err)
		}
	}
	s, err := newFileStream(ctx, "camera-"+uuid.NewString(), d.AudioPath, d.VideoPath, true)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d FileDevices) GetDisplayMedia(ctx context.Context) (core.LocalStream, error) {
	if d.ScreenPath == "" {
		return nil, ErrNoDevice
	}
	if _, err := os.Stat(d.ScreenPath); err != nil {
		return nil, fmt.Errorf("screen source: %w", err)
	}
	s, err := newFileStream(ctx, "screen-"+uuid.NewString(), "", d.ScreenPath, false)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FileStream implements core.LocalStream. Disabled tracks stay negotiated
// but write no samples.
type FileStream struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool

	cancel  context.CancelFunc
	ended   chan struct{}
	endOnce sync.Once
	wg      sync.WaitGroup
}

func newFileStream(ctx context.Context, streamID, audioPath, videoPath string, loop bool) (*FileStream, error) {
	// The stream outlives the acquisition call, only Stop ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &FileStream{cancel: cancel, ended: make(chan struct{})}
	s.audioOn.Store(true)
	s.videoOn.Store(true)

	if audioPath != "" {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			cancel()
			return nil, err
		}
		s.audio = t
		s.wg.Add(1)
		go s.pumpOgg(runCtx, audioPath, loop)
	}
	if videoPath != "" {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			cancel()
			return nil, err
		}
		s.video = t
		s.wg.Add(1)
		go s.pumpIVF(runCtx, videoPath, loop)
	}
	return s, nil
}

func (s *FileStream) AudioTrack() webrtc.TrackLocal {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

func (s *FileStream) VideoTrack() webrtc.TrackLocal {
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *FileStream) AudioEnabled() bool     { return s.audio != nil && s.audioOn.Load() }
func (s *FileStream) VideoEnabled() bool     { return s.video != nil && s.videoOn.Load() }
func (s *FileStream) SetAudioEnabled(v bool) { s.audioOn.Store(v) }
func (s *FileStream) SetVideoEnabled(v bool) { s.videoOn.Store(v) }
func (s *FileStream) Ended() <-chan struct{} { return s.ended }

func (s *FileStream) Stop() {
	s.cancel()
	s.wg.Wait()
	s.markEnded()
}

func (s *FileStream) markEnded() {
	s.endOnce.Do(func() { close(s.ended) })
}

func (s *FileStream) pumpIVF(ctx context.Context, path string, loop bool) {
	defer s.wg.Done()
	for {
		err := s.playIVF(ctx, path)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			log.Error().Err(err).Str("module", "rtc.media").Str("file", path).Msg("video source failed")
			s.markEnded()
			return
		}
		if !loop {
			log.Info().Str("module", "rtc.media").Str("file", path).Msg("video source ended")
			s.markEnded()
			return
		}
	}
}

func (s *FileStream) playIVF(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}
	frameDur := time.Second * time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator)
	if frameDur <= 0 {
		frameDur = time.Second / 30
	}
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame, _, err := r.ParseNextFrame()
		if err != nil {
			return err
		}
		if !s.videoOn.Load() {
			continue
		}
		if err := s.video.WriteSample(media.Sample{Data: frame, Duration: frameDur}); err != nil {
			return err
		}
	}
}

func (s *FileStream) pumpOgg(ctx context.Context, path string, loop bool) {
	defer s.wg.Done()
	for {
		err := s.playOgg(ctx, path)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			log.Error().Err(err).Str("module", "rtc.media").Str("file", path).Msg("audio source failed")
			return
		}
		if !loop {
			return
		}
	}
}

func (s *FileStream) playOgg(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}
	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		page, header, err := r.ParseNextPage()
		if err != nil {
			return err
		}
		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		if !s.audioOn.Load() {
			continue
		}
		dur := time.Duration(float64(samples)/48000*1000) * time.Millisecond
		if err := s.audio.WriteSample(media.Sample{Data: page, Duration: dur}); err != nil {
			return err
		}
	}
}
