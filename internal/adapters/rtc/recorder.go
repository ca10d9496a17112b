package rtc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// rtpWriter is what ivfwriter and oggwriter have in common.
type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// Recorder drains every attached remote track and, while active, writes
// video to IVF and audio to Ogg in Dir.
type Recorder struct {
	Dir string

	mu     sync.Mutex
	active bool
	video  rtpWriter
	audio  rtpWriter
	now    func() time.Time
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{Dir: dir, now: time.Now}
}

func (r *Recorder) Attach(track *webrtc.TrackRemote) {
	kind := track.Kind()
	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				return
			}
			r.write(kind, pkt)
		}
	}()
}

func (r *Recorder) write(kind webrtc.RTPCodecType, pkt *rtp.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	var w rtpWriter
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		w = r.video
	case webrtc.RTPCodecTypeAudio:
		w = r.audio
	}
	if w == nil {
		return
	}
	if err := w.WriteRTP(pkt); err != nil {
		log.Warn().Err(err).Str("module", "rtc.recorder").Str("kind", kind.String()).Msg("write rtp")
	}
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ErrAlreadyRecording
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("recording dir: %w", err)
	}
	base := filepath.Join(r.Dir, "consult-"+r.now().UTC().Format("20060102-150405"))

	video, err := ivfwriter.New(base + ".ivf")
	if err != nil {
		return fmt.Errorf("open video file: %w", err)
	}
	audio, err := oggwriter.New(base+".ogg", 48000, 2)
	if err != nil {
		_ = video.Close()
		return fmt.Errorf("open audio file: %w", err)
	}
	r.video, r.audio, r.active = video, audio, true
	log.Info().Str("module", "rtc.recorder").Str("file", base).Msg("recording started")
	return nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ErrNotRecording
	}
	r.active = false
	err := errors.Join(r.video.Close(), r.audio.Close())
	r.video, r.audio = nil, nil
	log.Info().Str("module", "rtc.recorder").Msg("recording stopped")
	return err
}
