package cli

import (
	"context"
	"errors"
	"io"

	"github.com/dkeye/consult/internal/adapters/rtc"
	"github.com/dkeye/consult/internal/chatcrypt"
	signalclient "github.com/dkeye/consult/internal/client/signal"
	"github.com/dkeye/consult/internal/client/session"
	"github.com/dkeye/consult/internal/client/upload"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newJoinCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join [room]",
		Short: "Join a room and stay until the call ends",
		Long: `Join a consultation room. Lines typed on stdin are sent as chat messages;
/mute, /video, /screen, /record, /file <path> and /end control the call.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("room", args[0])
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runJoin(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("room", "", "room id")
	f.String("name", "", "display name (defaults to the role)")
	f.String("role", "", "doctor or patient (default patient)")
	f.StringSlice("stun", nil, "STUN server URLs")
	f.String("secret", "", "shared chat secret; chat is sent in clear when empty")
	f.String("audio", "", "Ogg/Opus file used as microphone")
	f.String("video", "", "IVF/VP8 file used as camera")
	f.String("screen", "", "IVF/VP8 file used as screen capture")
	f.String("record-dir", "", "directory for recordings of remote tracks")
	bindFlags(v, f)
	return cmd
}

func runJoin(ctx context.Context, cfg *config.ClientConfig, in io.Reader, out io.Writer) error {
	role, err := domain.ParseRole(cfg.Role)
	if err != nil {
		return err
	}
	if cfg.Room == "" {
		return domain.ErrRoomIDEmpty
	}
	name := cfg.Name
	if name == "" {
		name = string(role)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sess *session.Session
	client := signalclient.New(cfg.Server, func(ev domain.ServerEvent) { sess.Deliver(ev) })

	deps := session.Deps{
		Transport: client,
		Devices:   rtc.FileDevices{AudioPath: cfg.Audio, VideoPath: cfg.Video, ScreenPath: cfg.Screen},
		Peers:     rtc.Factory{Config: rtc.DefaultWebRTCConfig(cfg.STUN...)},
		View:      NewLogView(out),
	}
	if cfg.Secret != "" {
		c, err := chatcrypt.New(cfg.Secret)
		if err != nil {
			return err
		}
		deps.Cipher = c
	}
	if base, err := HTTPBase(cfg.Server); err == nil {
		deps.Uploader = upload.New(base, name)
	} else {
		log.Warn().Err(err).Str("module", "cli").Msg("attachments disabled")
	}
	if cfg.RecordDir != "" {
		deps.Recorder = rtc.NewRecorder(cfg.RecordDir)
	}

	sess = session.New(session.Config{RoomID: domain.RoomID(cfg.Room), DisplayName: name, Role: role}, deps)

	transportErr := make(chan error, 1)
	go func() {
		err := client.Run(ctx)
		// the session cannot outlive its transport
		cancel()
		transportErr <- err
	}()
	go readCommands(in, sess)

	err = sess.Run(ctx)
	cancel()
	if terr := <-transportErr; terr != nil && !errors.Is(terr, context.Canceled) {
		return terr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
