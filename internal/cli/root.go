// Package cli is the command tree of the headless consultation client.
package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dkeye/consult/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewRootCommand builds the client command tree. Flags, CONSULT_* variables
// and .env all land in one viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:   "consult",
		Short: "Headless participant for peer-to-peer consultations",
		Long: `consult joins a consultation room over the signaling server and exchanges
audio and video directly with the other participants.

Examples:
  consult room create
  consult join 2f9c... --role doctor --name "Dr. House" --video camera.ivf --audio mic.ogg
  consult join 2f9c... --secret s3cret --record-dir ./recordings`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.String("server", "", "signaling websocket URL (default ws://localhost:8080/ws/signal)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	bindFlags(v, pf)

	root.AddCommand(newRoomCommand(v), newJoinCommand(v))
	return root
}

// bindFlags exposes every flag in fs under its snake_case viper key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func loadConfig(v *viper.Viper) (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(v)
	if err != nil {
		return nil, err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	log.Debug().Str("module", "cli").Str("server", cfg.Server).Str("room", cfg.Room).Msg("client config ready")
	return cfg, nil
}

// HTTPBase maps the signaling URL to the server's HTTP origin.
func HTTPBase(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url: missing host")
	}
	return u.Scheme + "://" + u.Host, nil
}
