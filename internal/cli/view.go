package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/consult/internal/domain"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var senderStyle = color.New(color.FgCyan, color.OpBold)

// LogView renders the call as log lines. Chat and the roster table go to out.
type LogView struct {
	logger zerolog.Logger

	mu  sync.Mutex
	out io.Writer
}

func NewLogView(out io.Writer) *LogView {
	return &LogView{logger: log.With().Str("module", "cli.view").Logger(), out: out}
}

func (v *LogView) RosterChanged(roster []domain.Participant) {
	names := lo.Map(roster, func(p domain.Participant, _ int) string {
		return fmt.Sprintf("%s(%s)", p.DisplayName, p.Role)
	})
	v.logger.Info().Int("count", len(roster)).Strs("participants", names).Msg("roster")

	v.mu.Lock()
	defer v.mu.Unlock()
	table := tablewriter.NewWriter(v.out)
	table.SetHeader([]string{"Name", "Role", "Mic", "Camera", "Screen", "Recording"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	for _, p := range roster {
		table.Append([]string{
			p.DisplayName,
			string(p.Role),
			onOff(p.IsMicOn),
			onOff(p.IsVideoOn),
			onOff(p.IsScreenSharing),
			onOff(p.IsRecording),
		})
	}
	table.Render()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (v *LogView) ChatReceived(m domain.ChatEnvelope) {
	v.mu.Lock()
	defer v.mu.Unlock()
	sender := senderStyle.Render("[" + m.Sender + "]")
	switch m.Type {
	case domain.ChatImage, domain.ChatFile:
		fmt.Fprintf(v.out, "%s %s: %s\n", sender, m.Type, m.Content)
	default:
		fmt.Fprintf(v.out, "%s %s\n", sender, m.Content)
	}
}

func (v *LogView) RemoteMedia(peer domain.ConnID, audio, video bool) {
	v.logger.Info().Str("peer", string(peer)).Bool("audio", audio).Bool("video", video).Msg("remote media")
}

func (v *LogView) RemoteScreenShare(peer domain.ConnID, sharing bool) {
	v.logger.Info().Str("peer", string(peer)).Bool("sharing", sharing).Msg("remote screen share")
}

func (v *LogView) RemoteTrack(peer domain.ConnID, kind string) {
	v.logger.Info().Str("peer", string(peer)).Str("kind", kind).Msg("remote track")
}

func (v *LogView) MediaError(err error) {
	v.logger.Warn().Err(err).Msg("media")
}

func (v *LogView) CallEnded(remote bool) {
	v.logger.Info().Bool("remote", remote).Msg("call ended")
}
