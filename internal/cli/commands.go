package cli

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingPath    = errors.New("/file needs a path")
)

// Controls is what stdin lines can drive.
type Controls interface {
	ToggleMute()
	ToggleVideo()
	ToggleScreenShare()
	ToggleRecording()
	SendChat(string)
	SendFile(string)
	EndCall()
}

// Dispatch runs one input line. Anything not starting with a slash is chat.
func Dispatch(c Controls, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		c.SendChat(line)
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/mute":
		c.ToggleMute()
	case "/video":
		c.ToggleVideo()
	case "/screen":
		c.ToggleScreenShare()
	case "/record":
		c.ToggleRecording()
	case "/file":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return ErrMissingPath
		}
		c.SendFile(arg)
	case "/end", "/quit":
		c.EndCall()
	default:
		return ErrUnknownCommand
	}
	return nil
}

func readCommands(in io.Reader, c Controls) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := Dispatch(c, sc.Text()); err != nil {
			log.Warn().Err(err).Str("module", "cli").Str("input", sc.Text()).Msg("ignored")
		}
	}
}
