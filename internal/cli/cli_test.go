package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode"

	"github.com/dkeye/consult/internal/domain"
	"github.com/gookit/color"
	"github.com/stretchr/testify/require"
)

type recordedControls struct {
	calls []string
}

func (r *recordedControls) ToggleMute()          { r.calls = append(r.calls, "mute") }
func (r *recordedControls) ToggleVideo()         { r.calls = append(r.calls, "video") }
func (r *recordedControls) ToggleScreenShare()   { r.calls = append(r.calls, "screen") }
func (r *recordedControls) ToggleRecording()     { r.calls = append(r.calls, "record") }
func (r *recordedControls) SendChat(text string) { r.calls = append(r.calls, "chat:"+text) }
func (r *recordedControls) SendFile(path string) { r.calls = append(r.calls, "file:"+path) }
func (r *recordedControls) EndCall()             { r.calls = append(r.calls, "end") }

func TestDispatch(t *testing.T) {
	req := require.New(t)
	c := &recordedControls{}

	for _, line := range []string{"hello there", "  ", "/mute", "/video", "/screen", "/record", "/file  ./scan.png ", "/end"} {
		req.NoError(Dispatch(c, line))
	}

	req.Equal([]string{"chat:hello there", "mute", "video", "screen", "record", "file:./scan.png", "end"}, c.calls)
	req.ErrorIs(Dispatch(c, "/file"), ErrMissingPath)
	req.ErrorIs(Dispatch(c, "/dance"), ErrUnknownCommand)
}

func TestReadCommandsStopsAtEOF(t *testing.T) {
	req := require.New(t)
	c := &recordedControls{}

	readCommands(strings.NewReader("hi\n/bogus\n/mute\n"), c)

	req.Equal([]string{"chat:hi", "mute"}, c.calls)
}

func TestHTTPBase(t *testing.T) {
	req := require.New(t)

	for in, want := range map[string]string{
		"ws://localhost:8080/ws/signal":    "http://localhost:8080",
		"wss://consult.example.com/api/ws": "https://consult.example.com",
		"http://10.0.0.1:9000":             "http://10.0.0.1:9000",
	} {
		got, err := HTTPBase(in)
		req.NoError(err, in)
		req.Equal(want, got, in)
	}

	_, err := HTTPBase("ftp://host/x")
	req.Error(err)
	_, err = HTTPBase("ws:///nohost")
	req.Error(err)
}

func roomServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/virtual-consultation/generate-room" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateRoom(t *testing.T) {
	req := require.New(t)
	srv := roomServer(t, http.StatusOK, `{"roomId":"abc","roomUrl":"http://web/room/abc?role=patient"}`)

	r, err := CreateRoom(context.Background(), srv.Client(), srv.URL)

	req.NoError(err)
	req.Equal(Room{RoomID: "abc", RoomURL: "http://web/room/abc?role=patient"}, r)
}

func TestCreateRoomErrors(t *testing.T) {
	req := require.New(t)

	_, err := CreateRoom(context.Background(), http.DefaultClient, roomServer(t, http.StatusInternalServerError, `{"error":"x"}`).URL)
	req.ErrorContains(err, "500")

	_, err = CreateRoom(context.Background(), http.DefaultClient, roomServer(t, http.StatusOK, `{}`).URL)
	req.ErrorIs(err, ErrNoRoom)
}

func TestRoomCreateCommand(t *testing.T) {
	req := require.New(t)
	srv := roomServer(t, http.StatusOK, `{"roomId":"r-1","roomUrl":"http://web/room/r-1?role=patient"}`)

	// Given the root command pointed at the server through a flag
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"room", "create", "--server", "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signal"})

	// When it runs
	err := root.ExecuteContext(context.Background())

	// Then the room and its link are printed
	req.NoError(err)
	req.Equal("room: r-1\nlink: http://web/room/r-1?role=patient\n", out.String())
}

func TestJoinRejectsBadRole(t *testing.T) {
	req := require.New(t)
	root := NewRootCommand()
	root.SetArgs([]string{"join", "room-1", "--role", "nurse"})

	req.ErrorIs(root.ExecuteContext(context.Background()), domain.ErrInvalidRole)
}

func TestJoinNeedsRoom(t *testing.T) {
	req := require.New(t)
	root := NewRootCommand()
	root.SetArgs([]string{"join"})

	req.ErrorIs(root.ExecuteContext(context.Background()), domain.ErrRoomIDEmpty)
}

func plainColors(t *testing.T) {
	t.Helper()
	prev := color.Enable
	color.Enable = false
	t.Cleanup(func() { color.Enable = prev })
}

func TestLogViewWritesChat(t *testing.T) {
	req := require.New(t)
	plainColors(t)
	var out bytes.Buffer
	v := NewLogView(&out)

	v.ChatReceived(domain.ChatEnvelope{Sender: "doctor", Type: domain.ChatText, Content: "hello"})
	v.ChatReceived(domain.ChatEnvelope{Sender: "patient", Type: domain.ChatImage, Content: "http://x/files/a.png"})

	req.Equal("[doctor] hello\n[patient] image: http://x/files/a.png\n", out.String())
}

func TestLogViewRendersRosterTable(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	v := NewLogView(&out)

	doc := domain.NewParticipant(domain.RosterEntry{ConnectionID: "a", DisplayName: "Dr. House", Role: domain.RoleDoctor})
	pat := domain.NewParticipant(domain.RosterEntry{ConnectionID: "b", DisplayName: "Pat", Role: domain.RolePatient})
	pat.IsMicOn = false
	pat.IsScreenSharing = true
	v.RosterChanged([]domain.Participant{doc, pat})

	var rows [][]string
	for _, line := range strings.Split(out.String(), "\n") {
		cells := strings.FieldsFunc(line, func(r rune) bool { return unicode.IsSpace(r) || r == '|' })
		if len(cells) > 0 && strings.ContainsFunc(line, unicode.IsLetter) {
			rows = append(rows, cells)
		}
	}
	req.Len(rows, 3, out.String())
	req.Contains(strings.ToLower(strings.Join(rows[0], " ")), "recording")
	req.Equal([]string{"Dr.", "House", "doctor", "on", "on", "off", "off"}, rows[1])
	req.Equal([]string{"Pat", "patient", "off", "on", "on", "off"}, rows[2])
}
