package orch_test

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/app/orch"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	events []domain.ServerEvent
	raw    []string
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	var ev domain.ServerEvent
	if err := json.Unmarshal(f, &ev); err != nil {
		return err
	}
	c.events = append(c.events, ev)
	c.raw = append(c.raw, string(f))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// drain returns and forgets everything received so far.
func (c *fakeConn) drain() []domain.ServerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// lastRoster is the users list of the newest participants-updated.
func (c *fakeConn) lastRoster() ([]domain.RosterEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == domain.EvtParticipantsUpdated {
			return c.events[i].Users, true
		}
	}
	return nil, false
}

func types(evs []domain.ServerEvent) []domain.MessageType {
	out := make([]domain.MessageType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func userIDs(users []domain.RosterEntry) []domain.ConnID {
	out := make([]domain.ConnID, len(users))
	for i, u := range users {
		out[i] = u.ConnectionID
	}
	return out
}

func newOrch() *orch.Orchestrator {
	return orch.New(app.NewRegistry(), app.SimplePolicy{Action: app.DropFrame})
}

func TestConnectSendsConnectionID(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	c := &fakeConn{}

	id := o.Connect(c)

	evs := c.drain()
	req.Len(evs, 1)
	req.Equal(domain.EvtConnected, evs[0].Type)
	req.Equal(id, evs[0].ConnectionID)
	req.NotEqual(id, o.Connect(&fakeConn{}), "ids are never reused")
}

func TestTwoPartyConsultation(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	var ended []domain.RoomID
	o.OnRoomEnded(func(r domain.RoomID) { ended = append(ended, r) })

	c1, c2 := &fakeConn{}, &fakeConn{}
	id1, id2 := o.Connect(c1), o.Connect(c2)
	c1.drain()
	c2.drain()

	// Given the doctor joins an empty room
	req.NoError(o.Join(id1, domain.JoinRequest{RoomID: "R", DisplayName: "Doc", Role: domain.RoleDoctor}))
	evs := c1.drain()
	req.Equal([]domain.MessageType{domain.EvtExistingUsers, domain.EvtParticipantsUpdated}, types(evs))
	req.Empty(evs[0].Users)
	req.Equal([]domain.ConnID{id1}, userIDs(evs[1].Users))

	// When the patient joins
	req.NoError(o.Join(id2, domain.JoinRequest{RoomID: "R", DisplayName: "Pat", Role: domain.RolePatient}))

	// Then the doctor learns about the patient and the patient about the doctor
	evs = c1.drain()
	req.Equal([]domain.MessageType{domain.EvtUserJoined, domain.EvtParticipantsUpdated}, types(evs))
	req.Equal(id2, evs[0].ConnectionID)
	req.Equal("Pat", evs[0].DisplayName)
	req.Equal([]domain.ConnID{id1, id2}, userIDs(evs[1].Users))

	evs = c2.drain()
	req.Equal([]domain.MessageType{domain.EvtExistingUsers, domain.EvtParticipantsUpdated}, types(evs))
	req.Equal([]domain.RosterEntry{{ConnectionID: id1, DisplayName: "Doc", Role: domain.RoleDoctor}}, evs[0].Users)
	req.Equal([]domain.ConnID{id1, id2}, userIDs(evs[1].Users))

	// When the patient signals, only the doctor receives it, stamped with the real sender
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	req.NoError(o.SendSignal(id2, "R", offer))
	evs = c1.drain()
	req.Len(evs, 1)
	req.Equal(domain.EvtReceiveSignal, evs[0].Type)
	req.Equal(id2, evs[0].SenderID)
	req.JSONEq(string(offer), string(evs[0].Signal))
	req.Empty(c2.drain())

	// When the doctor chats, both sides including the doctor receive it unchanged
	msg := domain.ChatEnvelope{Sender: "doctor", Type: domain.ChatText, Content: "b64=="}
	req.NoError(o.SendChat(id1, domain.ChatRequest{RoomID: "R", Message: msg}))
	for _, c := range []*fakeConn{c1, c2} {
		evs = c.drain()
		req.Len(evs, 1)
		req.Equal(msg, *evs[0].Message)
	}

	// When the patient disconnects, the doctor sees the reduced roster
	o.Disconnect(id2)
	evs = c1.drain()
	req.Equal([]domain.MessageType{domain.EvtParticipantsUpdated}, types(evs))
	req.Equal([]domain.ConnID{id1}, userIDs(evs[0].Users))
	req.Empty(ended)

	// When the doctor leaves, the room ends once
	o.Leave(id1)
	o.Leave(id1)
	o.Disconnect(id1)
	req.Equal([]domain.RoomID{"R"}, ended)
	req.Empty(c1.drain())
}

func TestSignalRequiresMembership(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	id := o.Connect(&fakeConn{})

	req.ErrorIs(o.SendSignal(id, "R", json.RawMessage(`{}`)), orch.ErrNotInRoom)
	req.NoError(o.Join(id, domain.JoinRequest{RoomID: "R", DisplayName: "x", Role: domain.RolePatient}))
	req.ErrorIs(o.SendSignal(id, "other", json.RawMessage(`{}`)), orch.ErrNotInRoom)
	req.ErrorIs(o.EndCall(id, "other"), orch.ErrNotInRoom)
	req.ErrorIs(o.SendChat(id, domain.ChatRequest{RoomID: "other", Message: domain.ChatEnvelope{Sender: "patient", Type: domain.ChatText, Content: "x"}}), orch.ErrNotInRoom)
}

func TestJoinValidates(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	id := o.Connect(&fakeConn{})

	req.ErrorIs(o.Join(id, domain.JoinRequest{RoomID: "R", DisplayName: "x", Role: "admin"}), domain.ErrInvalidRole)
	req.ErrorIs(o.Join(id, domain.JoinRequest{DisplayName: "x", Role: domain.RoleDoctor}), domain.ErrRoomIDEmpty)
	req.ErrorIs(o.Join("ghost", domain.JoinRequest{RoomID: "R", DisplayName: "x", Role: domain.RoleDoctor}), app.ErrUnknownConn)
}

func TestEndCallNotifiesOthersOnly(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	c1, c2 := &fakeConn{}, &fakeConn{}
	id1, id2 := o.Connect(c1), o.Connect(c2)
	req.NoError(o.Join(id1, domain.JoinRequest{RoomID: "R", DisplayName: "Doc", Role: domain.RoleDoctor}))
	req.NoError(o.Join(id2, domain.JoinRequest{RoomID: "R", DisplayName: "Pat", Role: domain.RolePatient}))
	c1.drain()
	c2.drain()

	req.NoError(o.EndCall(id1, "R"))

	req.Empty(c1.drain())
	req.Equal([]domain.MessageType{domain.EvtCallEnded}, types(c2.drain()))
	req.Equal(2, o.ParticipantCount("R"))
}

func TestMovingRoomsUpdatesOldRoom(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	var ended []domain.RoomID
	o.OnRoomEnded(func(r domain.RoomID) { ended = append(ended, r) })
	c1, c2 := &fakeConn{}, &fakeConn{}
	id1, id2 := o.Connect(c1), o.Connect(c2)
	req.NoError(o.Join(id1, domain.JoinRequest{RoomID: "A", DisplayName: "Doc", Role: domain.RoleDoctor}))
	req.NoError(o.Join(id2, domain.JoinRequest{RoomID: "A", DisplayName: "Pat", Role: domain.RolePatient}))
	c1.drain()

	req.NoError(o.Join(id2, domain.JoinRequest{RoomID: "B", DisplayName: "Pat", Role: domain.RolePatient}))

	evs := c1.drain()
	req.Equal([]domain.MessageType{domain.EvtParticipantsUpdated}, types(evs))
	req.Equal([]domain.ConnID{id1}, userIDs(evs[0].Users))

	req.NoError(o.Join(id1, domain.JoinRequest{RoomID: "B", DisplayName: "Doc", Role: domain.RoleDoctor}))
	req.Equal([]domain.RoomID{"A"}, ended)
}

func TestKickPolicyClosesSlowMember(t *testing.T) {
	req := require.New(t)
	o := orch.New(app.NewRegistry(), app.SimplePolicy{Action: app.KickMember})
	c1, c2 := &fakeConn{}, &fakeConn{}
	id1, id2 := o.Connect(c1), o.Connect(c2)
	req.NoError(o.Join(id1, domain.JoinRequest{RoomID: "R", DisplayName: "Doc", Role: domain.RoleDoctor}))
	req.NoError(o.Join(id2, domain.JoinRequest{RoomID: "R", DisplayName: "Pat", Role: domain.RolePatient}))
	c2.full = true

	req.NoError(o.SendSignal(id1, "R", json.RawMessage(`{"type":"candidate","candidate":""}`)))

	c2.mu.Lock()
	defer c2.mu.Unlock()
	req.True(c2.closed)
}

func TestConcurrentLeavesEndRoomOnce(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	var ended atomic.Int32
	o.OnRoomEnded(func(domain.RoomID) { ended.Add(1) })

	ids := make([]domain.ConnID, 16)
	for i := range ids {
		ids[i] = o.Connect(&fakeConn{})
		req.NoError(o.Join(ids[i], domain.JoinRequest{RoomID: "R", DisplayName: "p", Role: domain.RolePatient}))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func(id domain.ConnID) { defer wg.Done(); o.Leave(id) }(id)
		go func(id domain.ConnID) { defer wg.Done(); o.Disconnect(id) }(id)
	}
	wg.Wait()

	req.Equal(int32(1), ended.Load())
}

func TestFirstJoinerGetsEmptyUsersList(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	c := &fakeConn{}
	id := o.Connect(c)

	req.NoError(o.Join(id, domain.JoinRequest{RoomID: "R", DisplayName: "Dr.A", Role: domain.RoleDoctor}))

	c.mu.Lock()
	defer c.mu.Unlock()
	req.Len(c.raw, 3)
	req.JSONEq(`{"type":"existing-users","users":[]}`, c.raw[1])
	req.Contains(c.raw[2], `"users":[{`)
}

func TestRosterFollowsMembershipUnderMixedChurn(t *testing.T) {
	req := require.New(t)
	o := newOrch()

	const n = 32
	conns := make([]*fakeConn, n)
	ids := make([]domain.ConnID, n)
	for i := range conns {
		conns[i] = &fakeConn{}
		ids[i] = o.Connect(conns[i])
	}
	join := func(i int, room domain.RoomID) {
		_ = o.Join(ids[i], domain.JoinRequest{RoomID: room, DisplayName: "p", Role: domain.RolePatient})
	}

	// Given every kind of membership change racing on two rooms
	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 5 {
			case 0:
				join(i, "R")
			case 1:
				join(i, "R")
				o.Leave(ids[i])
			case 2:
				join(i, "R")
				o.Disconnect(ids[i])
			case 3:
				join(i, "R")
				o.Leave(ids[i])
				join(i, "R")
			case 4:
				join(i, "S")
				join(i, "R")
			}
		}(i)
	}
	wg.Wait()

	// Then the registry holds exactly the members that stayed
	var want []domain.ConnID
	for i, id := range ids {
		if i%5 == 0 || i%5 == 3 || i%5 == 4 {
			want = append(want, id)
		}
	}
	roster := o.Registry.Roster("R")
	req.ElementsMatch(want, userIDs(roster))
	req.Empty(o.Registry.Roster("S"))

	// And every remaining member was last told exactly that roster
	for i, id := range ids {
		if _, in := o.Registry.RoomOf(id); !in {
			continue
		}
		last, ok := conns[i].lastRoster()
		req.True(ok)
		req.Equal(roster, last, "member %d", i)
	}
}
