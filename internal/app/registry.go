package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrUnknownConn = errors.New("unknown connection")

type connEntry struct {
	conn core.Conn
	room domain.RoomID
	name string
	role domain.Role
	seq  uint64
}

// Member is a room member together with its transport endpoint.
type Member struct {
	domain.RosterEntry
	Conn core.Conn
}

type JoinResult struct {
	Room domain.RoomID
	Self Member
	// Others are the members present before the join, in join order.
	Others []Member
	// Members is the full room after the join, in join order.
	Members []Member
	// Previous is set when the join moved the connection out of another room.
	Previous *LeaveResult
}

type LeaveResult struct {
	Room   domain.RoomID
	Member Member
	// Members remaining in the room after the leave.
	Members []Member
	// Ended is true for exactly one leave per room lifetime.
	Ended bool
}

func Roster(members []Member) []domain.RosterEntry {
	out := make([]domain.RosterEntry, len(members))
	for i, m := range members {
		out[i] = m.RosterEntry
	}
	return out
}

// Registry is the authoritative room membership. All mutations happen under
// one lock, and the commit callbacks run while it is held so that the
// notifications they emit are ordered exactly like the mutations.
// Commit callbacks must not block and must not call back into the Registry.
type Registry struct {
	mu    sync.RWMutex
	seq   uint64
	conns map[domain.ConnID]*connEntry
	rooms map[domain.RoomID]map[domain.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connEntry),
		rooms: make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

func (r *Registry) Bind(id domain.ConnID, conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{conn: conn}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

func (r *Registry) Conn(id domain.ConnID) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Join places id in room, moving it out of any previous room first.
// Joining the room it is already in refreshes its name and role.
func (r *Registry) Join(id domain.ConnID, room domain.RoomID, name string, role domain.Role, commit func(JoinResult)) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return JoinResult{}, ErrUnknownConn
	}

	var res JoinResult
	if e.room != "" && e.room != room {
		prev := r.leaveLocked(id, e)
		res.Previous = &prev
	}

	set, ok := r.rooms[room]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		r.rooms[room] = set
		log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("room opened")
	}
	res.Others = r.membersLocked(room, id)

	if e.room != room {
		r.seq++
		e.seq = r.seq
	}
	e.room, e.name, e.role = room, name, role
	set[id] = struct{}{}

	res.Room = room
	res.Self = r.memberLocked(id, e)
	res.Members = r.membersLocked(room, "")

	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).
		Int("members", len(set)).Msg("joined room")

	if commit != nil {
		commit(res)
	}
	return res, nil
}

// Leave removes id from its current room; the connection stays bound.
func (r *Registry) Leave(id domain.ConnID, commit func(LeaveResult)) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok || e.room == "" {
		return LeaveResult{}, false
	}
	res := r.leaveLocked(id, e)
	if commit != nil {
		commit(res)
	}
	return res, true
}

// Disconnect leaves the current room, if any, and forgets the connection.
// The bool reports whether a room was left.
func (r *Registry) Disconnect(id domain.ConnID, commit func(LeaveResult)) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbind connection")
	if e.room == "" {
		return LeaveResult{}, false
	}
	res := r.leaveLocked(id, e)
	if commit != nil {
		commit(res)
	}
	return res, true
}

func (r *Registry) leaveLocked(id domain.ConnID, e *connEntry) LeaveResult {
	room := e.room
	res := LeaveResult{Room: room, Member: r.memberLocked(id, e)}
	set := r.rooms[room]
	delete(set, id)
	e.room = ""
	if len(set) == 0 {
		delete(r.rooms, room)
		res.Ended = true
		log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("room ended")
	} else {
		res.Members = r.membersLocked(room, "")
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("left room")
	return res
}

func (r *Registry) memberLocked(id domain.ConnID, e *connEntry) Member {
	return Member{
		RosterEntry: domain.RosterEntry{ConnectionID: id, DisplayName: e.name, Role: e.role},
		Conn:        e.conn,
	}
}

func (r *Registry) membersLocked(room domain.RoomID, except domain.ConnID) []Member {
	set := r.rooms[room]
	out := make([]Member, 0, len(set))
	seqs := make(map[domain.ConnID]uint64, len(set))
	for id := range set {
		if id == except {
			continue
		}
		e := r.conns[id]
		out = append(out, r.memberLocked(id, e))
		seqs[id] = e.seq
	}
	sort.Slice(out, func(i, j int) bool { return seqs[out[i].ConnectionID] < seqs[out[j].ConnectionID] })
	return out
}

func (r *Registry) RoomOf(id domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.room == "" {
		return "", false
	}
	return e.room, true
}

// Members returns a snapshot of room in join order.
func (r *Registry) Members(room domain.RoomID) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(room, "")
}

func (r *Registry) Roster(room domain.RoomID) []domain.RosterEntry {
	return Roster(r.Members(room))
}

func (r *Registry) List() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, set := range r.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: len(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
